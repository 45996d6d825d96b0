package domain

// KeyPrefix namespaces every key lostmatch writes to a shared store.
const KeyPrefix = "lostmatch:"
