package normalize

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/lostmatch/internal/domain/item"
)

func TestRecord_AllFields(t *testing.T) {
	r := item.Record{
		ID: 1, Kind: item.Lost,
		Name: "black wallet", Category: "wallet", Place: "library",
		Date: "2024-03-01", Description: "leather, two cards inside",
	}
	got := Record(r)
	want := "black wallet | wallet | library | 2024-03-01 | leather, two cards inside"
	if got != want {
		t.Errorf("Record() = %q, want %q", got, want)
	}
}

func TestRecord_MissingFieldsKeepPosition(t *testing.T) {
	r := item.Record{ID: 1, Kind: item.Lost, Name: "black wallet", Place: "library"}
	got := Record(r)
	want := "black wallet |  | library |  | "
	if got != want {
		t.Errorf("Record() = %q, want %q", got, want)
	}
	if n := len(strings.Split(got, Delimiter)); n != Segments {
		t.Errorf("expected %d segments, got %d", Segments, n)
	}
}

func TestRecord_DelimiterAndNewlinesInsideFields(t *testing.T) {
	r := item.Record{
		Name:        "keys | car",
		Description: "silver ring\nwith  tag\tand fob",
	}
	got := Record(r)
	if strings.ContainsAny(got, "\n\t") {
		t.Errorf("expected single line, got %q", got)
	}
	if n := len(strings.Split(got, Delimiter)); n != Segments {
		t.Errorf("expected %d segments, got %d (%q)", Segments, n, got)
	}
	if !strings.HasPrefix(got, "keys / car | ") {
		t.Errorf("unexpected name segment in %q", got)
	}
	if !strings.HasSuffix(got, "silver ring with tag and fob") {
		t.Errorf("unexpected description segment in %q", got)
	}
}

func TestRecord_Deterministic(t *testing.T) {
	r := item.Record{Name: "umbrella", Place: "gym"}
	if Record(r) != Record(r) {
		t.Error("normalization must be deterministic")
	}
}

func TestQuery(t *testing.T) {
	tests := map[string]string{
		"":                      "",
		"   ":                   "",
		"\t black wallet \n":    "black wallet",
		"left it in the lab  ": "left it in the lab",
	}
	for in, want := range tests {
		if got := Query(in); got != want {
			t.Errorf("Query(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecords_PreservesOrder(t *testing.T) {
	rs := []item.Record{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	got := Records(rs)
	for i, name := range []string{"a", "b", "c"} {
		if !strings.HasPrefix(got[i], name+" |") {
			t.Errorf("Records()[%d] = %q", i, got[i])
		}
	}
}
