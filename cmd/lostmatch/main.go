package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/config"
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
	logpkg "github.com/kailas-cloud/lostmatch/internal/logger"
	chiTransport "github.com/kailas-cloud/lostmatch/internal/transport/chi"
	"github.com/kailas-cloud/lostmatch/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "lostmatch:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "lostmatch",
		Usage:   "Match lost item reports against found item reports",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name; selects config/<env>.yaml and the log format",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Explicit config file path (overrides --env lookup)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "seed",
						Usage: "YAML file of items to load before serving",
					},
				},
			},
			{
				Name:      "match",
				Usage:     "Rank stored items against a description and print JSON",
				ArgsUsage: "<description>",
				Action:    matchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results (default from config)",
					},
					&cli.StringFlag{
						Name:  "seed",
						Usage: "YAML file of items to load before matching",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Load lost and found items from a YAML file into the store",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the items YAML file",
						Required: true,
					},
				},
			},
		},
	}
}

// setup loads config and the logger from global flags.
func setup(c *cli.Context) (config.Config, *zap.Logger, error) {
	env := c.String("env")

	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func serveCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lostmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", c.String("env")),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("strategy", cfg.Match.Strategy),
	)

	rt, err := buildRuntime(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if path := c.String("seed"); path != "" {
		n, err := seedStore(c.Context, rt.items, path)
		if err != nil {
			return err
		}
		logger.Info("Seeded items", zap.Int("count", n), zap.String("file", path))
	}

	server := chiTransport.NewServer(rt.match, rt.health, logger)
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// matchOutput mirrors the HTTP response body.
type matchOutput struct {
	Items  []dommatch.CandidateScore `json:"items"`
	Status dommatch.Status           `json:"status"`
	Total  int                       `json:"total"`
}

func matchCommand(c *cli.Context) error {
	// A blank description is a valid query with no matches; only a missing argument is a usage error.
	if c.NArg() == 0 {
		return cli.Exit("match: a description is required", 2)
	}
	query := strings.Join(c.Args().Slice(), " ")

	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rt, err := buildRuntime(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if path := c.String("seed"); path != "" {
		if _, err := seedStore(c.Context, rt.items, path); err != nil {
			return err
		}
	}

	var k *int
	if c.IsSet("k") {
		v := c.Int("k")
		k = &v
	}
	res, err := rt.match.Match(c.Context, query, k)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(matchOutput{Items: res.Items, Status: res.Status, Total: len(res.Items)})
}

func seedCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Store.Driver == config.DriverMemory ||
		(cfg.Store.Driver == config.DriverBadger && cfg.Store.InMemory) {
		logger.Warn("Store is not persistent; seeded items are lost when the command exits",
			zap.String("driver", cfg.Store.Driver))
	}

	rt, err := buildRuntime(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	path := c.String("file")
	n, err := seedStore(c.Context, rt.items, path)
	if err != nil {
		return err
	}
	logger.Info("Seeded items", zap.Int("count", n), zap.String("file", path))
	_, _ = fmt.Fprintf(c.App.Writer, "seeded %d items\n", n)
	return nil
}
