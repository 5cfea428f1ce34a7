// Command vidrank serves and inspects the video ranking engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/vidrank/internal/adapters/catalog"
	"github.com/okian/vidrank/internal/adapters/repository"
	service "github.com/okian/vidrank/internal/app"
	"github.com/okian/vidrank/internal/config"
	"github.com/okian/vidrank/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// cli holds state shared by subcommands.
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "vidrank",
		Short:         "Rank videos from pairwise judgments",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.rankCmd(),
		c.recordCmd(),
		c.analyzeCmd(),
		c.statsCmd(),
		c.matchCmd(),
		c.importCmd(),
		c.simulateCmd(),
	)
	return root
}

// setup loads configuration (defaults -> optional file -> env) and
// installs the global logger.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg

	if err := logger.Init(
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithOutput(cmd.ErrOrStderr()),
	); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// instance is an opened service with the stores it owns.
type instance struct {
	svc     *service.Service
	catalog *catalog.SQLiteCatalog
}

func (r *instance) Close() {
	r.svc.Stop()
	_ = r.catalog.Close()
}

func (c *cli) openCatalog() (*catalog.SQLiteCatalog, error) {
	if dir := filepath.Dir(c.cfg.CatalogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	return catalog.OpenSQLite(c.cfg.CatalogPath)
}

// open builds the service from configuration and starts it.
func (c *cli) open(ctx context.Context) (*instance, error) {
	cfg := c.cfg
	log := logger.Named("service")

	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	if cfg.LogBackend != string(repository.BackendMemory) {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	records, err := repository.Open(repository.Backend(cfg.LogBackend), cfg.DataDir,
		repository.WithLogger(logger.Named("badger")))
	if err != nil {
		return nil, err
	}
	cat, err := c.openCatalog()
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithRecordLog(records),
		service.WithCatalog(catalog.NewBreakerStore(cat,
			catalog.WithMaxFailures(cfg.BreakerMaxFailures),
			catalog.WithTimeout(cfg.BreakerTimeout()),
			catalog.WithBreakerLogger(logger.Named("catalog")),
		)),
		service.WithPlaylist(cfg.PlaylistID),
		service.WithBatchSize(cfg.BatchSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithDefaultStrategy(strategy),
		service.WithEngine(cfg.Engine()),
		service.WithLogger(log),
	}
	if cfg.RNGSeed != 0 {
		opts = append(opts, service.WithSeed(cfg.RNGSeed))
	}
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		_ = records.Close()
		_ = cat.Close()
		return nil, err
	}
	return &instance{svc: svc, catalog: cat}, nil
}
