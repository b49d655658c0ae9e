package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agenthands/claimgraph/internal/config"
	"github.com/agenthands/claimgraph/internal/core"
	"github.com/agenthands/claimgraph/internal/driver"
	"github.com/agenthands/claimgraph/internal/lock"
	"github.com/agenthands/claimgraph/internal/logger"
	"github.com/agenthands/claimgraph/internal/observability"
)

const defaultConfigPath = "config/config.toml"

var (
	configPath string
	backend    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "claimgraph",
	Short: "Build and query the claims property graph",
	Long: `claimgraph loads claim, claimant and agent records from input directories
into a graph store and links them by their foreign keys. Re-running on the same
input leaves the graph unchanged.

Store backends:
  bolt     Memgraph or Neo4j over the bolt protocol
  gremlin  Cosmos DB Gremlin API or any TinkerPop server
  memory   in-process store, for dry runs

Examples:
  claimgraph run --config config/config.toml
  claimgraph flatten C-1001 --backend gremlin
  claimgraph serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "store backend: bolt, gremlin or memory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig layers defaults, the TOML file, .env and environment variables,
// and finally the --backend flag.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	path, explicit := configPath, configPath != ""
	if !explicit {
		if env := os.Getenv("CONFIG_PATH"); env != "" {
			path, explicit = env, true
		} else {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if backend != "" {
		cfg.Store.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is everything a command needs, opened once and closed on exit.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    driver.GraphDriver
	locks    lock.Locker
	pipeline *core.Pipeline
	closers  []func(context.Context) error
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode, verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	rt := &app{cfg: cfg, log: log}
	rt.closers = append(rt.closers, observability.InitOTel(ctx, log, cfg.Otel, Version))

	store, err := driver.Open(ctx, cfg, log)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	switch cfg.Lock.Mode {
	case config.LockRedis:
		r, err := lock.NewRedis(ctx, lock.RedisOptions{
			Addr:   cfg.Lock.RedisAddr,
			Prefix: cfg.Lock.Prefix,
			TTL:    cfg.Lock.TTL.Std(),
		}, log)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.locks = r
		rt.closers = append(rt.closers, func(context.Context) error { return r.Close() })
	default:
		rt.locks = lock.NewSharded(cfg.Lock.Shards)
	}

	rt.pipeline = core.NewPipeline(store, rt.locks, core.Options{
		Entities:  cfg.Entities(),
		RowLimit:  cfg.Concurrency.Rows,
		RuleLimit: cfg.Concurrency.Rules,
	}, log)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *app) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.log.Warn("close failed", "error", err)
		}
	}
	rt.log.Sync()
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
