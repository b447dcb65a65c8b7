package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adfharrison1/livedb/pkg/config"
	"github.com/adfharrison1/livedb/pkg/indexing"
	"github.com/adfharrison1/livedb/pkg/logger"
	"github.com/adfharrison1/livedb/pkg/query"
	"github.com/adfharrison1/livedb/pkg/realm"
	"github.com/adfharrison1/livedb/pkg/schema"
	"github.com/adfharrison1/livedb/pkg/server"
	"github.com/adfharrison1/livedb/pkg/storage"
)

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "livedb",
	Short: "livedb is an in-memory versioned record store with live queries",
	Long: `livedb serves typed tables over HTTP. Queries return live result
collections that follow new commits, and aggregates (min, max, sum,
average, mindate, maxdate) run over them.

Without a background save interval, data is only saved on graceful shutdown
or on SIGHUP.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var checkSchemaCmd = &cobra.Command{
	Use:   "check-schema [file]",
	Short: "Validate a schema file and print its tables",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		file := cfg.Schema.File
		if len(args) == 1 {
			file = args[0]
		}
		registry := schema.NewRegistry()
		if err := registry.LoadFile(file); err != nil {
			return err
		}
		for _, name := range registry.Tables() {
			t, _ := registry.Table(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", name)
			for _, f := range t.Fields {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %-8s nullable=%t indexed=%t\n", f.Name, f.Type, f.Nullable, f.Indexed)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./livedb.{yaml,json,toml} if present)")

	flags := rootCmd.Flags()
	flags.Int("port", 8080, "Server port")
	flags.String("data-dir", ".", "Data directory for storage")
	flags.String("checkpoint-file", "livedb.lvdb", "Checkpoint file, relative to the data directory")
	flags.Duration("background-save", 5*time.Minute, "Background save interval (e.g., 5m, 30s). Set to 0 to disable.")
	flags.String("schema", "schema.json", "Schema file declaring tables and fields")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.Int("workers", 4, "Query evaluation workers")

	bind := map[string]string{
		"server.port":             "port",
		"storage.data_dir":        "data-dir",
		"storage.checkpoint_file": "checkpoint-file",
		"storage.background_save": "background-save",
		"schema.file":             "schema",
		"log.level":               "log-level",
		"log.format":              "log-format",
		"realm.workers":           "workers",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(checkSchemaCmd)
}

func serve(cfg *config.Config) error {
	log := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	registry := schema.NewRegistry()
	if err := registry.LoadFile(cfg.Schema.File); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	storageOptions := []storage.StorageOption{
		storage.WithDataDir(cfg.Storage.DataDir),
		storage.WithCheckpointFile(cfg.Storage.CheckpointFile),
		storage.WithGCInterval(cfg.Storage.GCInterval),
		storage.WithLogger(log),
	}
	if cfg.Storage.BackgroundSave > 0 {
		storageOptions = append(storageOptions, storage.WithBackgroundSave(cfg.Storage.BackgroundSave))
		log.Info("background save enabled", "interval", cfg.Storage.BackgroundSave)
	} else {
		log.Warn("background save disabled - data only saved on graceful shutdown")
	}

	store, err := storage.Open(storageOptions...)
	if err != nil {
		return err
	}

	indexes := indexing.NewIndexEngine(cfg.Index.CacheSize)
	for _, name := range registry.Tables() {
		t, _ := registry.Table(name)
		for _, field := range t.IndexedFields() {
			if err := indexes.CreateIndex(name, field); err != nil {
				store.Close()
				return err
			}
		}
	}
	engine := query.NewEngine(indexes)

	looper, err := realm.StartLooper(func() (*realm.Realm, error) {
		return realm.Open(store, registry,
			realm.WithEngine(engine),
			realm.WithWorkers(cfg.Realm.Workers),
			realm.WithLogger(log),
		)
	}, cfg.Realm.TickInterval)
	if err != nil {
		store.Close()
		return err
	}

	srv := server.NewServer(store, registry, indexes, looper, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Addr())
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	var serveErr error
wait:
	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				srv.SaveDB(cfg.CheckpointPath())
				continue
			}
			log.Info("shutting down server", "signal", sig.String())
			break wait
		case serveErr = <-errCh:
			break wait
		}
	}

	shutdown(log, cfg, srv, looper, store)
	return serveErr
}

func shutdown(log *slog.Logger, cfg *config.Config, srv *server.Server, looper *realm.Looper, store *storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if err := looper.Close(); err != nil {
		log.Error("closing realm failed", "error", err)
	}
	// Close writes the final checkpoint
	if err := store.Close(); err != nil {
		log.Error("saving checkpoint failed", "error", err)
	}
	log.Info("server exited")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
