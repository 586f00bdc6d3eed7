package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tabserve/internal/api"
	"tabserve/internal/config"
	"tabserve/internal/errors"
	"tabserve/internal/metrics"
	"tabserve/internal/predict"
	"tabserve/internal/registry"
	"tabserve/internal/service"
	"tabserve/internal/store"
	"tabserve/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

var (
	v       = config.NewViper()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tabserve",
	Short: "Serve batch binary predictions over HTTP",
	Long: `tabserve loads a trained classifier and scores uploaded CSV or JSON
datasets, storing every result as a downloadable JSON artifact.

Without a model file the server still starts and returns placeholder
predictions flagged as degraded.

Examples:
  tabserve --model-path models/model.gob
  tabserve --config tabserve.toml --watch-model
  TABSERVE_STORAGE=redis TABSERVE_REDIS_ADDR=redis:6379 tabserve`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (toml, yaml or json)")
	f.String("host", "0.0.0.0", "listen host")
	f.Int("port", 8000, "listen port")
	f.String("model-path", "models/model.gob", "trained model artifact")
	f.Bool("watch-model", false, "reload the model when its file changes")
	f.String("artifact-dir", "tmp", "directory for result artifacts")
	f.String("storage", "file", "artifact backend: file or redis")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-file", "", "also write logs to this file, rotated")

	for key, flag := range map[string]string{
		"host":         "host",
		"port":         "port",
		"model_path":   "model-path",
		"watch_model":  "watch-model",
		"artifact_dir": "artifact-dir",
		"storage":      "storage",
		"log_level":    "log-level",
		"log_file":     "log-file",
	} {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintln(os.Stderr, "hint:", hints)
		}
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := utils.NewLogger(utils.LogOptions{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer func() { _ = logger.Sync() }()

	m := metrics.New()
	reg := registry.New(cfg.ModelPath, logger.Named("registry"))
	reg.OnSwap(m.SetModelLoaded)
	// a missing model is logged by the registry and leaves us degraded
	_ = reg.Load()
	if cfg.WatchModel {
		go func() {
			if err := reg.Watch(ctx); err != nil {
				logger.Warn("model watch stopped", zap.Error(err))
			}
		}()
	}

	st, closeStore, err := openStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	pipeline := service.New(predict.New(reg, predict.WithLogger(logger.Named("predict"))), st, service.Options{
		StagingDir:     cfg.StagingDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		MaxConcurrent:  cfg.MaxConcurrent,
		Logger:         logger.Named("pipeline"),
		Metrics:        m,
	})

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Registry:       reg,
		Pipeline:       pipeline,
		Store:          st,
		Metrics:        m,
		Logger:         logger.Named("http"),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}

// openStore returns the configured artifact backend and its cleanup.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Storage {
	case "redis":
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Retention,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}, nil
	default:
		fs, err := store.NewFileStore(cfg.ArtifactDir,
			store.WithLogger(logger),
			store.WithCacheSize(cfg.CacheSize),
			store.WithRetention(cfg.Retention, cfg.JanitorInterval),
		)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs.Stop, nil
	}
}
