package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/config"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/logging"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/pipeline"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/store"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/telemetry"
)

// env is everything a storage-backed command needs, built from the
// resolved configuration.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	flush     func() error
	kv        store.KV
	repo      *store.Evidence
	telemetry *telemetry.Metrics
	out       *OutputFormatter
}

// loadConfig resolves configuration from --config, EVIDENCE_* variables
// and any global flags that were set.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openEnv loads configuration and opens the configured store.
func openEnv(opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}

	logger, flush, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	logger.Debug("opening store", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)
	kv, err := store.Open(store.Options{
		Backend: store.Backend(cfg.Storage.Backend),
		Path:    cfg.Storage.Path,
		Logger:  logger,
	})
	if err != nil {
		_ = flush()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		flush:  flush,
		kv:     kv,
		repo: store.NewEvidence(kv, store.EvidenceOptions{
			SnapshotTTL: cfg.Storage.SnapshotTTL,
			ListLimit:   cfg.Storage.ListLimit,
		}),
		telemetry: telemetry.New(),
		out:       newFormatter(opts, cmd),
	}, nil
}

func (e *env) pipeline() *pipeline.Pipeline {
	return pipeline.New(e.repo, pipeline.Options{
		Window:      e.cfg.Metrics.Window,
		Parallelism: e.cfg.Pipeline.Parallelism,
		Logger:      e.logger,
		Telemetry:   e.telemetry,
	})
}

// Close releases the store, writes the metrics textfile when configured
// and flushes the logger.
func (e *env) Close() error {
	var errs []error
	if err := e.kv.Close(); err != nil {
		errs = append(errs, err)
	}
	if path := e.cfg.Pipeline.MetricsFile; path != "" {
		if err := e.telemetry.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// closeEnv closes e and logs a failure, for use in defer.
func closeEnv(e *env) {
	if err := e.Close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}
