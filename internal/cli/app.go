package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/facets/internal/config"
	"github.com/roach88/facets/internal/engine"
)

// loadConfig reads the configuration named by --config, or the defaults
// with environment overrides when no file is given.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openEngine opens the store, cache backend and engine described by cfg.
// The caller closes the engine.
func openEngine(ctx context.Context, cfg config.Config) (*engine.Engine, error) {
	slog.Debug("opening engine",
		"driver", cfg.Database.Driver,
		"cache", cfg.Cache.Backend,
	)
	e, err := engine.Open(ctx, cfg, engine.WithLogger(slog.Default()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	return e, nil
}

// withEngine loads config, opens the engine, runs fn and closes the engine.
// Failures to load or open are reported through f.
func withEngine(cmd *cobra.Command, opts *RootOptions, f *OutputFormatter, fn func(context.Context, *engine.Engine) error) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return reportExit(f, ErrCodeConfig, err)
	}
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return reportExit(f, ErrCodeOpen, err)
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			slog.Error("error closing engine", "error", closeErr)
		}
	}()

	return fn(ctx, e)
}

// reportExit writes an ExitError through f and returns it unchanged.
func reportExit(f *OutputFormatter, code string, err error) error {
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return err
}
