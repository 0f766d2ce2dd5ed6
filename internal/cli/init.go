// Package cli provides common CLI initialization utilities shared by the
// ledger commands.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budget/internal/backend"
	"budget/internal/config"
	"budget/internal/log"
)

// SetupLogger builds the structured logger from a level and format and sets
// it as the default logger. Unknown levels fall back to info.
func SetupLogger(out io.Writer, level, format string) *log.Logger {
	lvl, _ := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Format:    format,
		Component: log.ComponentApp,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env files for local development. Missing files are
// ignored since the environment is authoritative in production. Variables
// already set in the environment are never overridden.
func LoadEnvFile(paths ...string) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// LoadAndValidateConfig loads configuration from the optional file at path
// (or LEDGER_CONFIG), layered under the environment, and validates it.
func LoadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore creates the configured persistence backend.
func OpenStore(ctx context.Context, logger *log.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
}

// GracefulShutdown cancels the returned context on SIGINT/SIGTERM or when
// parent is done, then runs cleanup bounded by timeout. The channel is
// closed once cleanup has finished or timed out.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	if logger == nil {
		logger = log.Discard()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Shutdown requested", "reason", context.Cause(ctx))
		}
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
