package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"budget/internal/adapters"
	"budget/internal/amqp"
	"budget/internal/cache"
	"budget/internal/cli"
	"budget/internal/log"
	"budget/internal/services"
)

const shutdownTimeout = 15 * time.Second

func runCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the ledger consistent and publish changes until stopped",
		Long: `Run the long-lived ledger process: a periodic drift check that reconciles
when held totals disagree with a recomputation, stats cache cleanup, and,
when AMQP_URL is set, publication of every aggregate change.

Send SIGHUP to force a full reconcile. SIGINT or SIGTERM stops the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedger(cmd.Context(), opts)
		},
	}
}

func runLedger(parent context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	a, err := openApp(parent, opts)
	if err != nil {
		return err
	}

	caches := cache.NewManager(logger)
	caches.Register("portfolio_stats", a.stats.Cache())
	caches.StartCleanup(cfg.StatsCacheTTL)

	var processor *services.ReconcileProcessor
	if cfg.ReconcileInterval > 0 {
		processor = services.NewReconcileProcessor(a.ledger, services.ReconcileProcessorConfig{
			Interval: cfg.ReconcileInterval,
		}, logger)
	}

	var client *amqp.Client
	if cfg.AMQPEnabled() {
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", log.FieldError, err)
			client = nil
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	runCtx, stopRun := context.WithCancel(parent)
	defer stopRun()

	ctx, done := cli.GracefulShutdown(runCtx, logger, shutdownTimeout, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if processor != nil {
			if err := processor.Stop(stopCtx); err != nil {
				logger.Warn("Reconcile processor did not stop cleanly", log.FieldError, err)
			}
		}
		caches.Stop()
		if client != nil {
			client.Close()
		}
		a.Close()
	})

	g, gctx := errgroup.WithContext(ctx)

	if processor != nil {
		if err := processor.Start(gctx); err != nil {
			stopRun()
			cli.WaitForShutdown(ctx, done)
			return err
		}
		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hup:
					logger.Info("Reconcile requested", log.FieldOperation, log.OpReconcile)
					processor.Trigger()
				}
			}
		})
	}

	if client != nil {
		publisher := adapters.NewEventPublisher(a.ledger, client, logger)
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("Ledger running",
		log.FieldBackend, cfg.DataBackend,
		log.FieldVersion, a.ledger.Version(),
		"reconcile_interval", cfg.ReconcileInterval,
		"amqp_enabled", client != nil)

	err = g.Wait()
	stopRun()
	cli.WaitForShutdown(ctx, done)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
