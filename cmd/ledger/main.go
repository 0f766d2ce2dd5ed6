// Command ledger manages budget categories and transactions and keeps each
// category's spent total consistent with its transactions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"budget/internal/cli"
	"budget/internal/config"
	"budget/internal/log"
)

var version = "dev"

type rootOptions struct {
	configFile string
	envFiles   []string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ledger",
		Short: "Budget ledger with consistent per-category spending",
		Long: `ledger records income and expense transactions against budget categories.

Each category's spent total is updated incrementally on every change and can
be reconciled against a full recomputation at any time.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: $LEDGER_CONFIG)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default: .env)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format override (text, json)")

	root.AddCommand(categoriesCmd(opts))
	root.AddCommand(categoryCmd(opts))
	root.AddCommand(txnCmd(opts))
	root.AddCommand(recategorizeCmd(opts))
	root.AddCommand(statsCmd(opts))
	root.AddCommand(reconcileCmd(opts))
	root.AddCommand(importCmd(opts))
	root.AddCommand(eventsCmd(opts))
	root.AddCommand(runCmd(opts))

	return root
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cli.LoadEnvFile(o.envFiles...)

	cfg, err := cli.LoadAndValidateConfig(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" || o.logFormat != "" {
		if o.logLevel != "" {
			cfg.LogLevel = o.logLevel
		}
		if o.logFormat != "" {
			cfg.LogFormat = o.logFormat
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	o.cfg = cfg
	o.logger = cli.SetupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(log.IntoContext(ctx, o.logger))
	o.logger.Debug("Configuration loaded",
		log.FieldBackend, cfg.DataBackend,
		"lock_mode", cfg.LockMode,
		"amqp_enabled", cfg.AMQPEnabled())
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(exitCode(err))
	}
}
