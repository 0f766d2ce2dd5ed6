package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/worker"
)

func eventsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print aggregate change events published by a running ledger",
		Long: `Consume aggregate change messages from the configured AMQP queue and print
the new spent of every touched category. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if !cfg.AMQPEnabled() {
				return errors.New("AMQP_URL is not configured")
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, SubtleStyle.Render(fmt.Sprintf("Listening on %s (Ctrl+C to stop)", cfg.AMQPQueue)))
			monitor := worker.NewBudgetMonitor(func(a worker.Alert) {
				fmt.Fprintln(out, formatAlert(a))
			}, opts.logger)
			err = client.ConsumeAggregateEvents(cmd.Context(), func(msg *amqp.AggregateChangedMessage) error {
				fmt.Fprintln(out, formatEvent(msg))
				return monitor.HandleAggregateMessage(cmd.Context(), msg)
			})
			handled, gaps := monitor.Stats()
			opts.logger.Info("Event consumer stopped", log.FieldCount, handled, "gaps", gaps)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func formatEvent(msg *amqp.AggregateChangedMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%d %s",
		SubtleStyle.Render(msg.Timestamp.Format("15:04:05")), msg.Version, TitleStyle.Render(msg.Kind))
	if len(msg.TransactionIDs) > 0 {
		fmt.Fprintf(&b, " txn=%s", strings.Join(msg.TransactionIDs, ","))
	}
	for _, c := range msg.Categories {
		line := fmt.Sprintf("%s spent %s", c.Name, core.Money{Cents: c.SpentCents})
		if c.BudgetCents > 0 {
			line += fmt.Sprintf(" of %s (%.2f%%)", core.Money{Cents: c.BudgetCents}, c.UsagePercentage)
		}
		if c.OverBudget {
			line = ErrorStyle.Render(line + " OVER")
		}
		b.WriteString("\n  " + line)
	}
	return b.String()
}

func formatAlert(a worker.Alert) string {
	c := a.Category
	return WarningStyle.Render(fmt.Sprintf("⚠ %s is over budget: %s of %s",
		c.Name, core.Money{Cents: c.SpentCents}, core.Money{Cents: c.BudgetCents}))
}
