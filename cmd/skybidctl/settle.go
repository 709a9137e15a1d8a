package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/config"
	"github.com/kiranshivaraju/skybid/internal/outbox"
	"github.com/kiranshivaraju/skybid/internal/settlement"
	"github.com/spf13/cobra"
)

func (a *app) settleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Run and repair settlement batches",
	}
	cmd.AddCommand(a.settleRunCmd())
	cmd.AddCommand(a.settleRescheduleCmd())
	return cmd
}

func (a *app) settleRunCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Release every transfer that is due",
		Long: `Run one settlement batch. Each due transfer is claimed, released
through the funds gateway and recorded. Transfers already paid are never
released twice, so the command is safe to rerun.

Examples:
  skybidctl settle run
  skybidctl settle run --at 2026-01-02T15:04:05Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(cfg *config.Config, b *backend) error {
				p := settlement.NewProcessor(b.store, b.gateway, cfg.Settlement, nil)

				var (
					res settlement.BatchResult
					err error
				)
				if at != "" {
					now, perr := time.Parse(time.RFC3339, at)
					if perr != nil {
						return fmt.Errorf("invalid --at: %w", perr)
					}
					res, err = p.RunBatch(cmd.Context(), now)
				} else {
					res, err = p.RunDue(cmd.Context())
				}
				if err != nil {
					return fmt.Errorf("run settlements: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "treat this RFC3339 time as now")
	return cmd
}

func (a *app) settleRescheduleCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "reschedule [transfer-id]",
		Short: "Put a failed transfer back in the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transfer id: %w", err)
			}
			var when *time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				when = &t
			}

			return a.withBackend(cmd, func(cfg *config.Config, b *backend) error {
				p := settlement.NewProcessor(b.store, b.gateway, cfg.Settlement, nil)
				t, err := p.Reschedule(cmd.Context(), id, when)
				if err != nil {
					return fmt.Errorf("reschedule transfer: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), t)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "RFC3339 time to schedule for (default now)")
	return cmd
}

func (a *app) outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drain the event outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Publish one batch of pending events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(cfg *config.Config, b *backend) error {
				d := outbox.NewDispatcher(b.store, b.sink, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
				n, err := d.DispatchOnce(cmd.Context())
				if err != nil {
					return fmt.Errorf("dispatch events: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d events\n", n)
				return nil
			})
		},
	})
	return cmd
}
