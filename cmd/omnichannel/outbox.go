package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/services"
	"github.com/tbourn/omnichannel-gateway/internal/utils"
)

// outboxCmd exposes the sweeper jobs and dead-letter inspection for cron
// jobs and on-call use when the server is not running the sweeps itself.
func outboxCmd(env *runtimeEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the outbound queue",
	}

	withOutbox := func(run func(cmd *cobra.Command, o *services.Outbox) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(env.cfg, env.log)
			if err != nil {
				return err
			}
			defer closeDB(db)
			return run(cmd, newOutbox(db, env.cfg))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue-failed",
		Short: "Requeue failed messages whose backoff has elapsed",
		Args:  cobra.NoArgs,
		RunE: withOutbox(func(cmd *cobra.Command, o *services.Outbox) error {
			n, err := o.RequeueFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued: %d\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reclaim-stale",
		Short: "Return messages with an expired processing lease to the queue",
		Args:  cobra.NoArgs,
		RunE: withOutbox(func(cmd *cobra.Command, o *services.Outbox) error {
			n, err := o.ReclaimStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed: %d\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue <message-id>",
		Short: "Requeue one failed or dead-lettered message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(func(cmd *cobra.Command, o *services.Outbox) error {
				if err := o.Requeue(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
				return nil
			})(cmd, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "depth",
		Short: "Show outbound rows per channel and status",
		Args:  cobra.NoArgs,
		RunE: withOutbox(func(cmd *cobra.Command, o *services.Outbox) error {
			rows, err := o.Depth(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHANNEL\tSTATUS\tCOUNT")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Channel, r.Status, r.Count)
			}
			return tw.Flush()
		}),
	})

	var (
		channel  string
		page     int
		pageSize int
	)
	dl := &cobra.Command{
		Use:   "dead-letters",
		Short: "List dead letters, newest first, as JSON",
		Args:  cobra.NoArgs,
		RunE: withOutbox(func(cmd *cobra.Command, o *services.Outbox) error {
			var ch domain.Channel
			if channel != "" {
				parsed, err := domain.ParseChannel(channel)
				if err != nil {
					return err
				}
				ch = parsed
			}
			p, size := utils.ClampPage(page, pageSize)
			items, total, err := o.DeadLetters(cmd.Context(), ch, p, size)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"items":      items,
				"page":       p,
				"pageSize":   size,
				"total":      total,
				"totalPages": utils.TotalPages(total, size),
			})
		}),
	}
	dl.Flags().StringVar(&channel, "channel", "", "filter by channel")
	dl.Flags().IntVar(&page, "page", 1, "page number")
	dl.Flags().IntVar(&pageSize, "page-size", utils.DefaultPageSize, "items per page")
	cmd.AddCommand(dl)

	return cmd
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
