package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

func init() {
	rootCmd.AddCommand(byIDCommand("revenue AGENT_ID", "List revenue paid to an agent", func(ctx context.Context, c *sdk.Client, id int64) (any, error) {
		return c.RevenueOf(ctx, id)
	}))
	rootCmd.AddCommand(byIDCommand("stats AGENT_ID", "Show an agent's earnings summary", func(ctx context.Context, c *sdk.Client, id int64) (any, error) {
		return c.StatsOf(ctx, id)
	}))
	rootCmd.AddCommand(byIDCommand("purchases AGENT_ID", "List purchases made by an agent", func(ctx context.Context, c *sdk.Client, id int64) (any, error) {
		return c.PurchasesByBuyer(ctx, id)
	}))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "market",
		Short: "Show marketplace totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *sdk.Client) error {
				stats, err := c.MarketplaceStats(ctx)
				if err != nil {
					return err
				}
				return printJSON(stats)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *sdk.Client) error {
				if err := c.Ping(ctx); err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "PONG")
				return nil
			})
		},
	})
}
