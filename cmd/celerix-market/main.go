package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

var (
	addrFlag       string
	disableTLSFlag bool
	timeoutFlag    time.Duration
	rootCmd        = &cobra.Command{
		Use:           "celerix-market",
		Short:         "Command-line client for the celerix-market ledger daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	addr := os.Getenv("CELERIX_STORE_ADDR")
	if addr == "" {
		addr = "localhost:7001"
	}
	rootCmd.PersistentFlags().StringVarP(&addrFlag, "addr", "a", addr, "Daemon TCP address (CELERIX_STORE_ADDR)")
	rootCmd.PersistentFlags().BoolVar(&disableTLSFlag, "no-tls", os.Getenv("CELERIX_DISABLE_TLS") == "true", "Connect without TLS (CELERIX_DISABLE_TLS)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "Per-request timeout")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withClient connects to the daemon and runs fn with the connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *sdk.Client) error) error {
	ctx := cmd.Context()
	opts := []sdk.ClientOption{
		sdk.WithTimeout(timeoutFlag),
		sdk.WithClientLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel)),
	}
	if disableTLSFlag {
		opts = append(opts, sdk.WithoutTLS())
	}
	c, err := sdk.Connect(ctx, addrFlag, opts...)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addrFlag, err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
