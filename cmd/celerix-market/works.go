package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-market/pkg/schema"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

// byIDCommand builds a command taking a single id argument.
func byIDCommand(use, short string, fn func(ctx context.Context, c *sdk.Client, id int64) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *sdk.Client) error {
				v, err := fn(ctx, c, id)
				if err != nil {
					return err
				}
				return printJSON(v)
			})
		},
	}
}

func init() {
	var (
		creator int64
		style   string
		tag     string
		sort    string
		limit   int
	)
	worksCmd := &cobra.Command{
		Use:   "works",
		Short: "List works",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := schema.WorkFilter{CreatorAgentID: creator, Tag: tag, Sort: schema.SortOrder(sort), Limit: limit}
			if style != "" {
				st, ok := schema.ParseStyle(style)
				if !ok {
					return fmt.Errorf("unknown style %q", style)
				}
				f.Style = st
			}
			return withClient(cmd, func(ctx context.Context, c *sdk.Client) error {
				works, err := c.ListWorks(ctx, f)
				if err != nil {
					return err
				}
				return printJSON(works)
			})
		},
	}
	worksCmd.Flags().Int64VarP(&creator, "creator", "c", 0, "Only works by this agent")
	worksCmd.Flags().StringVarP(&style, "style", "s", "", "Only works of this style")
	worksCmd.Flags().StringVarP(&tag, "tag", "t", "", "Only works with this tag")
	worksCmd.Flags().StringVar(&sort, "sort", string(schema.SortCreated), "created or newest")
	worksCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of works (0 for all)")
	rootCmd.AddCommand(worksCmd)

	rootCmd.AddCommand(byIDCommand("work WORK_ID", "Show a work", func(ctx context.Context, c *sdk.Client, id int64) (any, error) {
		return c.GetWork(ctx, id)
	}))
	rootCmd.AddCommand(byIDCommand("ancestry WORK_ID", "Show the lineage of a work, root first", func(ctx context.Context, c *sdk.Client, id int64) (any, error) {
		return c.AncestryChain(ctx, id)
	}))
	rootCmd.AddCommand(byIDCommand("derivatives WORK_ID", "List direct derivatives of a work", func(ctx context.Context, c *sdk.Client, id int64) (any, error) {
		return c.ListDerivatives(ctx, id)
	}))

	var in schema.CreateWorkInput
	var price, createStyle, license string
	var parent int64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a work",
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := schema.ParseAmount(price)
			if err != nil {
				return err
			}
			in.Price = amt
			in.Style, _ = schema.ParseStyle(createStyle)
			in.License = schema.License(license)
			if parent > 0 {
				in.ParentID = &parent
			}
			if in.Content == "-" {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				in.Content = string(b)
			}
			return withClient(cmd, func(ctx context.Context, c *sdk.Client) error {
				w, err := c.CreateWork(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	createCmd.Flags().Int64VarP(&in.CreatorAgentID, "creator", "c", 0, "Creating agent id (required)")
	createCmd.Flags().StringVarP(&in.Title, "title", "t", "", "Title (required)")
	createCmd.Flags().StringVar(&in.Content, "content", "", "Content, or - to read stdin")
	createCmd.Flags().StringVarP(&in.Description, "desc", "d", "", "Description")
	createCmd.Flags().StringVarP(&createStyle, "style", "s", "", "Style (required)")
	createCmd.Flags().StringVarP(&license, "license", "l", string(schema.LicenseOpen), "open, commercial or exclusive")
	createCmd.Flags().StringVarP(&price, "price", "p", "", "Price, e.g. 45.00 (required)")
	createCmd.Flags().Int64Var(&parent, "parent", 0, "Parent work id for a derivative")
	createCmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "Tag (repeatable)")
	_ = createCmd.MarkFlagRequired("creator")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("style")
	_ = createCmd.MarkFlagRequired("price")
	rootCmd.AddCommand(createCmd)

	var buyer int64
	var purpose string
	buyCmd := &cobra.Command{
		Use:   "buy WORK_ID",
		Short: "Purchase a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *sdk.Client) error {
				res, err := c.Purchase(ctx, id, buyer, purpose)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	buyCmd.Flags().Int64VarP(&buyer, "buyer", "b", 0, "Buying agent id (required)")
	buyCmd.Flags().StringVarP(&purpose, "purpose", "p", "", "Intended use (required)")
	_ = buyCmd.MarkFlagRequired("buyer")
	_ = buyCmd.MarkFlagRequired("purpose")
	rootCmd.AddCommand(buyCmd)
}
