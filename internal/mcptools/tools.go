// Package mcptools exposes the ledger to MCP clients as a set of tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/pkg/schema"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

// Tools serves ledger queries and commands as MCP tools.
type Tools struct {
	ledger sdk.Ledger
	log    zerolog.Logger
}

func New(l sdk.Ledger, log zerolog.Logger) *Tools {
	return &Tools{ledger: l, log: log.With().Str("component", "mcp").Logger()}
}

// NewServer builds an MCP server with every tool registered.
func NewServer(name, version string, l sdk.Ledger, log zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	New(l, log).RegisterTools(s)
	return s
}

func (t *Tools) RegisterTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_work",
		mcp.WithDescription("Fetch one creative work by id"),
		mcp.WithNumber("work_id", mcp.Required(), mcp.Description("Work id")),
	), t.handleGetWork)

	s.AddTool(mcp.NewTool("list_works",
		mcp.WithDescription("List works, optionally filtered by creator, style or tag"),
		mcp.WithNumber("creator_agent_id", mcp.Description("Only works by this agent")),
		mcp.WithString("style", mcp.Description("Only works of this style"), mcp.Enum(styleNames()...)),
		mcp.WithString("tag", mcp.Description("Only works carrying this tag")),
		mcp.WithString("sort", mcp.Description("created (default) or newest"), mcp.Enum("created", "newest")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of works, 0 for all")),
	), t.handleListWorks)

	s.AddTool(mcp.NewTool("create_work",
		mcp.WithDescription("Register a new work; set parent_id to register a derivative"),
		mcp.WithNumber("creator_agent_id", mcp.Required(), mcp.Description("Creating agent")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title, at most 200 characters")),
		mcp.WithString("content", mcp.Description("Body of the work")),
		mcp.WithString("description", mcp.Description("Short description")),
		mcp.WithString("style", mcp.Required(), mcp.Enum(styleNames()...)),
		mcp.WithString("license", mcp.Required(), mcp.Enum("open", "commercial", "exclusive")),
		mcp.WithString("price", mcp.Required(), mcp.Description("Price with at most two decimals, e.g. 45.00")),
		mcp.WithNumber("parent_id", mcp.Description("Parent work of a derivative")),
		mcp.WithArray("tags", mcp.Description("Free-form tags"), mcp.WithStringItems()),
	), t.handleCreateWork)

	s.AddTool(mcp.NewTool("purchase_work",
		mcp.WithDescription("Buy a work and distribute its revenue"),
		mcp.WithNumber("work_id", mcp.Required()),
		mcp.WithNumber("buyer_agent_id", mcp.Required()),
		mcp.WithString("purpose", mcp.Required(), mcp.Description("What the buyer will use the work for")),
	), t.handlePurchase)

	s.AddTool(mcp.NewTool("ancestry_chain",
		mcp.WithDescription("Lineage of a work from its root original down to the work itself"),
		mcp.WithNumber("work_id", mcp.Required()),
	), t.byID("ancestry_chain", func(ctx context.Context, id int64) (any, error) {
		return t.ledger.AncestryChain(ctx, id)
	}))

	s.AddTool(mcp.NewTool("list_derivatives",
		mcp.WithDescription("Works derived directly from a work"),
		mcp.WithNumber("work_id", mcp.Required()),
	), t.byID("list_derivatives", func(ctx context.Context, id int64) (any, error) {
		return t.ledger.ListDerivatives(ctx, id)
	}))

	s.AddTool(mcp.NewTool("agent_stats",
		mcp.WithDescription("Earnings summary of one agent"),
		mcp.WithNumber("agent_id", mcp.Required()),
	), t.byID("agent_stats", func(ctx context.Context, id int64) (any, error) {
		return t.ledger.StatsOf(ctx, id)
	}))

	s.AddTool(mcp.NewTool("marketplace_stats",
		mcp.WithDescription("Totals across the whole marketplace"),
	), t.handleMarketplaceStats)
}

func styleNames() []string {
	out := make([]string, len(schema.Styles))
	for i, s := range schema.Styles {
		out[i] = s.String()
	}
	return out
}

// idArg reads a positive integer argument. JSON numbers arrive as float64.
func idArg(req mcp.CallToolRequest, key string) (int64, error) {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || v < 1 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

func optionalInt(req mcp.CallToolRequest, key string) int64 {
	v, _ := req.GetArguments()[key].(float64)
	return int64(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// failed turns a ledger error into a tool error carrying its wire code.
func (t *Tools) failed(tool string, err error) *mcp.CallToolResult {
	code := schema.CodeOf(err)
	t.log.Warn().Err(err).Str("tool", tool).Str("code", code).Msg("tool call failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", code, err))
}

func (t *Tools) byID(tool string, fn func(ctx context.Context, id int64) (any, error)) server.ToolHandlerFunc {
	key := "work_id"
	if tool == "agent_stats" {
		key = "agent_id"
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := idArg(req, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := fn(ctx, id)
		if err != nil {
			return t.failed(tool, err), nil
		}
		return jsonResult(v)
	}
}

func (t *Tools) handleGetWork(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "work_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	w, err := t.ledger.GetWork(ctx, id)
	if err != nil {
		return t.failed("get_work", err), nil
	}
	return jsonResult(w)
}

func (t *Tools) handleListWorks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := schema.WorkFilter{
		CreatorAgentID: optionalInt(req, "creator_agent_id"),
		Tag:            req.GetString("tag", ""),
		Sort:           schema.SortOrder(req.GetString("sort", string(schema.SortCreated))),
		Limit:          int(optionalInt(req, "limit")),
	}
	if v := req.GetString("style", ""); v != "" {
		st, ok := schema.ParseStyle(v)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown style %q", v)), nil
		}
		f.Style = st
	}
	works, err := t.ledger.ListWorks(ctx, f)
	if err != nil {
		return t.failed("list_works", err), nil
	}
	return jsonResult(works)
}

func (t *Tools) handleCreateWork(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creator, err := idArg(req, "creator_agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	price, err := schema.ParseAmount(req.GetString("price", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	style, _ := schema.ParseStyle(req.GetString("style", ""))
	in := schema.CreateWorkInput{
		CreatorAgentID: creator,
		Title:          req.GetString("title", ""),
		Description:    req.GetString("description", ""),
		Content:        req.GetString("content", ""),
		Style:          style,
		License:        schema.License(req.GetString("license", "")),
		Tags:           req.GetStringSlice("tags", nil),
		Price:          price,
	}
	if _, ok := req.GetArguments()["parent_id"]; ok {
		parent, err := idArg(req, "parent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.ParentID = &parent
	}

	w, err := t.ledger.CreateWork(ctx, in)
	if err != nil {
		return t.failed("create_work", err), nil
	}
	t.log.Debug().Int64("work_id", w.ID).Msg("create_work invoked")
	return jsonResult(w)
}

func (t *Tools) handlePurchase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workID, err := idArg(req, "work_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	buyer, err := idArg(req, "buyer_agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.ledger.Purchase(ctx, workID, buyer, req.GetString("purpose", ""))
	if err != nil {
		return t.failed("purchase_work", err), nil
	}
	return jsonResult(res)
}

func (t *Tools) handleMarketplaceStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.ledger.MarketplaceStats(ctx)
	if err != nil {
		return t.failed("marketplace_stats", err), nil
	}
	return jsonResult(stats)
}
