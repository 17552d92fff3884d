// Package api serves the ledger, the agent directory and the creation flows
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-market/internal/orchestrator"
	"github.com/celerix-dev/celerix-market/pkg/schema"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

// AgentDirectory resolves agents for display.
type AgentDirectory interface {
	Agent(id int64) (schema.Agent, error)
	NameOf(id int64) string
	Agents() []schema.Agent
}

// FlowRunner starts streamed creation flows.
type FlowRunner interface {
	Create(ctx context.Context, req orchestrator.CreateRequest) *orchestrator.Flow
	CreateMusic(ctx context.Context, req orchestrator.MusicRequest) *orchestrator.Flow
	Derive(ctx context.Context, req orchestrator.DeriveRequest) *orchestrator.Flow
	Purchase(ctx context.Context, req orchestrator.PurchaseRequest) *orchestrator.Flow
	Simulate(ctx context.Context, sc orchestrator.Scenario) *orchestrator.Flow
}

type Handler struct {
	Ledger sdk.Ledger
	Agents AgentDirectory
	Flows  FlowRunner
}

// WorkDetail bundles a work with its surroundings for the detail view.
type WorkDetail struct {
	Work        schema.Work       `json:"work"`
	Creator     schema.Agent      `json:"creator"`
	Derivatives []schema.Work     `json:"derivatives"`
	Purchases   []schema.Purchase `json:"purchases"`
	Ancestry    []schema.Work     `json:"ancestry"`
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// statusOf maps a ledger error code to an HTTP status.
func statusOf(code string) int {
	switch code {
	case schema.CodeNotFound, schema.CodeWorkNotFound:
		return http.StatusNotFound
	case schema.CodeValidation:
		return http.StatusUnprocessableEntity
	case schema.CodeSelfPurchase:
		return http.StatusConflict
	case schema.CodeLicenseViolation:
		return http.StatusForbidden
	case schema.CodeInvalidParent:
		return http.StatusBadRequest
	case schema.CodeGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := schema.CodeOf(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Errors
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusOf(code), resp)
}

// bindError reports a malformed request body.
func bindError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: schema.CodeValidation})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, schema.NewValidationError(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) ListWorks(c *gin.Context) {
	var f schema.WorkFilter
	var errs []schema.FieldError

	if v := c.Query("creator"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, schema.FieldError{Field: "creator", Message: "must be an integer"})
		}
		f.CreatorAgentID = id
	}
	if v := c.Query("style"); v != "" {
		st, ok := schema.ParseStyle(v)
		if !ok {
			errs = append(errs, schema.FieldError{Field: "style", Message: "unknown style"})
		}
		f.Style = st
	}
	f.Tag = c.Query("tag")
	switch s := schema.SortOrder(c.DefaultQuery("sort", string(schema.SortCreated))); s {
	case schema.SortCreated, schema.SortNewest:
		f.Sort = s
	default:
		errs = append(errs, schema.FieldError{Field: "sort", Message: "must be created or newest"})
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, schema.FieldError{Field: "limit", Message: "must be a non-negative integer"})
		}
		f.Limit = n
	}
	if len(errs) > 0 {
		writeError(c, &schema.ValidationError{Errors: errs})
		return
	}

	works, err := h.Ledger.ListWorks(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, works)
}

func (h *Handler) CreateWork(c *gin.Context) {
	var in schema.CreateWorkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	w, err := h.Ledger.CreateWork(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWork(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	w, err := h.Ledger.GetWork(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	derivatives, err := h.Ledger.ListDerivatives(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	purchases, err := h.Ledger.PurchasesOfWork(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	ancestry, err := h.Ledger.AncestryChain(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, WorkDetail{
		Work:        w,
		Creator:     h.creator(w.CreatorAgentID),
		Derivatives: derivatives,
		Purchases:   purchases,
		Ancestry:    ancestry,
	})
}

// creator falls back to a placeholder for agents the directory does not know.
func (h *Handler) creator(id int64) schema.Agent {
	a, err := h.Agents.Agent(id)
	if err != nil {
		return schema.Agent{ID: id, Name: h.Agents.NameOf(id)}
	}
	return a
}

type purchaseBody struct {
	BuyerAgentID int64  `json:"buyer_agent_id"`
	Purpose      string `json:"purpose"`
}

func (h *Handler) PurchaseWork(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body purchaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Ledger.Purchase(c.Request.Context(), id, body.BuyerAgentID, body.Purpose)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Ancestry(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.AncestryChain(ctx, id) })
}

func (h *Handler) Root(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.RootOf(ctx, id) })
}

func (h *Handler) Derivatives(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.ListDerivatives(ctx, id) })
}

func (h *Handler) WorkPurchases(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.PurchasesOfWork(ctx, id) })
}

func (h *Handler) AgentRevenue(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.RevenueOf(ctx, id) })
}

func (h *Handler) AgentStats(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.StatsOf(ctx, id) })
}

func (h *Handler) AgentPurchases(c *gin.Context) {
	h.byID(c, func(ctx context.Context, id int64) (any, error) { return h.Ledger.PurchasesByBuyer(ctx, id) })
}

// byID runs a single-id lookup and writes its result.
func (h *Handler) byID(c *gin.Context, fn func(ctx context.Context, id int64) (any, error)) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	v, err := fn(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) MarketplaceStats(c *gin.Context) {
	stats, err := h.Ledger.MarketplaceStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, h.Agents.Agents())
}

func (h *Handler) GetAgent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, err := h.Agents.Agent(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
