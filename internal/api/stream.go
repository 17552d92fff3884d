package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-market/internal/orchestrator"
)

// FlowIDHeader carries the id of a streamed flow.
const FlowIDHeader = "X-Flow-ID"

// streamFlow relays a flow's events as server-sent events. Each event is
// named after its type and carries the event as JSON. The flow runs on the
// request context, so a client that disconnects cancels it.
func streamFlow(c *gin.Context, f *orchestrator.Flow) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header(FlowIDHeader, f.ID())
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-f.Events()
		if !ok {
			return false
		}
		c.SSEvent(string(ev.Type), ev)
		return true
	})
}

func (h *Handler) CreateFlow(c *gin.Context) {
	var req orchestrator.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	streamFlow(c, h.Flows.Create(c.Request.Context(), req))
}

func (h *Handler) MusicFlow(c *gin.Context) {
	var req orchestrator.MusicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	streamFlow(c, h.Flows.CreateMusic(c.Request.Context(), req))
}

func (h *Handler) DeriveFlow(c *gin.Context) {
	var req orchestrator.DeriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	streamFlow(c, h.Flows.Derive(c.Request.Context(), req))
}

func (h *Handler) PurchaseFlow(c *gin.Context) {
	var req orchestrator.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	streamFlow(c, h.Flows.Purchase(c.Request.Context(), req))
}

// SimulateFlow runs the default scenario, or the scenario in the request body
// when one is posted.
func (h *Handler) SimulateFlow(c *gin.Context) {
	sc := orchestrator.DefaultScenario()
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&sc); err != nil {
			bindError(c, err)
			return
		}
	}
	streamFlow(c, h.Flows.Simulate(c.Request.Context(), sc))
}
