package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/config"
	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/internal/identity"
	"github.com/celerix-dev/celerix-market/internal/metrics"
	"github.com/celerix-dev/celerix-market/internal/orchestrator"
	"github.com/celerix-dev/celerix-market/internal/textgen"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

func setupTestRouter(rl config.RateLimitConfig) (*gin.Engine, *engine.MemLedger) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	ledger := engine.NewMemLedger(engine.WithObserver(m))
	agents := identity.NewDirectory([]schema.Agent{
		{ID: 1, Name: "OracleBot"},
		{ID: 2, Name: "TranslateAgent"},
		{ID: 3, Name: "AnalystAgent"},
	})
	flows := orchestrator.New(ledger, agents, textgen.NewScripted(),
		orchestrator.WithStepPause(0),
		orchestrator.WithRand(func(int) int { return 0 }),
		orchestrator.WithMetrics(m),
	)
	h := &Handler{Ledger: ledger, Agents: agents, Flows: flows}
	r := NewRouter(h, RouterConfig{RateLimit: rl, Metrics: m.Handler(), Log: zerolog.Nop()})
	return r, ledger
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetWork(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})

	w := do(r, "POST", "/api/works", `{"creator_agent_id":3,"title":"Dawn","style":"poem","license":"open","price":50,"tags":["web4"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, "POST", "/api/works", `{"creator_agent_id":2,"title":"Dawn Haiku","style":"haiku","license":"commercial","price":"45.00","parent_id":1}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/works/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var detail WorkDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Creator.Name != "AnalystAgent" {
		t.Errorf("Expected creator AnalystAgent, got %q", detail.Creator.Name)
	}
	if len(detail.Derivatives) != 1 || detail.Derivatives[0].ID != 2 {
		t.Errorf("Expected derivative 2, got %v", detail.Derivatives)
	}
	if detail.Work.DerivativeCount != 1 {
		t.Errorf("Expected derivative count 1, got %d", detail.Work.DerivativeCount)
	}
	if len(detail.Ancestry) != 1 || len(detail.Purchases) != 0 {
		t.Errorf("Unexpected ancestry %v / purchases %v", detail.Ancestry, detail.Purchases)
	}
}

func TestPurchaseSplitsRevenue(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	do(r, "POST", "/api/works", `{"creator_agent_id":3,"title":"A","style":"poem","license":"open","price":50}`)
	do(r, "POST", "/api/works", `{"creator_agent_id":2,"title":"B","style":"haiku","license":"open","price":45,"parent_id":1}`)

	w := do(r, "POST", "/api/works/2/purchase", `{"buyer_agent_id":3,"purpose":"research"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"recipient_agent_id":2,"work_id":2,"amount":31.50,"kind":"sale"`) {
		t.Errorf("Expected sale entry of 31.50, got %s", body)
	}
	if !strings.Contains(body, `"recipient_agent_id":3,"work_id":2,"amount":13.50,"kind":"derivative-royalty"`) {
		t.Errorf("Expected royalty entry of 13.50, got %s", body)
	}

	w = do(r, "GET", "/api/agents/3/stats", "")
	if got := w.Body.String(); got != `{"agent_id":3,"total_earned":13.50,"sales_count":0,"royalties_count":1,"royalties_earned":13.50}` {
		t.Errorf("Unexpected stats %s", got)
	}

	w = do(r, "GET", "/api/stats", "")
	if !strings.Contains(w.Body.String(), `"total_volume":45.00`) {
		t.Errorf("Unexpected market stats %s", w.Body.String())
	}

	w = do(r, "GET", "/api/agents/3/purchases", "")
	var purchases []schema.Purchase
	json.Unmarshal(w.Body.Bytes(), &purchases)
	if len(purchases) != 1 || purchases[0].WorkID != 2 {
		t.Errorf("Expected one purchase of work 2, got %v", purchases)
	}
}

func TestErrorStatuses(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	do(r, "POST", "/api/works", `{"creator_agent_id":1,"title":"Solo","style":"haiku","license":"exclusive","price":60}`)

	cases := []struct {
		method, path, body string
		status             int
		code               string
	}{
		{"GET", "/api/works/9", "", http.StatusNotFound, schema.CodeWorkNotFound},
		{"GET", "/api/works/abc", "", http.StatusUnprocessableEntity, schema.CodeValidation},
		{"GET", "/api/works?sort=oldest", "", http.StatusUnprocessableEntity, schema.CodeValidation},
		{"GET", "/api/agents/9", "", http.StatusNotFound, schema.CodeNotFound},
		{"POST", "/api/works/1/purchase", `{"buyer_agent_id":1,"purpose":"x"}`, http.StatusConflict, schema.CodeSelfPurchase},
		{"POST", "/api/works/1/purchase", `{"buyer_agent_id":2}`, http.StatusUnprocessableEntity, schema.CodeValidation},
		{"POST", "/api/works/7/purchase", `{"buyer_agent_id":2,"purpose":"x"}`, http.StatusNotFound, schema.CodeWorkNotFound},
		{"POST", "/api/works", `{"creator_agent_id":2,"title":"t","style":"poem","license":"open","price":1,"parent_id":1}`, http.StatusForbidden, schema.CodeLicenseViolation},
		{"POST", "/api/works", `{"creator_agent_id":2,"title":"t","style":"poem","license":"open","price":1,"parent_id":5}`, http.StatusBadRequest, schema.CodeInvalidParent},
		{"POST", "/api/works", `{"creator_agent_id":2,"title":"","style":"sonnet","license":"open","price":0}`, http.StatusUnprocessableEntity, schema.CodeValidation},
		{"POST", "/api/works", `{"price":1.001}`, http.StatusBadRequest, schema.CodeValidation},
		{"POST", "/api/works", `not json`, http.StatusBadRequest, schema.CodeValidation},
		{"GET", "/api/nowhere", "", http.StatusNotFound, schema.CodeNotFound},
	}
	for _, tc := range cases {
		w := do(r, tc.method, tc.path, tc.body)
		if w.Code != tc.status {
			t.Errorf("%s %s: expected status %d, got %d: %s", tc.method, tc.path, tc.status, w.Code, w.Body.String())
			continue
		}
		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Errorf("%s %s: bad error body %q", tc.method, tc.path, w.Body.String())
			continue
		}
		if resp.Code != tc.code {
			t.Errorf("%s %s: expected code %s, got %s", tc.method, tc.path, tc.code, resp.Code)
		}
	}
}

func TestValidationErrorListsFields(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	w := do(r, "POST", "/api/works", `{"creator_agent_id":0,"title":" ","style":"poem","license":"open","price":5}`)

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Fields) != 2 {
		t.Fatalf("Expected 2 field errors, got %v", resp.Fields)
	}
	if resp.Fields[0].Field != "creator_agent_id" || resp.Fields[1].Field != "title" {
		t.Errorf("Unexpected fields %v", resp.Fields)
	}
}

func TestListWorksFilters(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	do(r, "POST", "/api/works", `{"creator_agent_id":1,"title":"One","style":"poem","license":"open","price":10,"tags":["a"]}`)
	do(r, "POST", "/api/works", `{"creator_agent_id":2,"title":"Two","style":"generative-svg","license":"open","price":10,"tags":["a","b"]}`)
	do(r, "POST", "/api/works", `{"creator_agent_id":1,"title":"Three","style":"poem","license":"open","price":10}`)

	titles := func(path string) []string {
		w := do(r, "GET", path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var works []schema.Work
		json.Unmarshal(w.Body.Bytes(), &works)
		out := make([]string, 0, len(works))
		for _, wk := range works {
			out = append(out, wk.Title)
		}
		return out
	}

	cases := map[string]string{
		"/api/works":                          "One,Two,Three",
		"/api/works?sort=newest":              "Three,Two,One",
		"/api/works?sort=newest&limit=1":      "Three",
		"/api/works?creator=1":                "One,Three",
		"/api/works?tag=a":                    "One,Two",
		"/api/works?style=generative-svg":     "Two",
		"/api/works?style=generative-diagram": "Two",
	}
	for path, want := range cases {
		if got := strings.Join(titles(path), ","); got != want {
			t.Errorf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestLineageRoutes(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	do(r, "POST", "/api/works", `{"creator_agent_id":1,"title":"Root","style":"poem","license":"open","price":10}`)
	do(r, "POST", "/api/works", `{"creator_agent_id":2,"title":"Mid","style":"poem","license":"open","price":10,"parent_id":1}`)
	do(r, "POST", "/api/works", `{"creator_agent_id":3,"title":"Leaf","style":"poem","license":"open","price":10,"parent_id":2}`)

	w := do(r, "GET", "/api/works/3/ancestry", "")
	var chain []schema.Work
	json.Unmarshal(w.Body.Bytes(), &chain)
	if len(chain) != 3 || chain[0].ID != 1 || chain[2].ID != 3 {
		t.Errorf("Expected chain 1,2,3, got %v", chain)
	}

	w = do(r, "GET", "/api/works/3/root", "")
	var root schema.Work
	json.Unmarshal(w.Body.Bytes(), &root)
	if root.ID != 1 {
		t.Errorf("Expected root 1, got %d", root.ID)
	}

	w = do(r, "GET", "/api/works/1/derivatives", "")
	var kids []schema.Work
	json.Unmarshal(w.Body.Bytes(), &kids)
	if len(kids) != 1 || kids[0].ID != 2 {
		t.Errorf("Expected derivative 2, got %v", kids)
	}
}

func TestAgents(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	w := do(r, "GET", "/api/agents", "")
	var agents []schema.Agent
	json.Unmarshal(w.Body.Bytes(), &agents)
	if len(agents) != 3 || agents[0].Name != "OracleBot" {
		t.Errorf("Unexpected agents %v", agents)
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})

	req, _ := http.NewRequest("GET", "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected echoed request id, got %q", got)
	}

	w = do(r, "GET", "/healthz", "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request id")
	}

	w = do(r, "OPTIONS", "/api/works", "")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Unexpected preflight response %d %v", w.Code, w.Header())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	do(r, "POST", "/api/works", `{"creator_agent_id":1,"title":"One","style":"poem","license":"open","price":10}`)

	w := do(r, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `celerix_market_works_created_total{lineage="original",style="poem"} 1`) {
		t.Errorf("Expected works_created counter, got:\n%s", w.Body.String())
	}
}

func readStream(t *testing.T, srv *httptest.Server, method, path, body string) (string, *http.Response) {
	t.Helper()
	req, _ := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data), resp
}

func TestSimulateStream(t *testing.T) {
	r, ledger := setupTestRouter(config.RateLimitConfig{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	body, resp := readStream(t, srv, "GET", "/api/flows/simulate", "")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected event stream, got %q", ct)
	}
	if resp.Header.Get(FlowIDHeader) == "" {
		t.Error("Expected a flow id header")
	}
	for _, ev := range []string{"creation-start", "derivative-complete", "revenue-distributed", "music-generation-complete", "flow-complete"} {
		if !strings.Contains(body, "event:"+ev+"\n") {
			t.Errorf("Expected %s event in stream", ev)
		}
	}
	if ledger.Len() != 3 {
		t.Errorf("Expected 3 works after simulation, got %d", ledger.Len())
	}
}

func TestFlowStreamReportsErrors(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	body, _ := readStream(t, srv, "POST", "/api/flows/purchase", `{"work_id":5,"buyer_agent_id":1,"purpose":"x"}`)
	if !strings.Contains(body, "event:error\n") || !strings.Contains(body, `"code":"work_not_found"`) {
		t.Errorf("Expected work_not_found error event, got %s", body)
	}

	body, _ = readStream(t, srv, "POST", "/api/flows/create", `{"creator_agent_id":1,"theme":"tides","style":"haiku"}`)
	if !strings.Contains(body, "event:creation-complete\n") || !strings.Contains(body, "event:flow-complete\n") {
		t.Errorf("Expected a completed create flow, got %s", body)
	}
}

func TestFlowRateLimit(t *testing.T) {
	r, _ := setupTestRouter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1})

	if w := do(r, "POST", "/api/flows/create", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for first request, got %d", w.Code)
	}
	w := do(r, "POST", "/api/flows/create", `not json`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	// non-flow routes are not limited
	if w := do(r, "GET", "/api/works", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
