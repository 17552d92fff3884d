package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/internal/identity"
	"github.com/celerix-dev/celerix-market/internal/music"
	"github.com/celerix-dev/celerix-market/internal/textgen"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

type fakeGen struct {
	chunks    []string
	title     string
	streamErr error
	titleErr  error
	models    []string
}

func (g *fakeGen) Stream(ctx context.Context, req textgen.Request, onChunk func(string) error) (string, error) {
	g.models = append(g.models, req.Model)
	if g.streamErr != nil {
		return "", g.streamErr
	}
	var b strings.Builder
	for _, c := range g.chunks {
		if err := onChunk(c); err != nil {
			return b.String(), err
		}
		b.WriteString(c)
	}
	return b.String(), nil
}

func (g *fakeGen) Complete(ctx context.Context, req textgen.Request) (string, error) {
	return g.title, g.titleErr
}

type fakeMusic struct {
	available bool
	res       music.Result
	err       error
	got       []music.Request
}

func (m *fakeMusic) Available(context.Context) bool { return m.available }

func (m *fakeMusic) Generate(_ context.Context, req music.Request) (music.Result, error) {
	m.got = append(m.got, req)
	return m.res, m.err
}

type fakeMetrics struct {
	done chan string
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{done: make(chan string, 8)} }

func (m *fakeMetrics) FlowStarted(kind string) func(string) {
	return func(outcome string) { m.done <- kind + ":" + outcome }
}

type harness struct {
	ledger  *engine.MemLedger
	gen     *fakeGen
	music   *fakeMusic
	metrics *fakeMetrics
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:  engine.NewMemLedger(),
		gen:     &fakeGen{chunks: []string{"dawn ", "over ", "the chain"}, title: "「Dawn Chain」"},
		music:   &fakeMusic{},
		metrics: newFakeMetrics(),
	}
	agents := identity.NewDirectory([]schema.Agent{
		{ID: 1, Name: "OracleBot"},
		{ID: 2, Name: "TranslateAgent"},
		{ID: 3, Name: "AnalystAgent", Model: "analyst-model"},
	})
	h.orch = New(h.ledger, agents, h.gen,
		WithMusic(h.music),
		WithMetrics(h.metrics),
		WithRand(func(int) int { return 0 }),
		WithStepPause(0),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }),
	)
	return h
}

func collect(t *testing.T, f *Flow) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-f.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("flow did not finish")
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestCreateFlow(t *testing.T) {
	h := newHarness(t)
	f := h.orch.Create(context.Background(), CreateRequest{
		CreatorAgentID: 3,
		Theme:          "autonomy",
		Style:          schema.StylePoem,
	})
	events := collect(t, f)

	assert.Equal(t, []EventType{
		EventCreationStart,
		EventCreationDelta, EventCreationDelta, EventCreationDelta,
		EventCreationComplete,
		EventFlowComplete,
	}, types(events))
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
		assert.Equal(t, f.ID(), ev.FlowID)
		assert.Equal(t, "AnalystAgent", ev.AgentName)
	}
	assert.Equal(t, StateGeneratingContent, events[1].State)
	assert.Equal(t, StateRegisteringWork, events[4].State)
	assert.Equal(t, StateComplete, events[5].State)
	assert.Equal(t, StateComplete, f.State())
	assert.Equal(t, "create:complete", <-h.metrics.done)

	done := events[4]
	assert.Equal(t, "dawn over the chain", done.Content)
	w, err := h.ledger.GetWork(context.Background(), done.WorkID)
	require.NoError(t, err)
	assert.Equal(t, "Dawn Chain", w.Title)
	assert.Equal(t, schema.Units(OriginalPriceMin), w.Price)
	assert.Equal(t, schema.LicenseCommercial, w.License)
	assert.Equal(t, []string{"poem", "autonomy"}, w.Tags)
	assert.Equal(t, []string{"analyst-model"}, h.gen.models)
}

func TestCreateFlowGenerationFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.streamErr = errors.New("model offline")

	events := collect(t, h.orch.Create(context.Background(), CreateRequest{
		CreatorAgentID: 1, Theme: "x", Style: schema.StyleHaiku,
	}))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, StateError, last.State)
	assert.Equal(t, schema.CodeGeneration, last.Code)
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, "create:error", <-h.metrics.done)
}

func TestCreateFlowTitleFailureRegistersNothing(t *testing.T) {
	h := newHarness(t)
	h.gen.titleErr = errors.New("timeout")

	events := collect(t, h.orch.Create(context.Background(), CreateRequest{
		CreatorAgentID: 1, Theme: "x", Style: schema.StyleHaiku,
	}))
	assert.Equal(t, schema.CodeGeneration, events[len(events)-1].Code)
	assert.Equal(t, 0, h.ledger.Len())
}

func TestCreateFlowRejectsBadRequest(t *testing.T) {
	h := newHarness(t)

	events := collect(t, h.orch.Create(context.Background(), CreateRequest{CreatorAgentID: 1, Style: "sonnet"}))
	require.Len(t, events, 1)
	assert.Equal(t, schema.CodeValidation, events[0].Code)

	events = collect(t, h.orch.Create(context.Background(), CreateRequest{CreatorAgentID: 99, Theme: "x", Style: schema.StylePoem}))
	require.Len(t, events, 1)
	assert.Equal(t, schema.CodeNotFound, events[0].Code)
}

func seedParent(t *testing.T, h *harness, creator int64, license schema.License) schema.Work {
	t.Helper()
	w, err := h.ledger.CreateWork(context.Background(), schema.CreateWorkInput{
		CreatorAgentID: creator,
		Title:          "Source",
		Content:        "source text",
		Style:          schema.StylePoem,
		License:        license,
		Tags:           []string{"poem", "dawn"},
		Price:          schema.Units(50),
	})
	require.NoError(t, err)
	return w
}

func TestDeriveFlow(t *testing.T) {
	h := newHarness(t)
	parent := seedParent(t, h, 3, schema.LicenseOpen)

	events := collect(t, h.orch.Derive(context.Background(), DeriveRequest{
		CreatorAgentID: 2,
		ParentID:       parent.ID,
		Style:          schema.StyleHaiku,
		Transform:      "as haiku",
	}))

	assert.Equal(t, []EventType{
		EventPurchaseStart,
		EventPurchaseComplete,
		EventRevenueDistributed,
		EventDerivativeStart,
		EventDerivativeDelta, EventDerivativeDelta, EventDerivativeDelta,
		EventDerivativeComplete,
		EventFlowComplete,
	}, types(events))

	assert.Equal(t, StatePurchasingParent, events[0].State)
	assert.Equal(t, StateRevenueDistributing, events[1].State)
	assert.Equal(t, []RevenueDetail{{
		RecipientAgentID: 3, RecipientName: "AnalystAgent",
		Amount: schema.Units(50), Kind: schema.RevenueSale,
	}}, events[1].Revenue)
	assert.Equal(t, "System", events[2].AgentName)
	assert.Equal(t, "TranslateAgent", events[3].AgentName)

	child, err := h.ledger.GetWork(context.Background(), events[7].WorkID)
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, schema.StyleHaiku, child.Style)
	assert.Equal(t, schema.Units(40), child.Price)
	assert.Equal(t, []string{"poem", "dawn", "derivative", "haiku"}, child.Tags)

	purchases, err := h.ledger.PurchasesOfWork(context.Background(), parent.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(2), purchases[0].BuyerAgentID)

	p, err := h.ledger.GetWork(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.DerivativeCount)
}

func TestDeriveFromExclusiveParent(t *testing.T) {
	h := newHarness(t)
	parent := seedParent(t, h, 3, schema.LicenseExclusive)

	events := collect(t, h.orch.Derive(context.Background(), DeriveRequest{
		CreatorAgentID: 2, ParentID: parent.ID, Transform: "remix",
	}))
	require.Len(t, events, 1)
	assert.Equal(t, schema.CodeLicenseViolation, events[0].Code)

	purchases, err := h.ledger.PurchasesOfWork(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Empty(t, purchases)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestDeriveFromOwnWorkSkipsPurchase(t *testing.T) {
	h := newHarness(t)
	parent := seedParent(t, h, 2, schema.LicenseOpen)

	events := collect(t, h.orch.Derive(context.Background(), DeriveRequest{
		CreatorAgentID: 2, ParentID: parent.ID, Transform: "second take",
	}))
	assert.Equal(t, EventDerivativeStart, events[0].Type)
	assert.Equal(t, EventFlowComplete, events[len(events)-1].Type)

	purchases, err := h.ledger.PurchasesOfWork(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Empty(t, purchases)
	assert.Equal(t, 2, h.ledger.Len())
}

func TestDeriveFromMissingParent(t *testing.T) {
	h := newHarness(t)
	events := collect(t, h.orch.Derive(context.Background(), DeriveRequest{
		CreatorAgentID: 2, ParentID: 42, Transform: "remix",
	}))
	require.Len(t, events, 1)
	assert.Equal(t, schema.CodeWorkNotFound, events[0].Code)
}

func TestPurchaseFlow(t *testing.T) {
	h := newHarness(t)
	w := seedParent(t, h, 3, schema.LicenseOpen)

	events := collect(t, h.orch.Purchase(context.Background(), PurchaseRequest{
		WorkID: w.ID, BuyerAgentID: 1, Purpose: "research",
	}))
	assert.Equal(t, []EventType{
		EventPurchaseStart, EventPurchaseComplete, EventRevenueDistributed, EventFlowComplete,
	}, types(events))
	assert.Equal(t, "OracleBot", events[0].AgentName)
	assert.Equal(t, schema.Units(50), events[1].Price)

	events = collect(t, h.orch.Purchase(context.Background(), PurchaseRequest{
		WorkID: w.ID, BuyerAgentID: 3, Purpose: "vanity",
	}))
	last := events[len(events)-1]
	assert.Equal(t, schema.CodeSelfPurchase, last.Code)
	assert.Equal(t, StateError, last.State)
}

func TestMusicFlowWithoutServer(t *testing.T) {
	h := newHarness(t)

	events := collect(t, h.orch.CreateMusic(context.Background(), MusicRequest{
		CreatorAgentID: 1,
		Theme:          "ledgers",
		MusicPrompt:    "lo-fi study beats in D major",
	}))

	assert.Equal(t, []EventType{
		EventCreationStart,
		EventCreationDelta, EventCreationDelta, EventCreationDelta,
		EventMusicGenerationStart,
		EventError,
		EventMusicGenerationComplete,
		EventCreationComplete,
		EventFlowComplete,
	}, types(events))
	assert.Empty(t, h.music.got)

	notice := events[5]
	assert.Equal(t, schema.CodeGeneration, notice.Code)
	assert.Equal(t, StateGeneratingContent, notice.State)
	assert.Contains(t, notice.Content, "unavailable")

	w, err := h.ledger.GetWork(context.Background(), events[7].WorkID)
	require.NoError(t, err)
	assert.Equal(t, schema.StyleMusic, w.Style)
	assert.Equal(t, schema.Units(MusicPriceMin), w.Price)
	require.NotNil(t, w.Music)
	assert.Equal(t, schema.MusicMetadata{
		Genre: "lo-fi", BPM: 75, DurationSeconds: DefaultMusicDuration, Key: "D",
		Lyrics: "dawn over the chain",
	}, *w.Music)
	assert.Equal(t, []string{"music", "lo-fi", "ledgers"}, w.Tags)
}

func TestMusicFlowWithAudio(t *testing.T) {
	h := newHarness(t)
	h.music.available = true
	h.music.res = music.Result{AudioURL: "http://music/file=a.wav", DurationSeconds: 45}

	events := collect(t, h.orch.CreateMusic(context.Background(), MusicRequest{
		CreatorAgentID:  1,
		Theme:           "ledgers",
		MusicPrompt:     "electronic ambient",
		DurationSeconds: 45,
	}))
	require.Len(t, h.music.got, 1)
	assert.Equal(t, "dawn over the chain", h.music.got[0].Lyrics)
	assert.Equal(t, 45, h.music.got[0].DurationSeconds)

	complete := events[len(events)-2]
	require.Equal(t, EventCreationComplete, complete.Type)
	require.NotNil(t, complete.Music)
	assert.Equal(t, "http://music/file=a.wav", complete.Music.AudioURL)
}

func TestMusicFlowServerErrorIsInformational(t *testing.T) {
	h := newHarness(t)
	h.music.available = true
	h.music.err = errors.New("gpu busy")

	events := collect(t, h.orch.CreateMusic(context.Background(), MusicRequest{
		CreatorAgentID: 1, Theme: "ledgers", MusicPrompt: "jazz",
	}))

	var info *Event
	for i := range events {
		if events[i].Type == EventError {
			info = &events[i]
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, StateGeneratingContent, info.State)
	assert.Equal(t, schema.CodeGeneration, info.Code)
	assert.Equal(t, EventFlowComplete, events[len(events)-1].Type)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestSimulate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	events := collect(t, h.orch.Simulate(ctx, DefaultScenario()))
	require.Equal(t, EventFlowComplete, events[len(events)-1].Type, "events: %v", types(events))
	assert.Equal(t, "simulate:complete", <-h.metrics.done)

	stats, err := h.ledger.MarketplaceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalWorks)
	assert.Equal(t, int64(3), stats.TotalPurchases)
	assert.Equal(t, int64(1), stats.TotalDerivatives)

	// poem 20 sold to the deriver, haiku 15 sold to OracleBot (10.50 + 4.50
	// royalty), track 40 sold to TranslateAgent
	analyst, err := h.ledger.StatsOf(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, schema.Amount(2450), analyst.TotalEarned)
	assert.Equal(t, int64(1), analyst.RoyaltiesCount)

	translator, err := h.ledger.StatsOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, schema.Amount(1050), translator.TotalEarned)

	oracle, err := h.ledger.StatsOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, schema.Units(40), oracle.TotalEarned)
}

func TestCancellationStopsEmitting(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	f := h.orch.Create(ctx, CreateRequest{CreatorAgentID: 1, Theme: "x", Style: schema.StylePoem})
	first := <-f.Events()
	assert.Equal(t, EventCreationStart, first.Type)

	cancel()
	select {
	case outcome := <-h.metrics.done:
		assert.Equal(t, "create:cancelled", outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("flow did not stop")
	}
	_, open := <-f.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.ledger.Len())
}

func TestCancellationKeepsCommittedWrites(t *testing.T) {
	h := newHarness(t)
	parent := seedParent(t, h, 3, schema.LicenseOpen)
	ctx, cancel := context.WithCancel(context.Background())

	f := h.orch.Derive(ctx, DeriveRequest{CreatorAgentID: 2, ParentID: parent.ID, Transform: "x"})
	<-f.Events() // purchase-start
	second := <-f.Events()
	require.Equal(t, EventPurchaseComplete, second.Type)
	cancel()
	<-h.metrics.done

	purchases, err := h.ledger.PurchasesOfWork(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateGeneratingContent, true},
		{StateIdle, StatePurchasingParent, true},
		{StateIdle, StateRegisteringWork, false},
		{StateGeneratingContent, StateContentComplete, true},
		{StateGeneratingContent, StateRegisteringWork, false},
		{StateContentComplete, StateRegisteringWork, true},
		{StateRegisteringWork, StateComplete, true},
		{StatePurchasingParent, StateRevenueDistributing, true},
		{StateRevenueDistributing, StateGeneratingContent, true},
		{StateRegisteringWork, StateError, true},
		{StateComplete, StateError, false},
		{StateError, StateIdle, false},
		{StateComplete, StateGeneratingContent, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Dawn", CleanTitle("  「Dawn」 \n"))
	assert.Equal(t, "Quoted", CleanTitle(`"Quoted"`))
	assert.Equal(t, "Book", CleanTitle("『Book』"))
	assert.Equal(t, UntitledTitle, CleanTitle(" 「」 "))
	long := strings.Repeat("あ", 40)
	assert.Equal(t, strings.Repeat("あ", MaxTitleRunes), CleanTitle(long))
}

func TestPricing(t *testing.T) {
	o := New(nil, nil, nil, WithRand(func(n int) int { return n - 1 }))
	assert.Equal(t, schema.Units(79), o.OriginalPrice())
	assert.Equal(t, schema.Units(99), o.MusicPrice())
	assert.Equal(t, schema.Units(69), o.DerivativePrice(schema.Units(50)))

	o = New(nil, nil, nil, WithRand(func(int) int { return 0 }))
	assert.Equal(t, schema.Units(DerivativePriceMin), o.DerivativePrice(schema.Units(20)))
	assert.Equal(t, schema.Amount(4050), o.DerivativePrice(schema.Amount(5050)))
}
