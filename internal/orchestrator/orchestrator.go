// Package orchestrator drives multi-step creative flows: generate content,
// register works, purchase parents and report revenue, as a cancellable
// stream of events. Every ledger mutation goes through the ledger's own
// operations; the orchestrator holds no marketplace state.
package orchestrator

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/music"
	"github.com/celerix-dev/celerix-market/internal/textgen"
	"github.com/celerix-dev/celerix-market/pkg/schema"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

// Ledger is the part of the ledger the orchestrator drives.
type Ledger interface {
	sdk.WorkReader
	sdk.WorkWriter
	sdk.Purchaser
}

// Directory resolves agents.
type Directory interface {
	Agent(id int64) (schema.Agent, error)
	NameOf(id int64) string
	ModelConfigOf(id int64) (schema.ModelConfig, bool)
}

// FlowMetrics records flow lifecycles.
type FlowMetrics interface {
	FlowStarted(kind string) func(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) FlowStarted(string) func(string) { return func(string) {} }

// Pricing bounds, in whole units.
const (
	OriginalPriceMin   = 20
	OriginalPriceSpan  = 60
	MusicPriceMin      = 40
	MusicPriceSpan     = 60
	DerivativePriceMin = 15
	DerivativeDiscount = 10
	DerivativeSpan     = 30
)

// MaxTitleRunes caps generated titles.
const MaxTitleRunes = 30

// UntitledTitle replaces a title that is empty after cleanup.
const UntitledTitle = "Untitled"

// DefaultMusicDuration is used when neither request nor client sets one.
const DefaultMusicDuration = 60

// Orchestrator starts flows against a ledger.
type Orchestrator struct {
	ledger  Ledger
	agents  Directory
	gen     textgen.Generator
	music   music.Generator
	metrics FlowMetrics
	log     zerolog.Logger
	intn    func(n int) int
	now     func() time.Time
	pause   time.Duration

	musicDuration int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMusic enables audio generation for music flows.
func WithMusic(g music.Generator) Option {
	return func(o *Orchestrator) { o.music = g }
}

// WithMetrics records flow metrics.
func WithMetrics(m FlowMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l.With().Str("component", "orchestrator").Logger() }
}

// WithRand replaces the random source used for pricing. intn must return a
// value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(o *Orchestrator) { o.intn = intn }
}

// WithClock sets the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStepPause sets the delay between simulation steps.
func WithStepPause(d time.Duration) Option {
	return func(o *Orchestrator) { o.pause = d }
}

// WithMusicDuration sets the default track length in seconds.
func WithMusicDuration(seconds int) Option {
	return func(o *Orchestrator) { o.musicDuration = seconds }
}

// New creates an Orchestrator.
func New(l Ledger, agents Directory, gen textgen.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:        l,
		agents:        agents,
		gen:           gen,
		metrics:       nopMetrics{},
		log:           zerolog.Nop(),
		intn:          rand.IntN,
		now:           time.Now,
		pause:         500 * time.Millisecond,
		musicDuration: DefaultMusicDuration,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// start runs body in its own goroutine and returns the flow immediately.
func (o *Orchestrator) start(ctx context.Context, kind string, body func(f *Flow) error) *Flow {
	f := newFlow(ctx, kind, o.now, o.log)
	done := o.metrics.FlowStarted(kind)
	go f.run(func() error { return body(f) }, done)
	return f
}

// sleep waits for the step pause unless ctx ends first.
func (o *Orchestrator) sleep(ctx context.Context) error {
	if o.pause <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OriginalPrice draws a price for an original work.
func (o *Orchestrator) OriginalPrice() schema.Amount {
	return schema.Units(int64(OriginalPriceMin + o.intn(OriginalPriceSpan)))
}

// MusicPrice draws a price for a music work.
func (o *Orchestrator) MusicPrice() schema.Amount {
	return schema.Units(int64(MusicPriceMin + o.intn(MusicPriceSpan)))
}

// DerivativePrice draws a price near the parent's.
func (o *Orchestrator) DerivativePrice(parent schema.Amount) schema.Amount {
	p := parent - schema.Units(DerivativeDiscount) + schema.Units(int64(o.intn(DerivativeSpan)))
	return min(max(p, schema.Units(DerivativePriceMin)), schema.MaxPrice)
}

var titleQuotes = strings.NewReplacer("「", "", "」", "", "『", "", "』", "", `"`, "")

// CleanTitle trims a generated title, strips quote brackets and caps its length.
func CleanTitle(s string) string {
	s = strings.TrimSpace(titleQuotes.Replace(strings.TrimSpace(s)))
	if utf8.RuneCountInString(s) > MaxTitleRunes {
		s = strings.TrimSpace(string([]rune(s)[:MaxTitleRunes]))
	}
	if s == "" {
		return UntitledTitle
	}
	return s
}
