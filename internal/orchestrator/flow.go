package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Flow kinds, used as metric labels.
const (
	KindCreate   = "create"
	KindMusic    = "music"
	KindDerive   = "derive"
	KindPurchase = "purchase"
	KindSimulate = "simulate"
)

// Flow outcomes.
const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Flow is one running orchestration. Its events arrive in order on an
// unbuffered channel that is closed when the flow ends; a consumer must
// either drain Events or cancel the context passed to the flow.
type Flow struct {
	id     string
	kind   string
	ctx    context.Context
	events chan Event
	now    func() time.Time
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	seq       int
	agentID   int64
	agentName string
}

func newFlow(ctx context.Context, kind string, now func() time.Time, log zerolog.Logger) *Flow {
	id := uuid.NewString()
	return &Flow{
		id:     id,
		kind:   kind,
		ctx:    ctx,
		events: make(chan Event),
		now:    now,
		log:    log.With().Str("flow_id", id).Str("flow", kind).Logger(),
		state:  StateIdle,
	}
}

// ID returns the flow's unique id.
func (f *Flow) ID() string { return f.id }

// Kind returns the flow kind.
func (f *Flow) Kind() string { return f.kind }

// Events returns the flow's event stream.
func (f *Flow) Events() <-chan Event { return f.events }

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// actAs sets the agent reported on subsequent events.
func (f *Flow) actAs(id int64, name string) {
	f.mu.Lock()
	f.agentID, f.agentName = id, name
	f.mu.Unlock()
}

func (f *Flow) transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !CanTransition(f.state, to) {
		return &InvalidTransitionError{From: f.state, To: to}
	}
	f.state = to
	return nil
}

// enter transitions to state and emits ev from it.
func (f *Flow) enter(to State, ev Event) error {
	if err := f.transition(to); err != nil {
		return err
	}
	return f.emit(ev)
}

// emit stamps ev and delivers it. It returns the context error if the
// consumer went away first.
func (f *Flow) emit(ev Event) error {
	f.mu.Lock()
	f.seq++
	ev.FlowID = f.id
	ev.Seq = f.seq
	ev.State = f.state
	if ev.AgentName == "" {
		ev.AgentID, ev.AgentName = f.agentID, f.agentName
	}
	ev.Timestamp = f.now().UTC()
	f.mu.Unlock()

	select {
	case f.events <- ev:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

// run executes body and finishes the stream with flow-complete or error.
func (f *Flow) run(body func() error, done func(outcome string)) {
	defer close(f.events)

	f.log.Info().Msg("flow started")
	err := body()
	switch {
	case err == nil:
		if err = f.transition(StateComplete); err == nil {
			if f.emit(Event{Type: EventFlowComplete, Content: "flow complete"}) != nil {
				done(OutcomeCancelled)
				return
			}
			f.log.Info().Msg("flow complete")
			done(OutcomeComplete)
			return
		}
	case f.ctx.Err() != nil:
		f.log.Info().Str("state", string(f.State())).Msg("flow cancelled")
		done(OutcomeCancelled)
		return
	}

	code := schema.CodeOf(err)
	f.log.Warn().Err(err).Str("code", code).Str("state", string(f.State())).Msg("flow failed")
	_ = f.transition(StateError)
	_ = f.emit(Event{Type: EventError, Content: err.Error(), Code: code})
	done(OutcomeError)
}
