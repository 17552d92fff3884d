package orchestrator

import (
	"fmt"
	"slices"
	"time"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// EventType names a step in a flow's event stream.
type EventType string

const (
	EventCreationStart           EventType = "creation-start"
	EventCreationDelta           EventType = "creation-delta"
	EventCreationComplete        EventType = "creation-complete"
	EventMusicGenerationStart    EventType = "music-generation-start"
	EventMusicGenerationComplete EventType = "music-generation-complete"
	EventPurchaseStart           EventType = "purchase-start"
	EventPurchaseComplete        EventType = "purchase-complete"
	EventDerivativeStart         EventType = "derivative-start"
	EventDerivativeDelta         EventType = "derivative-delta"
	EventDerivativeComplete      EventType = "derivative-complete"
	EventRevenueDistributed      EventType = "revenue-distributed"
	EventFlowComplete            EventType = "flow-complete"
	EventError                   EventType = "error"
)

// State is a flow's position in its state machine.
type State string

const (
	StateIdle                State = "idle"
	StateGeneratingContent   State = "generating-content"
	StateContentComplete     State = "content-complete"
	StateRegisteringWork     State = "registering-work"
	StatePurchasingParent    State = "purchasing-parent"
	StateRevenueDistributing State = "revenue-distributing"
	StateComplete            State = "complete"
	StateError               State = "error"
)

// transitions lists the legal moves out of each non-terminal state. Any
// non-terminal state may also move to StateError.
var transitions = map[State][]State{
	StateIdle:                {StateGeneratingContent, StatePurchasingParent},
	StateGeneratingContent:   {StateContentComplete},
	StateContentComplete:     {StateRegisteringWork},
	StateRegisteringWork:     {StateComplete, StatePurchasingParent, StateGeneratingContent},
	StatePurchasingParent:    {StateRevenueDistributing},
	StateRevenueDistributing: {StateComplete, StatePurchasingParent, StateGeneratingContent},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateComplete || s == StateError }

// CanTransition reports whether a flow in state from may move to state to.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateError {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// InvalidTransitionError is returned when a flow attempts an illegal move.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid flow transition %s -> %s", e.From, e.To)
}

// RevenueDetail is one payout as shown to a stream consumer.
type RevenueDetail struct {
	RecipientAgentID int64              `json:"recipient_agent_id"`
	RecipientName    string             `json:"recipient_name"`
	Amount           schema.Amount      `json:"amount"`
	Kind             schema.RevenueKind `json:"kind"`
}

// Event is one element of a flow's stream. Seq starts at 1 and increases by
// one per event within a flow. An error event whose State is not StateError
// is informational and the flow continues.
type Event struct {
	FlowID    string                `json:"flow_id"`
	Seq       int                   `json:"seq"`
	Type      EventType             `json:"type"`
	State     State                 `json:"state"`
	AgentID   int64                 `json:"agent_id,omitempty"`
	AgentName string                `json:"agent_name"`
	WorkID    int64                 `json:"work_id,omitempty"`
	WorkTitle string                `json:"work_title,omitempty"`
	Content   string                `json:"content,omitempty"`
	Price     schema.Amount         `json:"price,omitempty"`
	Revenue   []RevenueDetail       `json:"revenue_details,omitempty"`
	Music     *schema.MusicMetadata `json:"music,omitempty"`
	Code      string                `json:"code,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}
