package orchestrator

import (
	"errors"
	"strings"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// CreateRequest asks an agent to create an original work.
type CreateRequest struct {
	CreatorAgentID int64          `json:"creator_agent_id"`
	Theme          string         `json:"theme"`
	Style          schema.Style   `json:"style"`
	License        schema.License `json:"license,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
}

func (r CreateRequest) Validate() error {
	var errs []schema.FieldError
	errs = checkAgent(errs, "creator_agent_id", r.CreatorAgentID)
	errs = checkText(errs, "theme", r.Theme)
	if !r.Style.IsValid() {
		errs = append(errs, schema.FieldError{Field: "style", Message: "unknown style"})
	}
	errs = checkLicense(errs, r.License)
	return fieldErrors(errs)
}

// MusicRequest asks an agent to write lyrics and produce a track.
type MusicRequest struct {
	CreatorAgentID  int64          `json:"creator_agent_id"`
	Theme           string         `json:"theme"`
	MusicPrompt     string         `json:"music_prompt"`
	DurationSeconds int            `json:"duration_seconds,omitempty"`
	License         schema.License `json:"license,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
}

func (r MusicRequest) Validate() error {
	var errs []schema.FieldError
	errs = checkAgent(errs, "creator_agent_id", r.CreatorAgentID)
	errs = checkText(errs, "theme", r.Theme)
	errs = checkText(errs, "music_prompt", r.MusicPrompt)
	if d := r.DurationSeconds; d != 0 && (d < 10 || d > 300) {
		errs = append(errs, schema.FieldError{Field: "duration_seconds", Message: "must be between 10 and 300"})
	}
	errs = checkLicense(errs, r.License)
	return fieldErrors(errs)
}

// DeriveRequest asks an agent to buy a parent work and derive from it. An
// empty Style keeps the parent's style.
type DeriveRequest struct {
	CreatorAgentID int64        `json:"creator_agent_id"`
	ParentID       int64        `json:"parent_id"`
	Style          schema.Style `json:"style,omitempty"`
	Transform      string       `json:"transform"`
	Tags           []string     `json:"tags,omitempty"`
}

func (r DeriveRequest) Validate() error {
	var errs []schema.FieldError
	errs = checkAgent(errs, "creator_agent_id", r.CreatorAgentID)
	if r.ParentID <= 0 {
		errs = append(errs, schema.FieldError{Field: "parent_id", Message: "required"})
	}
	if r.Style != "" && !r.Style.IsValid() {
		errs = append(errs, schema.FieldError{Field: "style", Message: "unknown style"})
	}
	errs = checkText(errs, "transform", r.Transform)
	return fieldErrors(errs)
}

// PurchaseRequest asks an agent to buy a work.
type PurchaseRequest struct {
	WorkID       int64  `json:"work_id"`
	BuyerAgentID int64  `json:"buyer_agent_id"`
	Purpose      string `json:"purpose"`
}

func (r PurchaseRequest) Validate() error {
	var errs []schema.FieldError
	if r.WorkID <= 0 {
		errs = append(errs, schema.FieldError{Field: "work_id", Message: "required"})
	}
	errs = checkAgent(errs, "buyer_agent_id", r.BuyerAgentID)
	errs = checkText(errs, "purpose", r.Purpose)
	return fieldErrors(errs)
}

// Scenario is the scripted market simulation: an original, a derivative of
// it, a purchase of the derivative, a music track and a purchase of the track.
// The derivative's ParentID is filled in when the original is registered.
type Scenario struct {
	Original        CreateRequest `json:"original"`
	Derivative      DeriveRequest `json:"derivative"`
	DerivativeBuyer int64         `json:"derivative_buyer"`
	DerivativeUse   string        `json:"derivative_purpose"`
	Music           MusicRequest  `json:"music"`
	MusicBuyer      int64         `json:"music_buyer"`
	MusicUse        string        `json:"music_purpose"`
}

// DefaultScenario is the five-step simulation over the default agents:
// AnalystAgent (3) writes a poem, TranslateAgent (2) turns it into haiku,
// OracleBot (1) buys the haiku, composes a track, and TranslateAgent buys it.
func DefaultScenario() Scenario {
	const theme = "the autonomous economy of AI agents"
	return Scenario{
		Original: CreateRequest{
			CreatorAgentID: 3,
			Theme:          theme,
			Style:          schema.StylePoem,
			Tags:           []string{"web4", "ai-economy", "autonomous"},
		},
		Derivative: DeriveRequest{
			CreatorAgentID: 2,
			Style:          schema.StyleHaiku,
			Transform:      "Turn the poem into multilingual haiku in Japanese, English and Chinese.",
			Tags:           []string{"multilingual", "haiku", "translation"},
		},
		DerivativeBuyer: 1,
		DerivativeUse:   "Reference phrasing for multilingual data feeds",
		Music: MusicRequest{
			CreatorAgentID:  1,
			Theme:           theme,
			MusicPrompt:     "electronic ambient, blockchain theme, futuristic, synth pads, 128 bpm, Am key, ethereal vocals",
			DurationSeconds: 60,
			Tags:            []string{"music", "electronic", "ambient", "ai-economy"},
		},
		MusicBuyer: 2,
		MusicUse:   "Background music and sonic branding for translation services",
	}
}

func (s Scenario) Validate() error {
	var errs []schema.FieldError
	errs = appendNested(errs, s.Original.Validate())
	errs = appendNested(errs, s.Music.Validate())
	d := s.Derivative
	d.ParentID = 1 // assigned at run time
	errs = appendNested(errs, d.Validate())
	errs = checkAgent(errs, "derivative_buyer", s.DerivativeBuyer)
	errs = checkText(errs, "derivative_purpose", s.DerivativeUse)
	errs = checkAgent(errs, "music_buyer", s.MusicBuyer)
	errs = checkText(errs, "music_purpose", s.MusicUse)
	return fieldErrors(errs)
}

func appendNested(errs []schema.FieldError, err error) []schema.FieldError {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		errs = append(errs, ve.Errors...)
	}
	return errs
}

func checkAgent(errs []schema.FieldError, field string, id int64) []schema.FieldError {
	if id <= 0 {
		errs = append(errs, schema.FieldError{Field: field, Message: "required"})
	}
	return errs
}

func checkText(errs []schema.FieldError, field, v string) []schema.FieldError {
	if strings.TrimSpace(v) == "" {
		errs = append(errs, schema.FieldError{Field: field, Message: "required"})
	}
	return errs
}

func checkLicense(errs []schema.FieldError, l schema.License) []schema.FieldError {
	if l != "" && !l.IsValid() {
		errs = append(errs, schema.FieldError{Field: "license", Message: "unknown license"})
	}
	return errs
}

func fieldErrors(errs []schema.FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	return &schema.ValidationError{Errors: errs}
}
