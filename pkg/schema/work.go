package schema

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Style is the form of a creative work.
type Style string

const (
	StylePoem              Style = "poem"
	StyleHaiku             Style = "haiku"
	StyleASCIIArt          Style = "ascii-art"
	StyleShortStory        Style = "short-story"
	StyleCodeArt           Style = "code-art"
	StyleGenerativeDiagram Style = "generative-diagram"
	StyleMusic             Style = "music"
)

// legacyGenerativeStyle is the name older clients use for generative diagrams.
const legacyGenerativeStyle = "generative-svg"

// Styles lists every valid style in display order.
var Styles = []Style{
	StylePoem, StyleHaiku, StyleASCIIArt, StyleShortStory,
	StyleCodeArt, StyleGenerativeDiagram, StyleMusic,
}

func (s Style) String() string { return string(s) }

func (s Style) IsValid() bool {
	return slices.Contains(Styles, s)
}

// ParseStyle normalises a style name, accepting the legacy "generative-svg" alias.
func ParseStyle(s string) (Style, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == legacyGenerativeStyle {
		return StyleGenerativeDiagram, true
	}
	st := Style(s)
	return st, st.IsValid()
}

// UnmarshalJSON normalises known aliases. Unknown names are kept as given
// and rejected later by validation.
func (s *Style) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if st, ok := ParseStyle(raw); ok {
		*s = st
		return nil
	}
	*s = Style(raw)
	return nil
}

// License governs whether a work may be used as the parent of a derivative.
type License string

const (
	LicenseOpen       License = "open"
	LicenseCommercial License = "commercial"
	LicenseExclusive  License = "exclusive"
)

func (l License) String() string { return string(l) }

func (l License) IsValid() bool {
	switch l {
	case LicenseOpen, LicenseCommercial, LicenseExclusive:
		return true
	}
	return false
}

// AllowsDerivatives reports whether works under this license may be derived from.
func (l License) AllowsDerivatives() bool {
	return l != LicenseExclusive
}

// RevenueKind tells why a revenue entry was paid.
type RevenueKind string

const (
	RevenueSale              RevenueKind = "sale"
	RevenueDerivativeRoyalty RevenueKind = "derivative-royalty"
)

func (k RevenueKind) String() string { return string(k) }

// MusicMetadata is carried opaquely on music works.
type MusicMetadata struct {
	Genre           string `json:"genre" yaml:"genre"`
	BPM             int    `json:"bpm" yaml:"bpm"`
	DurationSeconds int    `json:"duration_seconds" yaml:"duration_seconds"`
	Key             string `json:"key" yaml:"key"`
	Lyrics          string `json:"lyrics" yaml:"lyrics"`
	AudioURL        string `json:"audio_url,omitempty" yaml:"audio_url,omitempty"`
}

// Work is a creative artifact listed on the marketplace.
// PurchaseCount, TotalRevenue and DerivativeCount are maintained by the ledger.
type Work struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Content        string         `json:"content"`
	Style          Style          `json:"style"`
	CreatorAgentID int64          `json:"creator_agent_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Price          Amount         `json:"price"`
	ParentID       *int64         `json:"parent_id"`
	License        License        `json:"license"`
	Tags           []string       `json:"tags"`
	Music          *MusicMetadata `json:"music,omitempty"`

	PurchaseCount   int64  `json:"purchase_count"`
	TotalRevenue    Amount `json:"total_revenue"`
	DerivativeCount int64  `json:"derivative_count"`
}

// IsOriginal reports whether the work has no parent.
func (w Work) IsOriginal() bool { return w.ParentID == nil }

// HasTag reports whether the work carries the given tag.
func (w Work) HasTag(tag string) bool { return slices.Contains(w.Tags, tag) }

// Clone returns a deep copy so callers cannot mutate ledger state.
func (w Work) Clone() Work {
	c := w
	if w.ParentID != nil {
		p := *w.ParentID
		c.ParentID = &p
	}
	c.Tags = slices.Clone(w.Tags)
	if w.Music != nil {
		m := *w.Music
		c.Music = &m
	}
	return c
}

// CreateWorkInput holds the caller-supplied fields of a new work.
type CreateWorkInput struct {
	CreatorAgentID int64          `json:"creator_agent_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Content        string         `json:"content"`
	Style          Style          `json:"style"`
	License        License        `json:"license"`
	Tags           []string       `json:"tags"`
	Price          Amount         `json:"price"`
	ParentID       *int64         `json:"parent_id,omitempty"`
	Music          *MusicMetadata `json:"music,omitempty"`
}

// MaxTitleLength is the longest title accepted, in runes.
const MaxTitleLength = 200

// Validate checks all fields and collects all errors.
func (i CreateWorkInput) Validate() error {
	var errs []FieldError

	if i.CreatorAgentID <= 0 {
		errs = append(errs, FieldError{Field: "creator_agent_id", Message: "required"})
	}
	title := strings.TrimSpace(i.Title)
	if title == "" {
		errs = append(errs, FieldError{Field: "title", Message: "required"})
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		errs = append(errs, FieldError{Field: "title", Message: "max 200 characters"})
	}
	if !i.Style.IsValid() {
		errs = append(errs, FieldError{Field: "style", Message: "unknown style"})
	}
	if !i.License.IsValid() {
		errs = append(errs, FieldError{Field: "license", Message: "unknown license"})
	}
	if i.Price <= 0 {
		errs = append(errs, FieldError{Field: "price", Message: "must be positive"})
	}
	if i.Price > MaxPrice {
		errs = append(errs, FieldError{Field: "price", Message: "max " + MaxPrice.String()})
	}
	if i.ParentID != nil && *i.ParentID <= 0 {
		errs = append(errs, FieldError{Field: "parent_id", Message: "must be positive"})
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Purchase records one agent buying one work. Price is copied from the work at
// purchase time.
type Purchase struct {
	ID           int64     `json:"id"`
	WorkID       int64     `json:"work_id"`
	BuyerAgentID int64     `json:"buyer_agent_id"`
	Price        Amount    `json:"price"`
	Purpose      string    `json:"purpose"`
	Timestamp    time.Time `json:"timestamp"`
}

// RevenueEntry is one payout produced by a purchase.
type RevenueEntry struct {
	ID               int64       `json:"id"`
	RecipientAgentID int64       `json:"recipient_agent_id"`
	WorkID           int64       `json:"work_id"`
	Amount           Amount      `json:"amount"`
	Kind             RevenueKind `json:"kind"`
	PurchaseID       int64       `json:"purchase_id"`
	Timestamp        time.Time   `json:"timestamp"`
}

// PurchaseResult is the outcome of a successful purchase.
type PurchaseResult struct {
	Purchase Purchase       `json:"purchase"`
	Entries  []RevenueEntry `json:"revenue_entries"`
}

// SortOrder selects the ordering of ListWorks.
type SortOrder string

const (
	SortCreated SortOrder = "created"
	SortNewest  SortOrder = "newest"
)

// WorkFilter narrows ListWorks. Zero values match everything.
type WorkFilter struct {
	CreatorAgentID int64     `json:"creator_agent_id,omitempty"`
	Style          Style     `json:"style,omitempty"`
	Tag            string    `json:"tag,omitempty"`
	Sort           SortOrder `json:"sort,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// Match reports whether w passes the filter's predicates.
func (f WorkFilter) Match(w Work) bool {
	if f.CreatorAgentID != 0 && w.CreatorAgentID != f.CreatorAgentID {
		return false
	}
	if f.Style != "" && w.Style != f.Style {
		return false
	}
	if f.Tag != "" && !w.HasTag(f.Tag) {
		return false
	}
	return true
}
