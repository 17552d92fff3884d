// Package textgen talks to the text-generation collaborator that writes work
// content and titles for agents.
package textgen

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/config"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Request is one generation call: system instructions plus a user prompt.
// An empty Model selects the generator's default.
type Request struct {
	Model  string
	System string
	Prompt string
}

// Generator produces text. Stream calls onChunk for every fragment in order
// and returns the concatenated text; a non-nil error from onChunk aborts the
// stream and is returned as is.
type Generator interface {
	Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error)
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the generator selected by cfg.Provider.
func New(cfg config.TextGenConfig, log zerolog.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg, log), nil
	case config.ProviderScripted, "":
		return NewScripted(), nil
	default:
		return nil, fmt.Errorf("unknown text generation provider %q", cfg.Provider)
	}
}

func generationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", schema.ErrGeneration, fmt.Sprintf(format, args...))
}
