package textgen

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Scripted is an offline generator. It composes deterministic text from the
// prompt so flows can run without a model provider.
type Scripted struct {
	// Delay is slept between streamed chunks.
	Delay time.Duration
}

// NewScripted returns a Scripted generator with no delay.
func NewScripted() *Scripted { return &Scripted{} }

// Stream emits the composed text word by word.
func (s *Scripted) Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	text := compose(req.Prompt)
	var full strings.Builder
	for i, word := range strings.SplitAfter(text, " ") {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		if i > 0 && s.Delay > 0 {
			select {
			case <-ctx.Done():
				return full.String(), ctx.Err()
			case <-time.After(s.Delay):
			}
		}
		full.WriteString(word)
		if err := onChunk(word); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

// Complete returns the first line of the prompt's last paragraph, which for
// title requests is the opening line of the work being named.
func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	paras := strings.Split(strings.TrimSpace(req.Prompt), "\n\n")
	last := strings.TrimSpace(paras[len(paras)-1])
	line, _, _ := strings.Cut(last, "\n")
	line = strings.Trim(strings.TrimSpace(line), "[]")
	if utf8.RuneCountInString(line) > 30 {
		line = string([]rune(line)[:30])
	}
	return line, nil
}

// compose turns the first "Key: value" line of the prompt into a short
// piece of verse.
func compose(prompt string) string {
	theme := "an empty page"
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, v, ok := strings.Cut(line, ": "); ok {
			line = v
		}
		theme = line
		break
	}
	return strings.Join([]string{
		"Echoes of " + theme,
		"drift through the ledger's quiet rooms,",
		"each line a signature, each pause a price.",
		"What was made is remembered.",
	}, "\n")
}
