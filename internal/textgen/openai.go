package textgen

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/config"
)

// OpenAI calls an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	client *resty.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAI creates a client from the text generation config.
func NewOpenAI(cfg config.TextGenConfig, log zerolog.Logger) *OpenAI {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &OpenAI{
		client: c,
		model:  cfg.Model,
		log:    log.With().Str("component", "textgen").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAI) body(req Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	return chatRequest{Model: model, Messages: msgs, Stream: stream}
}

// Complete requests a single non-streamed completion.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	reqBody := o.body(req, false)

	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/chat/completions")
	if err != nil {
		return "", generationError("chat request: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", generationError("chat status %d: %s", resp.StatusCode(), resp.String())
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return "", generationError("decode response: %v", err)
	}
	if len(cr.Choices) == 0 {
		return "", generationError("empty completion")
	}
	return cr.Choices[0].Message.Content, nil
}

// Stream requests a server-sent-events completion and forwards every content
// delta to onChunk. A stream that ends without [DONE] or a finish_reason is a
// generation failure.
func (o *OpenAI) Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	reqBody := o.body(req, true)

	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(&reqBody).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return "", generationError("chat request: %v", err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(raw, 4096))
		return "", generationError("chat status %d: %s", resp.StatusCode(), strings.TrimSpace(string(msg)))
	}

	var full strings.Builder
	finished := false
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return full.String(), nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			o.log.Warn().Err(err).Msg("skipping malformed stream chunk")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
			finished = true
		}
		if chunk.Choices[0].Delta.Content == "" {
			continue
		}
		piece := chunk.Choices[0].Delta.Content
		full.WriteString(piece)
		if err := onChunk(piece); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return full.String(), ctxErr
		}
		return full.String(), generationError("read stream: %v", err)
	}
	if !finished {
		return full.String(), generationError("stream ended before completion")
	}
	return full.String(), nil
}
