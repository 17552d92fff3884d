// Package music is the client for the ACE-Step music generation server and
// the prompt parsing that derives genre, key and tempo metadata.
package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/config"
)

// ErrUnavailable is returned when music generation is disabled.
var ErrUnavailable = errors.New("music generation unavailable")

// healthTimeout bounds the availability probe.
const healthTimeout = 3 * time.Second

// Request describes one track to generate.
type Request struct {
	Prompt          string
	Lyrics          string
	DurationSeconds int
	InferSteps      int
	GuidanceScale   float64
	Scheduler       string
	CFGType         string
	Omega           float64
	Seed            int64
}

// Result is a generated track.
type Result struct {
	AudioURL        string
	DurationSeconds int
	Seed            int64
}

// Generator produces audio for lyrics.
type Generator interface {
	Available(ctx context.Context) bool
	Generate(ctx context.Context, req Request) (Result, error)
}

// Client calls an ACE-Step Gradio server.
type Client struct {
	client          *resty.Client
	baseURL         string
	defaultDuration int
	enabled         bool
	log             zerolog.Logger
}

// NewClient creates a client from the music config.
func NewClient(cfg config.MusicConfig, log zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	c := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &Client{
		client:          c,
		baseURL:         base,
		defaultDuration: cfg.DefaultDuration,
		enabled:         cfg.Enabled,
		log:             log.With().Str("component", "music").Logger(),
	}
}

// DefaultDuration is the track length used when a request leaves it unset.
func (c *Client) DefaultDuration() int { return c.defaultDuration }

// Available reports whether the server answers its /info endpoint.
func (c *Client) Available(ctx context.Context) bool {
	if !c.enabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := c.client.R().SetContext(ctx).Get("/info")
	if err != nil {
		c.log.Debug().Err(err).Msg("music server unreachable")
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

type predictRequest struct {
	Data []any `json:"data"`
}

type predictResponse struct {
	Data []json.RawMessage `json:"data"`
}

type audioFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (r Request) withDefaults(duration int) Request {
	if r.DurationSeconds <= 0 {
		r.DurationSeconds = duration
	}
	if r.InferSteps <= 0 {
		r.InferSteps = 60
	}
	if r.GuidanceScale <= 0 {
		r.GuidanceScale = 15
	}
	if r.Scheduler == "" {
		r.Scheduler = "euler"
	}
	if r.CFGType == "" {
		r.CFGType = "apg"
	}
	if r.Omega <= 0 {
		r.Omega = 10
	}
	if r.Seed == 0 {
		r.Seed = -1
	}
	return r
}

// Generate calls /api/predict with the positional Gradio payload.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if !c.enabled {
		return Result{}, ErrUnavailable
	}
	req = req.withDefaults(c.defaultDuration)

	reqBody := predictRequest{Data: []any{
		req.Prompt,
		req.Lyrics,
		req.DurationSeconds,
		req.InferSteps,
		req.GuidanceScale,
		req.Scheduler,
		req.CFGType,
		req.Omega,
		req.Seed,
	}}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/api/predict")
	if err != nil {
		return Result{}, fmt.Errorf("ace-step request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Result{}, fmt.Errorf("ace-step status %d: %s", resp.StatusCode(), resp.String())
	}

	var pr predictResponse
	if err := json.Unmarshal(resp.Body(), &pr); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if len(pr.Data) == 0 {
		return Result{}, errors.New("no audio data in ace-step response")
	}

	audioURL, err := c.audioURL(pr.Data[0])
	if err != nil {
		return Result{}, err
	}

	res := Result{AudioURL: audioURL, DurationSeconds: req.DurationSeconds, Seed: -1}
	if len(pr.Data) > 1 {
		var seed int64
		if json.Unmarshal(pr.Data[1], &seed) == nil {
			res.Seed = seed
		}
	}
	return res, nil
}

// audioURL accepts either a plain URL string or a Gradio file object.
func (c *Client) audioURL(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var f audioFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("decode audio data: %w", err)
	}
	if f.URL != "" {
		return f.URL, nil
	}
	if f.Name == "" {
		return "", errors.New("no audio data in ace-step response")
	}
	return c.baseURL + "/file=" + f.Name, nil
}
