package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-market/internal/music"
	"github.com/celerix-dev/celerix-market/internal/textgen"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Create streams an agent creating and registering an original work.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) *Flow {
	return o.start(ctx, KindCreate, func(f *Flow) error {
		_, err := o.createOriginal(ctx, f, req)
		return err
	})
}

// CreateMusic streams an agent writing lyrics, producing a track and
// registering it. When the music server is unavailable or fails, the work is
// registered with lyrics and metadata only.
func (o *Orchestrator) CreateMusic(ctx context.Context, req MusicRequest) *Flow {
	return o.start(ctx, KindMusic, func(f *Flow) error {
		_, err := o.createMusic(ctx, f, req)
		return err
	})
}

func (o *Orchestrator) createOriginal(ctx context.Context, f *Flow, req CreateRequest) (schema.Work, error) {
	if err := req.Validate(); err != nil {
		return schema.Work{}, err
	}
	agent, err := o.actor(f, req.CreatorAgentID)
	if err != nil {
		return schema.Work{}, err
	}

	if err := f.enter(StateGeneratingContent, Event{
		Type:    EventCreationStart,
		Content: fmt.Sprintf("%s is creating a %s on the theme %q", agent.Name, req.Style, req.Theme),
	}); err != nil {
		return schema.Work{}, err
	}
	content, err := o.generate(ctx, f, agent, creationPrompt(agent, req.Theme, req.Style), EventCreationDelta)
	if err != nil {
		return schema.Work{}, err
	}

	title, err := o.title(ctx, f, agent, "this work", content)
	if err != nil {
		return schema.Work{}, err
	}

	tags := req.Tags
	if len(tags) == 0 {
		tags = []string{string(req.Style), req.Theme}
	}
	work, err := o.ledger.CreateWork(ctx, schema.CreateWorkInput{
		CreatorAgentID: agent.ID,
		Title:          title,
		Description:    fmt.Sprintf("A %s created autonomously by %s on the theme %q.", req.Style, agent.Name, req.Theme),
		Content:        content,
		Style:          req.Style,
		License:        licenseOrDefault(req.License),
		Tags:           tags,
		Price:          o.OriginalPrice(),
	})
	if err != nil {
		return schema.Work{}, err
	}

	return work, f.emit(Event{
		Type:      EventCreationComplete,
		WorkID:    work.ID,
		WorkTitle: work.Title,
		Content:   content,
		Price:     work.Price,
	})
}

func (o *Orchestrator) createMusic(ctx context.Context, f *Flow, req MusicRequest) (schema.Work, error) {
	if err := req.Validate(); err != nil {
		return schema.Work{}, err
	}
	agent, err := o.actor(f, req.CreatorAgentID)
	if err != nil {
		return schema.Work{}, err
	}

	if err := f.enter(StateGeneratingContent, Event{
		Type:    EventCreationStart,
		Content: fmt.Sprintf("%s is writing lyrics on the theme %q", agent.Name, req.Theme),
	}); err != nil {
		return schema.Work{}, err
	}
	lyrics, err := o.generateContent(ctx, f, agent, lyricsPrompt(agent, req.Theme, req.MusicPrompt), EventCreationDelta)
	if err != nil {
		return schema.Work{}, err
	}

	duration := req.DurationSeconds
	if duration == 0 {
		duration = o.musicDuration
	}
	if err := f.emit(Event{
		Type:    EventMusicGenerationStart,
		Content: fmt.Sprintf("Lyrics written; generating a %d second track", duration),
	}); err != nil {
		return schema.Work{}, err
	}

	style := music.ParsePrompt(req.MusicPrompt)
	meta := &schema.MusicMetadata{
		Genre:           style.Genre,
		BPM:             style.BPM,
		DurationSeconds: duration,
		Key:             style.Key,
		Lyrics:          lyrics,
	}
	if err := o.renderTrack(ctx, f, req.MusicPrompt, meta); err != nil {
		return schema.Work{}, err
	}

	summary := fmt.Sprintf("%s / %d BPM / key %s", meta.Genre, meta.BPM, meta.Key)
	if meta.AudioURL != "" {
		summary = fmt.Sprintf("Track ready: %s / %ds", summary, meta.DurationSeconds)
	} else {
		summary = "Metadata ready, no audio: " + summary
	}
	if err := f.emit(Event{Type: EventMusicGenerationComplete, Content: summary, Music: meta}); err != nil {
		return schema.Work{}, err
	}
	if err := f.transition(StateContentComplete); err != nil {
		return schema.Work{}, err
	}

	title, err := o.title(ctx, f, agent, fmt.Sprintf("this %s song about %q", meta.Genre, req.Theme), lyrics)
	if err != nil {
		return schema.Work{}, err
	}

	tags := req.Tags
	if len(tags) == 0 {
		tags = []string{string(schema.StyleMusic), meta.Genre, req.Theme}
	}
	work, err := o.ledger.CreateWork(ctx, schema.CreateWorkInput{
		CreatorAgentID: agent.ID,
		Title:          title,
		Description:    fmt.Sprintf("A %s track produced autonomously by %s on the theme %q.", meta.Genre, agent.Name, req.Theme),
		Content:        lyrics,
		Style:          schema.StyleMusic,
		License:        licenseOrDefault(req.License),
		Tags:           tags,
		Price:          o.MusicPrice(),
		Music:          meta,
	})
	if err != nil {
		return schema.Work{}, err
	}

	return work, f.emit(Event{
		Type:      EventCreationComplete,
		WorkID:    work.ID,
		WorkTitle: work.Title,
		Content:   lyrics,
		Price:     work.Price,
		Music:     work.Music,
	})
}

// renderTrack fills meta.AudioURL when the music server can produce audio.
// Server failures are reported as informational error events.
func (o *Orchestrator) renderTrack(ctx context.Context, f *Flow, prompt string, meta *schema.MusicMetadata) error {
	if o.music == nil || !o.music.Available(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.log.Warn().Msg("music server unavailable")
		return f.emit(Event{
			Type:    EventError,
			Code:    schema.CodeGeneration,
			Content: "Music server unavailable; registering lyrics and metadata only",
		})
	}

	res, err := o.music.Generate(ctx, music.Request{
		Prompt:          prompt,
		Lyrics:          meta.Lyrics,
		DurationSeconds: meta.DurationSeconds,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn().Err(err).Msg("music generation failed")
		return f.emit(Event{
			Type:    EventError,
			Code:    schema.CodeGeneration,
			Content: fmt.Sprintf("Music generation failed: %v; registering lyrics only", err),
		})
	}
	meta.AudioURL = res.AudioURL
	if res.DurationSeconds > 0 {
		meta.DurationSeconds = res.DurationSeconds
	}
	return nil
}

// actor resolves an agent and makes it the subject of subsequent events.
func (o *Orchestrator) actor(f *Flow, id int64) (schema.Agent, error) {
	agent, err := o.agents.Agent(id)
	if err != nil {
		return schema.Agent{}, err
	}
	f.actAs(agent.ID, agent.Name)
	return agent, nil
}

// generate streams content as delta events, then marks it complete.
func (o *Orchestrator) generate(ctx context.Context, f *Flow, agent schema.Agent, req textgen.Request, delta EventType) (string, error) {
	text, err := o.generateContent(ctx, f, agent, req, delta)
	if err != nil {
		return "", err
	}
	return text, f.transition(StateContentComplete)
}

func (o *Orchestrator) generateContent(ctx context.Context, f *Flow, agent schema.Agent, req textgen.Request, delta EventType) (string, error) {
	if mc, ok := o.agents.ModelConfigOf(agent.ID); ok {
		req.Model = mc.Model
	}
	text, err := o.gen.Stream(ctx, req, func(chunk string) error {
		return f.emit(Event{Type: delta, Content: chunk})
	})
	if err != nil {
		return "", generationFailure(ctx, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty content", schema.ErrGeneration)
	}
	return text, nil
}

// title moves the flow to registering-work and asks for a title for content.
func (o *Orchestrator) title(ctx context.Context, f *Flow, agent schema.Agent, subject, content string) (string, error) {
	if err := f.transition(StateRegisteringWork); err != nil {
		return "", err
	}
	req := titlePrompt(subject, content)
	if mc, ok := o.agents.ModelConfigOf(agent.ID); ok {
		req.Model = mc.Model
	}
	raw, err := o.gen.Complete(ctx, req)
	if err != nil {
		return "", generationFailure(ctx, err)
	}
	return CleanTitle(raw), nil
}

func generationFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, schema.ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %v", schema.ErrGeneration, err)
}

func licenseOrDefault(l schema.License) schema.License {
	if l == "" {
		return schema.LicenseCommercial
	}
	return l
}
