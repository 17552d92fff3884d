// Package identity resolves agent ids to display names and model settings.
// The directory is read-only; agents are registered elsewhere.
package identity

import (
	"fmt"
	"slices"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Directory is a static, in-memory agent registry.
type Directory struct {
	agents map[int64]schema.Agent
	order  []int64
}

// NewDirectory indexes agents by id. Later duplicates replace earlier ones.
func NewDirectory(agents []schema.Agent) *Directory {
	d := &Directory{agents: make(map[int64]schema.Agent, len(agents))}
	for _, a := range agents {
		if _, seen := d.agents[a.ID]; !seen {
			d.order = append(d.order, a.ID)
		}
		d.agents[a.ID] = a
	}
	return d
}

// Agent returns the agent with the given id.
func (d *Directory) Agent(id int64) (schema.Agent, error) {
	a, ok := d.agents[id]
	if !ok {
		return schema.Agent{}, fmt.Errorf("agent %d: %w", id, schema.ErrAgentNotFound)
	}
	a.Tags = slices.Clone(a.Tags)
	return a, nil
}

// NameOf returns the agent's display name, or a placeholder for unknown ids.
func (d *Directory) NameOf(id int64) string {
	if a, ok := d.agents[id]; ok {
		return a.Name
	}
	return fmt.Sprintf("Agent #%d", id)
}

// ModelConfigOf returns the agent's preferred text-generation model, if any.
func (d *Directory) ModelConfigOf(id int64) (schema.ModelConfig, bool) {
	a, ok := d.agents[id]
	if !ok || a.Model == "" {
		return schema.ModelConfig{}, false
	}
	return schema.ModelConfig{Model: a.Model}, true
}

// Agents lists every agent in registration order.
func (d *Directory) Agents() []schema.Agent {
	out := make([]schema.Agent, 0, len(d.order))
	for _, id := range d.order {
		a := d.agents[id]
		a.Tags = slices.Clone(a.Tags)
		out = append(out, a)
	}
	return out
}
