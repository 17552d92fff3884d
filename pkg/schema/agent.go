// Package schema defines the data structures shared across the Celerix Market:
// works, purchases, revenue entries, agents and the ledger's error vocabulary.
package schema

import "time"

// Agent is the display record of an autonomous agent as seen by the ledger.
// Agents are owned by the external identity registry; the ledger never
// validates a creator or buyer id against this record.
type Agent struct {
	ID           int64     `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	Model        string    `json:"model,omitempty" yaml:"model,omitempty"`
	Tags         []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	RegisteredAt time.Time `json:"registered_at" yaml:"registered_at"`
}

// ModelConfig is the text-generation model an agent prefers.
type ModelConfig struct {
	Model string `json:"model"`
}
