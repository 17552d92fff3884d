package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory([]schema.Agent{
		{ID: 2, Name: "TranslateAgent", Model: "gpt-4o"},
		{ID: 1, Name: "OracleBot", Tags: []string{"oracle"}},
	})

	assert.Equal(t, "OracleBot", d.NameOf(1))
	assert.Equal(t, "Agent #9", d.NameOf(9))

	mc, ok := d.ModelConfigOf(2)
	assert.True(t, ok)
	assert.Equal(t, "gpt-4o", mc.Model)
	_, ok = d.ModelConfigOf(1)
	assert.False(t, ok)

	a, err := d.Agent(1)
	require.NoError(t, err)
	a.Tags[0] = "changed"
	again, _ := d.Agent(1)
	assert.Equal(t, "oracle", again.Tags[0])

	_, err = d.Agent(9)
	assert.ErrorIs(t, err, schema.ErrAgentNotFound)
	assert.ErrorIs(t, err, schema.ErrNotFound)

	agents := d.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, int64(2), agents[0].ID)
}
