package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missiondesk/internal/domain"
)

func TestParseChecklist(t *testing.T) {
	items, err := parseChecklist([]string{"Safety:helmet,gloves", "Report:photo"})
	require.NoError(t, err)
	assert.Equal(t, []domain.ChecklistItem{
		{Category: "Safety", Steps: []string{"helmet", "gloves"}},
		{Category: "Report", Steps: []string{"photo"}},
	}, items)

	_, err = parseChecklist([]string{"no-steps"})
	assert.Error(t, err)
	_, err = parseChecklist([]string{":a,b"})
	assert.Error(t, err)
}

func TestParseChecks(t *testing.T) {
	state, err := parseChecks(nil)
	require.NoError(t, err)
	assert.Nil(t, state)

	state, err = parseChecks([]string{"Safety:helmet", "Safety:gloves", "Report:photo"})
	require.NoError(t, err)
	assert.True(t, state.Done("Safety", "helmet"))
	assert.True(t, state.Done("Safety", "gloves"))
	assert.True(t, state.Done("Report", "photo"))
	assert.False(t, state.Done("Report", "map"))

	_, err = parseChecks([]string{"Safety"})
	assert.Error(t, err)
}
