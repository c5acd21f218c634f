package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCensorMasksMatchesAndKeepsSpacing(t *testing.T) {
	m, err := New([]string{"scam", "fraud"}, '*')
	require.NoError(t, err)

	assert.Equal(t, "this is a **** offer", m.Censor("this is a scam offer"))
	assert.Equal(t, "*******!", m.Censor("S-c-A-m!"))
	assert.Equal(t, "pure *****", m.Censor("pure fr4ud"))
}

func TestCensorLeavesCleanContent(t *testing.T) {
	m, err := New([]string{"scam"}, '#')
	require.NoError(t, err)

	assert.Equal(t, "pickup at 9am", m.Censor("pickup at 9am"))
	assert.Equal(t, "", m.Censor(""))
}

func TestNewRejectsBlankWordList(t *testing.T) {
	_, err := New([]string{"", "  "}, '*')
	require.Error(t, err)
}

func TestNilModeratorIsPassThrough(t *testing.T) {
	var m *Moderator
	assert.Equal(t, "anything", m.Censor("anything"))
}
