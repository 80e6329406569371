package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from EmailState
		to   EmailState
		want bool
	}{
		{"new to processing", StateNew, StateProcessing, true},
		{"new straight to sent", StateNew, StateSent, false},
		{"processing to spam", StateProcessing, StateSpamDetected, true},
		{"processing to fyi", StateProcessing, StateFYINotified, true},
		{"processing to action", StateProcessing, StateActionRequired, true},
		{"spam rescue", StateSpamDetected, StateActionRequired, true},
		{"spam to sent", StateSpamDetected, StateSent, false},
		{"action to draft", StateActionRequired, StateDraftGenerated, true},
		{"draft to awaiting", StateDraftGenerated, StateAwaitingApproval, true},
		{"awaiting to approved", StateAwaitingApproval, StateApproved, true},
		{"awaiting re-edit", StateAwaitingApproval, StateDraftGenerated, true},
		{"awaiting to spam", StateAwaitingApproval, StateSpamDetected, true},
		{"approved to sent", StateApproved, StateSent, true},
		{"sent is terminal", StateSent, StateProcessing, false},
		{"forward suggested to forwarded", StateForwardSuggested, StateForwarded, true},
		{"error reachable from anywhere", StateSent, StateError, true},
		{"error from new", StateNew, StateError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestEmailRecordTransition(t *testing.T) {
	e := NewEmailRecord("msg-1", "ops@example.com")
	require.Equal(t, StateNew, e.State)

	require.NoError(t, e.Transition(StateProcessing))
	require.NoError(t, e.Transition(StateActionRequired))
	require.NoError(t, e.Transition(StateDraftGenerated))
	require.NoError(t, e.Transition(StateAwaitingApproval))
	require.NoError(t, e.Transition(StateApproved))
	require.NoError(t, e.Transition(StateSent))

	err := e.Transition(StateProcessing)
	require.Error(t, err)
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, StateSent, invalid.From)
	assert.Equal(t, StateProcessing, invalid.To)
	// state unchanged after a rejected transition
	assert.Equal(t, StateSent, e.State)
}

func TestForceStateBypassesTable(t *testing.T) {
	e := NewEmailRecord("msg-2", "ops@example.com")
	require.NoError(t, e.Transition(StateProcessing))
	require.NoError(t, e.Transition(StateFYINotified))

	assert.False(t, CanTransition(e.State, StateFollowUp))
	e.ForceState(StateFollowUp)
	assert.Equal(t, StateFollowUp, e.State)

	e.ForceState(StateAcknowledged)
	assert.Equal(t, StateAcknowledged, e.State)
}

func TestNextDraftModeCycles(t *testing.T) {
	assert.Equal(t, ModeFriendly, NextDraftMode(ModeProfessional))
	assert.Equal(t, ModeBrief, NextDraftMode(ModeFriendly))
	assert.Equal(t, ModeDetailed, NextDraftMode(ModeBrief))
	assert.Equal(t, ModeProfessional, NextDraftMode(ModeDetailed))
	assert.Equal(t, ModeProfessional, NextDraftMode(DraftMode("bogus")))
}
