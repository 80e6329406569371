package model

import "fmt"

// EmailState is a state in the email processing lifecycle. The string values
// are the persisted representation and must not change.
type EmailState string

const (
	StateNew              EmailState = "new"
	StateProcessing       EmailState = "processing"
	StateSpamDetected     EmailState = "spam_detected"
	StateFYINotified      EmailState = "fyi_notified"
	StateActionRequired   EmailState = "action_required"
	StateDraftGenerated   EmailState = "draft_generated"
	StateAwaitingApproval EmailState = "awaiting_approval"
	StateApproved         EmailState = "approved"
	StateSent             EmailState = "sent"
	StateIgnored          EmailState = "ignored"
	StateForwardSuggested EmailState = "forward_suggested"
	StateForwarded        EmailState = "forwarded"
	StateArchived         EmailState = "archived"
	StateFollowUp         EmailState = "follow_up"
	StateAcknowledged     EmailState = "acknowledged"
	StateError            EmailState = "error"
)

// validTransitions is the allowed-successor table for the email state machine.
// StateError is reachable from any state and is handled in Transition directly.
// StateFollowUp and StateAcknowledged are user-driven override states set via
// ForceState and deliberately absent from this table.
var validTransitions = map[EmailState][]EmailState{
	StateNew:        {StateProcessing},
	StateProcessing: {StateSpamDetected, StateFYINotified, StateActionRequired, StateError},
	StateSpamDetected: {
		StateArchived,
		StateActionRequired, // user rescues a false positive
	},
	StateFYINotified:    {StateArchived, StateActionRequired},
	StateActionRequired: {StateDraftGenerated, StateForwardSuggested, StateIgnored},
	StateDraftGenerated: {StateAwaitingApproval},
	StateAwaitingApproval: {
		StateApproved,
		StateDraftGenerated, // re-edit
		StateIgnored,
		StateSpamDetected, // user marks as spam
		StateArchived,     // user dismisses
	},
	StateApproved:         {StateSent, StateError},
	StateForwardSuggested: {StateForwarded, StateIgnored},
}

// InvalidTransitionError reports an attempt to move an email to a state not
// permitted by the transition table. It is a data-integrity error, distinct
// from integration failures, and must never be silently swallowed.
type InvalidTransitionError struct {
	From EmailState
	To   EmailState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to EmailState) bool {
	if to == StateError {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TerminalStates are the normal-flow end states.
var TerminalStates = []EmailState{StateSent, StateArchived, StateIgnored, StateForwarded}

// EmailCategory classifies an email for routing. Nullable until classified.
type EmailCategory string

const (
	CategoryUrgent           EmailCategory = "urgent"
	CategoryActionRequired   EmailCategory = "action_required"
	CategoryFYI              EmailCategory = "fyi"
	CategoryMeeting          EmailCategory = "meeting"
	CategorySpamCandidate    EmailCategory = "spam_candidate"
	CategoryNewsletter       EmailCategory = "newsletter"
	CategoryForwardCandidate EmailCategory = "forward_candidate"
)

// DraftMode is the tone preset for generated replies.
type DraftMode string

const (
	ModeProfessional DraftMode = "professional"
	ModeFriendly     DraftMode = "friendly"
	ModeBrief        DraftMode = "brief"
	ModeDetailed     DraftMode = "detailed"
)

// DraftModes in rewrite-cycling order.
var DraftModes = []DraftMode{ModeProfessional, ModeFriendly, ModeBrief, ModeDetailed}

// NextDraftMode returns the preset after m in cycling order.
func NextDraftMode(m DraftMode) DraftMode {
	for i, mode := range DraftModes {
		if mode == m {
			return DraftModes[(i+1)%len(DraftModes)]
		}
	}
	return ModeProfessional
}

// Handler attribution values for EmailRecord.HandledBy.
const (
	HandledByAI      = "ai"
	HandledByUser    = "user"
	HandledByRule    = "rule"
	HandledByPending = "pending"
)
