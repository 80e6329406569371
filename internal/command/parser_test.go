package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		typ   Type
		param string
	}{
		{"approve", "approve", Approve, ""},
		{"send maps to approve", "send", Approve, ""},
		{"yes", "YES", Approve, ""},
		{"short yes", "y", Approve, ""},
		{"confirm send", "confirm send", ConfirmSend, ""},
		{"ignore", "ignore", Ignore, ""},
		{"skip", "skip", Ignore, ""},
		{"rewrite", "rewrite", Rewrite, ""},
		{"bare more", "more", More, ""},
		{"bare spam", "spam", Spam, ""},
		{"done", "done", Delete, ""},
		{"delete", "delete", Delete, ""},
		{"review", "review", Review, ""},
		{"dismiss_all", "dismiss_all", DismissAll, ""},
		{"dismiss all with space", "Dismiss All", DismissAll, ""},
		{"archive_all", "archive_all", ArchiveAll, ""},
		{"archive all with space", "archive all", ArchiveAll, ""},

		{"edit with instructions", "edit: make it shorter and drop the last paragraph", Edit, "make it shorter and drop the last paragraph"},
		{"forward with to", "forward to ops@example.com", Forward, "ops@example.com"},
		{"forward without to", "forward ops@example.com", Forward, "ops@example.com"},
		{"keep", "keep billing@netflix.com", Keep, "billing@netflix.com"},
		{"mute with pattern", "mute noisy-vendor.example", Mute, "noisy-vendor.example"},
		{"bare mute", "mute", Mute, ""},
		{"followup with note", "followup next week about the contract", FollowUp, "next week about the contract"},
		{"remind", "remind tomorrow", FollowUp, "tomorrow"},
		{"bare followup", "followup", FollowUp, ""},

		{"numbered more", "more 3", More, "3"},
		{"numbered spam", "spam 12", Spam, "12"},

		{"bare hex token", "a3f9c2", Approve, "a3f9c2"},
		{"uppercase hex token", "A3F9C2", Approve, "a3f9c2"},

		{"paraphrase spam", "yeah this is spam, get rid of it", Spam, ""},
		{"paraphrase ignore", "no reply needed on this one", Ignore, ""},
		{"paraphrase approve", "looks good to me", Approve, ""},

		{"unknown text", "what's the weather like", Unknown, "what's the weather like"},
		{"empty", "", Unknown, ""},
		{"five hex chars is not a token", "a3f9c", Unknown, "a3f9c"},
		{"seven hex chars is not a token", "a3f9c2d", Unknown, "a3f9c2d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Parse(tt.input)
			assert.Equal(t, tt.typ, cmd.Type)
			assert.Equal(t, tt.param, cmd.Parameter)
		})
	}
}

func TestParseStructuredBeatsConversational(t *testing.T) {
	// "send it now please" contains the "send it" paraphrase, but an exact
	// or regex match always wins when present
	cmd := Parse("edit: send it with a friendlier tone")
	assert.Equal(t, Edit, cmd.Type)
	assert.Equal(t, "send it with a friendlier tone", cmd.Parameter)
}

func TestParseAmbiguousFreeTextStaysUnknown(t *testing.T) {
	// conservative by design: free text that merely mentions a command word
	// must not fire the command
	for _, input := range []string{
		"should we approve this?",
		"is this spam or legit?",
		"I'll forward it myself later",
	} {
		cmd := Parse(input)
		assert.Equal(t, Unknown, cmd.Type, "input %q", input)
	}
}
