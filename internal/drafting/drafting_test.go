package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func testEmail() *model.EmailRecord {
	e := model.NewEmailRecord("msg-1", "ops@example.com")
	e.SenderEmail = "client@partner.example"
	e.SenderName = "Avery"
	e.Subject = "Quarterly Report - Action Needed"
	e.BodyPreview = "Please review the attached figures before Friday."
	return e
}

func TestGenerateDraftFallbackNeverEmpty(t *testing.T) {
	g := NewGenerator(&fakeCompleter{err: errors.New("timeout")}, "David")
	email := testEmail()

	draft := g.GenerateDraft(context.Background(), email, "summary", "")
	require.NotEmpty(t, draft)
	assert.Contains(t, draft, "Hi Avery")
	assert.Contains(t, draft, email.Subject)
	assert.Contains(t, draft, "Best regards,\nDavid")
}

func TestGenerateDraftPromptContract(t *testing.T) {
	ai := &fakeCompleter{response: "Hi Avery,\n\nThanks for sending this over.\n\nBest regards,\nDavid"}
	g := NewGenerator(ai, "David")
	email := testEmail()

	draft := g.GenerateDraft(context.Background(), email, "client wants review", model.ModeBrief)
	assert.Equal(t, ai.response, draft)

	require.Len(t, ai.prompts, 1)
	// the no-commitment rule is policy, not style: it must be in every prompt
	assert.Contains(t, ai.prompts[0], "Do NOT make specific commitments")
	assert.Contains(t, ai.prompts[0], "Keep it under 3 sentences")
}

func TestEditDraftWithoutCurrentGenerates(t *testing.T) {
	ai := &fakeCompleter{response: "generated"}
	g := NewGenerator(ai, "David")
	email := testEmail()

	draft := g.EditDraft(context.Background(), email, "make it shorter")
	assert.Equal(t, "generated", draft)
	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "Generate a reply")
}

func TestEditDraftFailureKeepsCurrent(t *testing.T) {
	g := NewGenerator(&fakeCompleter{err: errors.New("timeout")}, "David")
	email := testEmail()
	email.CurrentDraft = "existing draft"

	draft := g.EditDraft(context.Background(), email, "make it shorter")
	assert.Equal(t, "existing draft", draft)
}

func TestRewriteDraftCyclesTone(t *testing.T) {
	ai := &fakeCompleter{response: "rewritten"}
	g := NewGenerator(ai, "David")
	email := testEmail()
	require.Equal(t, model.ModeProfessional, email.DraftMode)

	g.RewriteDraft(context.Background(), email, "")
	assert.Equal(t, model.ModeFriendly, email.DraftMode)

	g.RewriteDraft(context.Background(), email, "")
	assert.Equal(t, model.ModeBrief, email.DraftMode)

	// explicit mode wins over cycling
	g.RewriteDraft(context.Background(), email, model.ModeDetailed)
	assert.Equal(t, model.ModeDetailed, email.DraftMode)
}

func TestSummarizeFallsBackToPreview(t *testing.T) {
	g := NewGenerator(&fakeCompleter{err: errors.New("timeout")}, "David")
	email := testEmail()

	summary := g.Summarize(context.Background(), email)
	assert.Equal(t, email.BodyPreview, summary)
}
