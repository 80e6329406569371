package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// fakeCompleter returns canned responses and counts calls.
type fakeCompleter struct {
	textResponse string
	jsonResponse string
	err          error
	calls        int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.textResponse, nil
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.jsonResponse), out)
}

func testEmail(sender, subject, body string) *model.EmailRecord {
	e := model.NewEmailRecord("msg-1", "ops@example.com")
	e.SenderEmail = sender
	e.Subject = subject
	e.BodyPreview = body
	return e
}

func TestTransactionalOverride(t *testing.T) {
	ai := &fakeCompleter{}
	c := NewSpamClassifier(ai, SpamConfig{
		SpamSenderDomains: []string{"knownspamdomain.com"},
	})

	// sender domain matches a high-confidence learned spam rule, but the
	// subject is transactional
	rules := []model.SpamRule{
		*model.NewSpamRule(model.SpamRuleSenderDomain, "knownspamdomain.com", 100),
	}
	email := testEmail("billing@knownspamdomain.com", "Password Reset Requested", "")

	verdict := c.Classify(context.Background(), email, rules)
	assert.False(t, verdict.IsSpam)
	assert.True(t, verdict.IsTransactional)
	assert.Equal(t, 0, verdict.SpamScore)
	assert.Zero(t, ai.calls, "transactional override must not reach the AI")
}

func TestHardSpamSkipsAI(t *testing.T) {
	ai := &fakeCompleter{}
	c := NewSpamClassifier(ai, SpamConfig{
		SpamSenderDomains: []string{"spamhaus.example"},
	})

	email := testEmail("promo@spamhaus.example", "You are a WINNER", "act now click here free")
	verdict := c.Classify(context.Background(), email, nil)

	assert.True(t, verdict.IsSpam)
	assert.GreaterOrEqual(t, verdict.SpamScore, 80)
	assert.Zero(t, ai.calls, "obvious spam must not cost an AI call")
}

func TestNewsletterDetection(t *testing.T) {
	ai := &fakeCompleter{}
	c := NewSpamClassifier(ai, SpamConfig{})

	email := testEmail("digest@updates.substack.com", "Your weekly digest", "unsubscribe here")
	verdict := c.Classify(context.Background(), email, nil)

	assert.False(t, verdict.IsSpam)
	assert.True(t, verdict.IsNewsletter)
	assert.Zero(t, ai.calls)
}

func TestBorderlineBlendsAIScore(t *testing.T) {
	ai := &fakeCompleter{jsonResponse: `{"spam_score": 90, "is_newsletter": false, "reasoning": "phishing attempt"}`}
	c := NewSpamClassifier(ai, SpamConfig{})

	// sender pattern (+15) + subject keywords: "winner","congratulations" (+20)
	// = heuristic 35, inside the AI band
	email := testEmail("info@example.com", "winner congratulations", "")
	verdict := c.Classify(context.Background(), email, nil)

	require.Equal(t, 1, ai.calls)
	// round(0.4*35 + 0.6*90) = round(68) = 68
	assert.Equal(t, 68, verdict.SpamScore)
	assert.False(t, verdict.IsSpam, "combined below 70 is not spam")
	assert.Equal(t, "phishing attempt", verdict.Reasoning)
}

func TestBorderlineAIFailureFallsBack(t *testing.T) {
	ai := &fakeCompleter{err: errors.New("timeout")}
	c := NewSpamClassifier(ai, SpamConfig{})

	email := testEmail("info@example.com", "winner congratulations", "")
	verdict := c.Classify(context.Background(), email, nil)

	require.Equal(t, 1, ai.calls)
	// round(0.4*35 + 0.6*50) = 44
	assert.Equal(t, 44, verdict.SpamScore)
	assert.False(t, verdict.IsSpam)
}

func TestLowScorePassesThrough(t *testing.T) {
	ai := &fakeCompleter{}
	c := NewSpamClassifier(ai, SpamConfig{})

	email := testEmail("colleague@partner.example", "Quarterly report", "attached as discussed")
	verdict := c.Classify(context.Background(), email, nil)

	assert.False(t, verdict.IsSpam)
	assert.False(t, verdict.IsNewsletter)
	assert.Less(t, verdict.SpamScore, 30)
	assert.Zero(t, ai.calls)
}

func TestLowConfidenceLearnedRuleIgnored(t *testing.T) {
	ai := &fakeCompleter{}
	c := NewSpamClassifier(ai, SpamConfig{})

	// decayed rule must not contribute the +80
	rules := []model.SpamRule{
		*model.NewSpamRule(model.SpamRuleSenderDomain, "partner.example", 40),
	}
	email := testEmail("colleague@partner.example", "Quarterly report", "")
	verdict := c.Classify(context.Background(), email, rules)

	assert.False(t, verdict.IsSpam)
	assert.Less(t, verdict.SpamScore, 30)
}

func TestHeuristicScoreCaps(t *testing.T) {
	c := NewSpamClassifier(&fakeCompleter{}, SpamConfig{})

	// every keyword present: subject cap 30, body cap 20, unsubscribe +25
	// (newsletter), sender pattern +15
	subject := "free winner congratulations marketing special offer"
	body := "unsubscribe promotional limited time act now click here discount code"
	email := testEmail("promo@shop.example", subject, body)

	score, isNewsletter := c.heuristicScore(email, nil)
	assert.True(t, isNewsletter)
	assert.LessOrEqual(t, score, 100)
	assert.GreaterOrEqual(t, score, 80)
}
