package classifier

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

type fakeHitRecorder struct {
	hits []string
}

func (f *fakeHitRecorder) RecordEmailRuleHit(id string) error {
	f.hits = append(f.hits, id)
	return nil
}

// scriptedCompleter returns one canned JSON response per call, in order.
type scriptedCompleter struct {
	responses []string
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.calls++
	return s.responses[s.calls-1], nil
}

func (s *scriptedCompleter) CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error {
	s.calls++
	return json.Unmarshal([]byte(s.responses[s.calls-1]), out)
}

func makeRule(name string, priority int, stop bool) model.EmailRule {
	return model.EmailRule{
		ID:             name,
		Name:           name,
		MatchPrompt:    "emails about " + name,
		Action:         model.ActionArchive,
		Priority:       priority,
		StopProcessing: stop,
		IsActive:       true,
	}
}

func TestEvaluateStopProcessingShortCircuit(t *testing.T) {
	ai := &scriptedCompleter{responses: []string{
		`{"matches": true, "confidence": 90, "reason": "first"}`,
		`{"matches": true, "confidence": 90, "reason": "second"}`,
	}}
	store := &fakeHitRecorder{}
	evaluator := NewRulesEvaluator(ai, store)

	rules := []model.EmailRule{
		makeRule("rule-10", 10, true),
		makeRule("rule-20", 20, false),
	}
	email := testEmail("someone@example.com", "subject", "body")

	matches, err := evaluator.Evaluate(context.Background(), email, rules, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rule-10", matches[0].Rule.Name)

	// the second rule must never be evaluated, so its hit counter stays at
	// zero and only one AI call is made
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, []string{"rule-10"}, store.hits)
}

func TestEvaluateConfidenceFloor(t *testing.T) {
	ai := &scriptedCompleter{responses: []string{
		`{"matches": true, "confidence": 40, "reason": "weak"}`,
		`{"matches": true, "confidence": 75, "reason": "strong"}`,
	}}
	store := &fakeHitRecorder{}
	evaluator := NewRulesEvaluator(ai, store)

	rules := []model.EmailRule{
		makeRule("weak-match", 10, false),
		makeRule("strong-match", 20, false),
	}
	email := testEmail("someone@example.com", "subject", "body")

	matches, err := evaluator.Evaluate(context.Background(), email, rules, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "strong-match", matches[0].Rule.Name)
	assert.Equal(t, 75, matches[0].Confidence)
	assert.Equal(t, []string{"strong-match"}, store.hits)
}

func TestEvaluateCollectsMultipleMatches(t *testing.T) {
	ai := &scriptedCompleter{responses: []string{
		`{"matches": true, "confidence": 80, "reason": "a"}`,
		`{"matches": false, "confidence": 0, "reason": "b"}`,
		`{"matches": true, "confidence": 60, "reason": "c"}`,
	}}
	store := &fakeHitRecorder{}
	evaluator := NewRulesEvaluator(ai, store)

	rules := []model.EmailRule{
		makeRule("a", 10, false),
		makeRule("b", 20, false),
		makeRule("c", 30, false),
	}
	email := testEmail("someone@example.com", "subject", "body")

	matches, err := evaluator.Evaluate(context.Background(), email, rules, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Rule.Name)
	assert.Equal(t, "c", matches[1].Rule.Name)
}

func TestEvaluateNoRules(t *testing.T) {
	evaluator := NewRulesEvaluator(&scriptedCompleter{}, &fakeHitRecorder{})
	email := testEmail("someone@example.com", "subject", "body")

	matches, err := evaluator.Evaluate(context.Background(), email, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
