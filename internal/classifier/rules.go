package classifier

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
)

// DefaultRuleConfidenceFloor is the minimum match confidence a rule needs
// before it counts.
const DefaultRuleConfidenceFloor = 50

const rulesSystemPrompt = "You evaluate whether emails match user-defined routing rules."

// RuleHitRecorder is the storage slice the evaluator needs to record hits.
type RuleHitRecorder interface {
	RecordEmailRuleHit(id string) error
}

// RulesEvaluator tests an email against natural-language routing rules.
// Rules are evaluated in ascending priority order; a matching rule with
// stop_processing set short-circuits the rest. Executing a matched rule's
// action stays with the coordinator.
type RulesEvaluator struct {
	ai    gateway.Completer
	store RuleHitRecorder
}

// NewRulesEvaluator builds the evaluator.
func NewRulesEvaluator(ai gateway.Completer, store RuleHitRecorder) *RulesEvaluator {
	return &RulesEvaluator{ai: ai, store: store}
}

// Evaluate runs the active rules against the email and returns the matches at
// or above confidenceFloor (pass 0 for the default floor), in evaluation
// order. Hit counters are bumped for every returned match. Rules after a
// stop_processing match are never evaluated, so their counters stay untouched.
func (r *RulesEvaluator) Evaluate(ctx context.Context, email *model.EmailRecord, rules []model.EmailRule, confidenceFloor int) ([]model.RuleMatch, error) {
	if confidenceFloor <= 0 {
		confidenceFloor = DefaultRuleConfidenceFloor
	}

	var matches []model.RuleMatch
	for i := range rules {
		rule := &rules[i]
		verdict, err := r.evaluateRule(ctx, email, rule)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"email_id": email.ID,
				"rule":     rule.Name,
			}).Warnf("Rule evaluation failed: %v", err)
			continue
		}
		if !verdict.Matches || verdict.Confidence < confidenceFloor {
			continue
		}

		matches = append(matches, model.RuleMatch{
			Rule:       rule,
			Confidence: verdict.Confidence,
			Reason:     verdict.Reason,
		})
		if err := r.store.RecordEmailRuleHit(rule.ID); err != nil {
			logrus.Warnf("Failed to record rule hit for %s: %v", rule.Name, err)
		}

		if rule.StopProcessing {
			break
		}
	}
	return matches, nil
}

type ruleVerdict struct {
	Matches    bool   `json:"matches"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

func (r *RulesEvaluator) evaluateRule(ctx context.Context, email *model.EmailRecord, rule *model.EmailRule) (*ruleVerdict, error) {
	preview := email.BodyPreview
	if len(preview) > 500 {
		preview = preview[:500]
	}
	prompt := fmt.Sprintf(`Evaluate if this email matches the following rule condition:

RULE CONDITION:
"%s"

EMAIL DETAILS:
From: %s <%s>
Subject: %s
Preview: %s

---

Respond with valid JSON:
{
    "matches": true or false,
    "confidence": 0-100,
    "reason": "brief explanation"
}`, rule.MatchPrompt, email.SenderName, email.SenderEmail, email.Subject, preview)

	var verdict ruleVerdict
	if err := r.ai.CompleteJSON(ctx, rulesSystemPrompt, prompt, &verdict); err != nil {
		return nil, err
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 100 {
		verdict.Confidence = 100
	}
	return &verdict, nil
}
