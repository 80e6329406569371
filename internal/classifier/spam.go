// Package classifier holds the scoring and verdict units: spam/newsletter
// detection, meeting analysis, and the natural-language rules evaluator.
// Each unit is pure classification; persisting the verdict is the caller's
// job.
package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
)

// Built-in spam keyword list applied to subject and body.
var spamKeywords = []string{
	"unsubscribe", "newsletter", "promotional", "limited time",
	"act now", "click here", "free", "winner", "congratulations",
	"urgent action required", "verify your account", "confirm your",
	"marketing", "sale ends", "discount code", "special offer",
}

var spamSenderPatterns = []string{
	"noreply", "no-reply", "newsletter", "marketing",
	"promo", "info@", "notifications@", "alerts@",
}

// Transactional indicators override every spam rule: a learned "domain is
// spam" rule must never block a password reset from the same domain.
var transactionalSubjectPatterns = []string{
	"password reset", "reset your password", "password changed",
	"reset password", "forgot password", "new password",
	"verify your email", "confirm your email", "email verification",
	"two-factor", "2fa", "authentication code", "security code",
	"login attempt", "sign-in", "signin", "sign in",
	"suspicious activity", "security alert", "account locked",
	"order confirmation", "order confirmed", "your order",
	"receipt for", "payment received", "payment confirmation",
	"invoice", "your purchase", "shipping confirmation",
	"delivery", "tracking number", "shipped", "dispatched",
	"refund", "return confirmation",
	"subscription", "renewal", "billing", "payment due",
	"card expiring", "payment failed", "payment method",
	"account created", "welcome to", "registration",
	"profile updated", "settings changed", "email changed",
}

var transactionalBodyPatterns = []string{
	"click the link below to reset",
	"didn't request this", "ignore this email",
	"order total", "subtotal", "grand total",
	"tracking number", "track your order",
	"your verification code is",
	"expires in", "valid for",
}

var newsletterDomains = []string{
	"substack.com", "beehiiv.com", "mailchimp.com", "sendgrid.net",
	"constantcontact.com", "buttondown.email", "convertkit.com",
	"skool.com", "circle.so",
}

var newsletterSubjectIndicators = []string{
	"digest", "weekly", "newsletter", "update from", "your daily",
}

// Learned rules below this confidence no longer feed the high-score stages.
const learnedRuleMinConfidence = 70

const spamSystemPrompt = `You are a spam filter responsible for identifying unwanted emails.

Classify emails into:
1. HARD_SPAM: Scams, phishing, unsolicited junk - should be deleted
2. NEWSLETTER: Legitimate newsletters/promotional the user subscribed to
3. NOT_SPAM: Legitimate emails needing attention

Return spam_score (0-100), is_newsletter (bool), and reasoning.
Be conservative - when in doubt, mark as NOT_SPAM.`

// SpamVerdict is the classifier output.
type SpamVerdict struct {
	SpamScore       int    `json:"spam_score"`
	IsSpam          bool   `json:"is_spam"`
	IsNewsletter    bool   `json:"is_newsletter"`
	IsTransactional bool   `json:"is_transactional"`
	Reasoning       string `json:"reasoning"`
}

// SpamConfig carries the operator-configured pattern lists.
type SpamConfig struct {
	SpamSenderDomains   []string
	SpamSubjectPatterns []string
}

// SpamClassifier scores emails for spam/newsletter characteristics. The AI
// is consulted only for borderline heuristic scores; obvious spam and obvious
// ham never cost a model call.
type SpamClassifier struct {
	ai     gateway.Completer
	config SpamConfig
}

// NewSpamClassifier builds the classifier.
func NewSpamClassifier(ai gateway.Completer, config SpamConfig) *SpamClassifier {
	return &SpamClassifier{ai: ai, config: config}
}

// Classify runs the staged spam analysis. learnedRules are active SpamRules
// from storage; high-confidence ones count like configured spam domains and
// subject patterns.
func (c *SpamClassifier) Classify(ctx context.Context, email *model.EmailRecord, learnedRules []model.SpamRule) SpamVerdict {
	// Stage 1: transactional override. These are never spam.
	if matched, reason := transactionalMatch(email); matched {
		logrus.WithFields(logrus.Fields{
			"email_id": email.ID,
			"reason":   reason,
		}).Info("Transactional email detected")
		return SpamVerdict{SpamScore: 0, IsTransactional: true, Reasoning: reason}
	}

	senderLower := strings.ToLower(email.SenderEmail)
	bodyLower := strings.ToLower(email.BodyPreview)

	// Stage 2: known newsletter service domains.
	isNewsletter := false
	for _, domain := range newsletterDomains {
		if strings.Contains(senderLower, domain) {
			isNewsletter = true
			break
		}
	}

	// Stage 3: heuristic scoring.
	score, heuristicNewsletter := c.heuristicScore(email, learnedRules)
	isNewsletter = isNewsletter || heuristicNewsletter

	// Stage 4: obvious spam, skip the AI call.
	if score >= 80 && !isNewsletter {
		return SpamVerdict{
			SpamScore: score,
			IsSpam:    true,
			Reasoning: "High-confidence spam based on patterns",
		}
	}

	// Stage 5: newsletter, not spam.
	if isNewsletter || (score >= 50 && strings.Contains(bodyLower, "unsubscribe")) {
		return SpamVerdict{
			SpamScore:    score,
			IsNewsletter: true,
			Reasoning:    "Newsletter/promotional content",
		}
	}

	// Stage 6: borderline, ask the AI and blend.
	if score >= 30 {
		aiScore, aiNewsletter, reasoning := c.aiAnalysis(ctx, email)
		combined := int(math.Round(float64(score)*0.4 + float64(aiScore)*0.6))
		return SpamVerdict{
			SpamScore:    combined,
			IsSpam:       combined >= 70 && !aiNewsletter,
			IsNewsletter: aiNewsletter,
			Reasoning:    reasoning,
		}
	}

	return SpamVerdict{SpamScore: score, Reasoning: "Low spam probability"}
}

// heuristicScore is the weighted additive score. The weights are empirically
// tuned values; change them only with before/after measurements.
func (c *SpamClassifier) heuristicScore(email *model.EmailRecord, learnedRules []model.SpamRule) (int, bool) {
	score := 0
	isNewsletter := false

	senderLower := strings.ToLower(email.SenderEmail)
	subjectLower := strings.ToLower(email.Subject)
	bodyLower := strings.ToLower(email.BodyPreview)

	for _, pattern := range spamSenderPatterns {
		if strings.Contains(senderLower, pattern) {
			score += 15
			break
		}
	}

	for _, domain := range c.spamDomains(learnedRules) {
		if domain != "" && strings.Contains(senderLower, strings.ToLower(domain)) {
			score += 80
			break
		}
	}

	for _, pattern := range c.spamSubjects(learnedRules) {
		if pattern != "" && strings.Contains(subjectLower, strings.ToLower(pattern)) {
			score += 80
			break
		}
	}

	for _, indicator := range newsletterSubjectIndicators {
		if strings.Contains(subjectLower, indicator) {
			isNewsletter = true
			break
		}
	}

	subjectHits := 0
	for _, keyword := range spamKeywords {
		if strings.Contains(subjectLower, keyword) {
			subjectHits++
		}
	}
	if subjectHits > 0 {
		score += min(30, subjectHits*10)
	}

	bodyHits := 0
	for _, keyword := range spamKeywords {
		if strings.Contains(bodyLower, keyword) {
			bodyHits++
		}
	}
	if bodyHits > 0 {
		score += min(20, bodyHits*5)
	}

	if strings.Contains(bodyLower, "unsubscribe") || strings.Contains(subjectLower, "unsubscribe") {
		score += 25
		isNewsletter = true
	}

	for _, domain := range newsletterDomains {
		if strings.Contains(senderLower, domain) {
			isNewsletter = true
			score += 30
			break
		}
	}

	return min(100, score), isNewsletter
}

// spamDomains merges configured spam domains with learned sender rules.
func (c *SpamClassifier) spamDomains(learnedRules []model.SpamRule) []string {
	domains := append([]string(nil), c.config.SpamSenderDomains...)
	for i := range learnedRules {
		rule := &learnedRules[i]
		if rule.Confidence < learnedRuleMinConfidence {
			continue
		}
		if rule.RuleType == model.SpamRuleSenderDomain || rule.RuleType == model.SpamRuleSenderEmail {
			domains = append(domains, rule.Pattern)
		}
	}
	return domains
}

func (c *SpamClassifier) spamSubjects(learnedRules []model.SpamRule) []string {
	patterns := append([]string(nil), c.config.SpamSubjectPatterns...)
	for i := range learnedRules {
		rule := &learnedRules[i]
		if rule.Confidence >= learnedRuleMinConfidence && rule.RuleType == model.SpamRuleSubjectPattern {
			patterns = append(patterns, rule.Pattern)
		}
	}
	return patterns
}

type aiSpamResult struct {
	SpamScore    int    `json:"spam_score"`
	IsNewsletter bool   `json:"is_newsletter"`
	Reasoning    string `json:"reasoning"`
}

// aiAnalysis asks the model for a nuanced judgment. On failure it degrades to
// a neutral score of 50 rather than dropping the email.
func (c *SpamClassifier) aiAnalysis(ctx context.Context, email *model.EmailRecord) (score int, isNewsletter bool, reasoning string) {
	preview := email.BodyPreview
	if len(preview) > 500 {
		preview = preview[:500]
	}
	prompt := fmt.Sprintf(`Analyze this email:

From: %s <%s>
Subject: %s
Body Preview: %s

Classify:
1. spam_score (0-100): How spammy/unwanted is this?
2. is_newsletter (bool): Is this a legitimate newsletter/promotional the user subscribed to?
3. reasoning: Brief explanation

Guidelines:
- Hard spam (scams, phishing, unsolicited) = high score, is_newsletter=false
- Newsletters with unsubscribe = moderate score, is_newsletter=true
- Legitimate emails = low score, is_newsletter=false`,
		email.SenderDisplay(), email.SenderEmail, email.Subject, preview)

	var result aiSpamResult
	if err := c.ai.CompleteJSON(ctx, spamSystemPrompt, prompt, &result); err != nil {
		logrus.Warnf("AI spam analysis failed: %v", err)
		return 50, false, "Fallback score due to AI error"
	}
	score = result.SpamScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	reasoning = result.Reasoning
	if reasoning == "" {
		reasoning = "AI analysis"
	}
	return score, result.IsNewsletter, reasoning
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
