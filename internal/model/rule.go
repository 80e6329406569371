package model

import (
	"time"

	"github.com/google/uuid"
)

// SpamRule is a learned or authored spam-matching rule. Confidence decays on
// false-positive reports and climbs on repeat hits; rules below the floor are
// effectively inert even while is_active stays true.
type SpamRule struct {
	ID             string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	RuleType       string     `json:"rule_type" gorm:"type:varchar(32);not null"` // sender_domain, sender_email, subject_pattern
	Pattern        string     `json:"pattern" gorm:"type:varchar(500);not null;index"`
	Action         string     `json:"action" gorm:"type:varchar(32);default:'mark_spam'"`
	Confidence     int        `json:"confidence" gorm:"default:80"`
	HitCount       int        `json:"hit_count" gorm:"default:0"`
	FalsePositives int        `json:"false_positives" gorm:"default:0"`
	IsActive       bool       `json:"is_active" gorm:"default:true;index"`
	LastHitAt      *time.Time `json:"last_hit_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for SpamRule.
func (SpamRule) TableName() string {
	return "spam_rules"
}

// NewSpamRule creates an active rule with the given confidence.
func NewSpamRule(ruleType, pattern string, confidence int) *SpamRule {
	now := time.Now().UTC()
	return &SpamRule{
		ID:         uuid.New().String(),
		RuleType:   ruleType,
		Pattern:    pattern,
		Action:     "mark_spam",
		Confidence: confidence,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SpamRule rule types.
const (
	SpamRuleSenderDomain   = "sender_domain"
	SpamRuleSenderEmail    = "sender_email"
	SpamRuleSubjectPattern = "subject_pattern"
)

// EmailRule is a user-authored routing rule whose match condition is a
// natural-language prompt evaluated by the AI per email. Lower Priority is
// evaluated first; StopProcessing short-circuits the remaining rules.
type EmailRule struct {
	ID             string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name           string     `json:"name" gorm:"type:varchar(255);not null"`
	MatchPrompt    string     `json:"match_prompt" gorm:"type:text;not null"`
	Action         RuleAction `json:"action" gorm:"type:varchar(32);not null"`
	ActionTarget   string     `json:"action_target" gorm:"type:varchar(500)"` // folder name, forward address, priority value
	Priority       int        `json:"priority" gorm:"default:100;index"`
	StopProcessing bool       `json:"stop_processing" gorm:"default:false"`
	HitCount       int        `json:"hit_count" gorm:"default:0"`
	FalsePositives int        `json:"false_positives" gorm:"default:0"`
	IsActive       bool       `json:"is_active" gorm:"default:true;index"`
	LastHitAt      *time.Time `json:"last_hit_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for EmailRule.
func (EmailRule) TableName() string {
	return "email_rules"
}

// NewEmailRule creates an active routing rule at the default priority.
func NewEmailRule(name, matchPrompt string, action RuleAction, actionTarget string) *EmailRule {
	now := time.Now().UTC()
	return &EmailRule{
		ID:           uuid.New().String(),
		Name:         name,
		MatchPrompt:  matchPrompt,
		Action:       action,
		ActionTarget: actionTarget,
		Priority:     100,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RuleAction is what an EmailRule does on match.
type RuleAction string

const (
	ActionMoveToFolder RuleAction = "move_to_folder"
	ActionArchive      RuleAction = "archive"
	ActionForward      RuleAction = "forward"
	ActionSetPriority  RuleAction = "set_priority"
	ActionNotify       RuleAction = "notify"
)

// ValidRuleAction reports whether a is a known action.
func ValidRuleAction(a RuleAction) bool {
	switch a {
	case ActionMoveToFolder, ActionArchive, ActionForward, ActionSetPriority, ActionNotify:
		return true
	}
	return false
}

// RuleMatch is a rules-evaluator verdict for a single rule.
type RuleMatch struct {
	Rule       *EmailRule
	Confidence int
	Reason     string
}
