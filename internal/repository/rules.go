package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// GetActiveSpamRules returns active spam rules ordered by confidence.
func (s *Store) GetActiveSpamRules() ([]model.SpamRule, error) {
	var rules []model.SpamRule
	result := s.db.Where("is_active = ?", true).Order("confidence DESC").Find(&rules)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list spam rules: %w", result.Error)
	}
	return rules, nil
}

// GetSpamRules lists all spam rules including inactive ones.
func (s *Store) GetSpamRules() ([]model.SpamRule, error) {
	var rules []model.SpamRule
	if result := s.db.Order("created_at DESC").Find(&rules); result.Error != nil {
		return nil, fmt.Errorf("failed to list spam rules: %w", result.Error)
	}
	return rules, nil
}

// CreateSpamRule inserts a rule.
func (s *Store) CreateSpamRule(rule *model.SpamRule) error {
	if result := s.db.Create(rule); result.Error != nil {
		return fmt.Errorf("failed to create spam rule: %w", result.Error)
	}
	return nil
}

// UpsertSpamRule creates the rule or, when one with the same type+pattern
// already exists, bumps its hit count and raises confidence toward the new
// value. Used by the learn-on-spam-command path so repeat reports strengthen
// the rule rather than duplicating it.
func (s *Store) UpsertSpamRule(ruleType, pattern string, confidence int) (*model.SpamRule, error) {
	var existing model.SpamRule
	result := s.db.Where("rule_type = ? AND pattern = ?", ruleType, pattern).First(&existing)
	if result.Error == nil {
		now := time.Now().UTC()
		existing.HitCount++
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		existing.IsActive = true
		existing.LastHitAt = &now
		existing.UpdatedAt = now
		if result := s.db.Save(&existing); result.Error != nil {
			return nil, fmt.Errorf("failed to update spam rule: %w", result.Error)
		}
		return &existing, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up spam rule: %w", result.Error)
	}
	rule := model.NewSpamRule(ruleType, pattern, confidence)
	if err := s.CreateSpamRule(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// RecordSpamRuleHit bumps a rule's hit counter and timestamp.
func (s *Store) RecordSpamRuleHit(id string) error {
	result := s.db.Model(&model.SpamRule{}).Where("id = ?", id).Updates(map[string]interface{}{
		"hit_count":   gorm.Expr("hit_count + 1"),
		"last_hit_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record spam rule hit: %w", result.Error)
	}
	return nil
}

// ReportSpamFalsePositive records a false positive: the counter increments and
// confidence drops by 10, floored at zero. The rule stays active so the user
// can see its decayed confidence in the dashboard.
func (s *Store) ReportSpamFalsePositive(id string) (*model.SpamRule, error) {
	var rule model.SpamRule
	result := s.db.Where("id = ?", id).First(&rule)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get spam rule: %w", result.Error)
	}
	rule.FalsePositives++
	rule.Confidence -= 10
	if rule.Confidence < 0 {
		rule.Confidence = 0
	}
	rule.UpdatedAt = time.Now().UTC()
	if result := s.db.Save(&rule); result.Error != nil {
		return nil, fmt.Errorf("failed to save spam rule: %w", result.Error)
	}
	return &rule, nil
}

// ReportSpamFalsePositiveByPattern decays every active rule matching the
// sender's domain or address. Used by the `keep` command, which knows the
// sender but not which rule fired.
func (s *Store) ReportSpamFalsePositiveByPattern(patterns ...string) error {
	if len(patterns) == 0 {
		return nil
	}
	var rules []model.SpamRule
	result := s.db.Where("pattern IN ? AND is_active = ?", patterns, true).Find(&rules)
	if result.Error != nil {
		return fmt.Errorf("failed to list spam rules for decay: %w", result.Error)
	}
	for i := range rules {
		if _, err := s.ReportSpamFalsePositive(rules[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSpamRule saves a user-edited rule.
func (s *Store) UpdateSpamRule(rule *model.SpamRule) error {
	if result := s.db.Save(rule); result.Error != nil {
		return fmt.Errorf("failed to update spam rule: %w", result.Error)
	}
	return nil
}

// DeleteSpamRule removes a rule.
func (s *Store) DeleteSpamRule(id string) error {
	if result := s.db.Delete(&model.SpamRule{}, "id = ?", id); result.Error != nil {
		return fmt.Errorf("failed to delete spam rule: %w", result.Error)
	}
	return nil
}

// GetActiveEmailRules returns active routing rules in evaluation order
// (ascending priority, then creation time for a stable tie-break).
func (s *Store) GetActiveEmailRules() ([]model.EmailRule, error) {
	var rules []model.EmailRule
	result := s.db.Where("is_active = ?", true).
		Order("priority ASC, created_at ASC").Find(&rules)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list email rules: %w", result.Error)
	}
	return rules, nil
}

// GetEmailRules lists all routing rules.
func (s *Store) GetEmailRules() ([]model.EmailRule, error) {
	var rules []model.EmailRule
	if result := s.db.Order("priority ASC").Find(&rules); result.Error != nil {
		return nil, fmt.Errorf("failed to list email rules: %w", result.Error)
	}
	return rules, nil
}

// CreateEmailRule inserts a routing rule.
func (s *Store) CreateEmailRule(rule *model.EmailRule) error {
	if result := s.db.Create(rule); result.Error != nil {
		return fmt.Errorf("failed to create email rule: %w", result.Error)
	}
	return nil
}

// UpdateEmailRule saves a user-edited routing rule.
func (s *Store) UpdateEmailRule(rule *model.EmailRule) error {
	if result := s.db.Save(rule); result.Error != nil {
		return fmt.Errorf("failed to update email rule: %w", result.Error)
	}
	return nil
}

// DeleteEmailRule removes a routing rule.
func (s *Store) DeleteEmailRule(id string) error {
	if result := s.db.Delete(&model.EmailRule{}, "id = ?", id); result.Error != nil {
		return fmt.Errorf("failed to delete email rule: %w", result.Error)
	}
	return nil
}

// RecordEmailRuleHit bumps a routing rule's hit counter and timestamp.
func (s *Store) RecordEmailRuleHit(id string) error {
	result := s.db.Model(&model.EmailRule{}).Where("id = ?", id).Updates(map[string]interface{}{
		"hit_count":   gorm.Expr("hit_count + 1"),
		"last_hit_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record email rule hit: %w", result.Error)
	}
	return nil
}

// ReportEmailRuleFalsePositive increments the rule's false-positive counter.
func (s *Store) ReportEmailRuleFalsePositive(id string) error {
	result := s.db.Model(&model.EmailRule{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"false_positives": gorm.Expr("false_positives + 1"),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to report email rule false positive: %w", result.Error)
	}
	return nil
}
