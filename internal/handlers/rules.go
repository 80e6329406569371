package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// SpamRuleRequest is the create/update payload for a spam rule.
type SpamRuleRequest struct {
	RuleType   string `json:"rule_type" binding:"required"`
	Pattern    string `json:"pattern" binding:"required"`
	Confidence *int   `json:"confidence"`
	IsActive   *bool  `json:"is_active"`
}

// GetSpamRules returns all spam rules, learned and authored
func (h *Handlers) GetSpamRules(c *gin.Context) {
	rules, err := h.store.GetSpamRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch spam rules",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateSpamRule creates a spam rule
func (h *Handlers) CreateSpamRule(c *gin.Context) {
	var req SpamRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	switch req.RuleType {
	case model.SpamRuleSenderDomain, model.SpamRuleSenderEmail, model.SpamRuleSubjectPattern:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Unknown rule type",
			Code:    http.StatusBadRequest,
		})
		return
	}

	confidence := 80
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	rule := model.NewSpamRule(req.RuleType, req.Pattern, confidence)
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.store.CreateSpamRule(rule); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create spam rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateSpamRule updates a spam rule
func (h *Handlers) UpdateSpamRule(c *gin.Context) {
	var req SpamRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	rules, err := h.store.GetSpamRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch spam rules",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	id := c.Param("id")
	var rule *model.SpamRule
	for i := range rules {
		if rules[i].ID == id {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Spam rule not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	rule.RuleType = req.RuleType
	rule.Pattern = req.Pattern
	if req.Confidence != nil {
		rule.Confidence = *req.Confidence
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.store.UpdateSpamRule(rule); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update spam rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteSpamRule deletes a spam rule
func (h *Handlers) DeleteSpamRule(c *gin.Context) {
	if err := h.store.DeleteSpamRule(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete spam rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// ReportSpamFalsePositive decays a spam rule's confidence
func (h *Handlers) ReportSpamFalsePositive(c *gin.Context) {
	rule, err := h.store.ReportSpamFalsePositive(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to report false positive",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Spam rule not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// EmailRuleRequest is the create/update payload for a routing rule.
type EmailRuleRequest struct {
	Name           string `json:"name" binding:"required"`
	MatchPrompt    string `json:"match_prompt" binding:"required"`
	Action         string `json:"action" binding:"required"`
	ActionTarget   string `json:"action_target"`
	Priority       *int   `json:"priority"`
	StopProcessing *bool  `json:"stop_processing"`
	IsActive       *bool  `json:"is_active"`
}

// GetEmailRules returns all routing rules
func (h *Handlers) GetEmailRules(c *gin.Context) {
	rules, err := h.store.GetEmailRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch routing rules",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateEmailRule creates a routing rule
func (h *Handlers) CreateEmailRule(c *gin.Context) {
	var req EmailRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if !model.ValidRuleAction(model.RuleAction(req.Action)) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Unknown rule action",
			Code:    http.StatusBadRequest,
		})
		return
	}

	rule := model.NewEmailRule(req.Name, req.MatchPrompt, model.RuleAction(req.Action), req.ActionTarget)
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.StopProcessing != nil {
		rule.StopProcessing = *req.StopProcessing
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.store.CreateEmailRule(rule); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create routing rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateEmailRule updates a routing rule
func (h *Handlers) UpdateEmailRule(c *gin.Context) {
	var req EmailRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if !model.ValidRuleAction(model.RuleAction(req.Action)) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Unknown rule action",
			Code:    http.StatusBadRequest,
		})
		return
	}

	rules, err := h.store.GetEmailRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch routing rules",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	id := c.Param("id")
	var rule *model.EmailRule
	for i := range rules {
		if rules[i].ID == id {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Routing rule not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	rule.Name = req.Name
	rule.MatchPrompt = req.MatchPrompt
	rule.Action = model.RuleAction(req.Action)
	rule.ActionTarget = req.ActionTarget
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.StopProcessing != nil {
		rule.StopProcessing = *req.StopProcessing
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.store.UpdateEmailRule(rule); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update routing rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteEmailRule deletes a routing rule
func (h *Handlers) DeleteEmailRule(c *gin.Context) {
	if err := h.store.DeleteEmailRule(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete routing rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// ReportEmailRuleFalsePositive records a bad match against a routing rule
func (h *Handlers) ReportEmailRuleFalsePositive(c *gin.Context) {
	if err := h.store.ReportEmailRuleFalsePositive(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to report false positive",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.Status(http.StatusNoContent)
}
