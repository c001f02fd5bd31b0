package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"worktrack.app/relay/common/logger"
	"worktrack.app/relay/internal/automation"
	"worktrack.app/relay/internal/http/dto"
	"worktrack.app/relay/internal/service"
)

type AutomationRuleHandler struct {
	rules service.AutomationRuleService
}

func NewAutomationRuleHandler(rules service.AutomationRuleService) *AutomationRuleHandler {
	return &AutomationRuleHandler{rules: rules}
}

func (h *AutomationRuleHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateAutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.rules.Create(ctx, orgID(c), service.CreateRuleParams{
		Name:           req.Name,
		EventTypes:     req.EventTypes,
		ConditionLabel: req.ConditionLabel,
		ConditionCode:  req.ConditionCode,
		PromptTemplate: req.PromptTemplate,
		Priority:       req.Priority,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.writeError(c, err, "failed to create automation rule")
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{RuleID: logger.Ptr(rule.ID)})
	slog.InfoContext(ctx, "automation rule created", "key_name", rule.KeyName)
	c.JSON(http.StatusCreated, dto.ToAutomationRuleResponse(rule))
}

func (h *AutomationRuleHandler) Get(c *gin.Context) {
	ruleID, ok := pathID(c)
	if !ok {
		return
	}

	rule, err := h.rules.Get(c.Request.Context(), orgID(c), ruleID)
	if err != nil {
		h.writeError(c, err, "failed to get automation rule")
		return
	}

	c.JSON(http.StatusOK, dto.ToAutomationRuleResponse(rule))
}

func (h *AutomationRuleHandler) List(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context(), orgID(c))
	if err != nil {
		h.writeError(c, err, "failed to list automation rules")
		return
	}

	c.JSON(http.StatusOK, dto.ToAutomationRuleListResponse(rules))
}

func (h *AutomationRuleHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	ruleID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateAutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.rules.Update(ctx, orgID(c), ruleID, service.UpdateRuleParams{
		Name:           req.Name,
		EventTypes:     req.EventTypes,
		ConditionLabel: req.ConditionLabel,
		ConditionCode:  req.ConditionCode,
		PromptTemplate: req.PromptTemplate,
		Priority:       req.Priority,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.writeError(c, err, "failed to update automation rule")
		return
	}

	c.JSON(http.StatusOK, dto.ToAutomationRuleResponse(rule))
}

func (h *AutomationRuleHandler) Delete(c *gin.Context) {
	ruleID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.rules.Delete(c.Request.Context(), orgID(c), ruleID); err != nil {
		h.writeError(c, err, "failed to delete automation rule")
		return
	}

	c.Status(http.StatusNoContent)
}

// ValidateCondition reports whether condition code parses. An invalid condition is a
// normal answer, not a request error.
func (h *AutomationRuleHandler) ValidateCondition(c *gin.Context) {
	var req dto.ValidateConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := automation.ValidateSyntax(req.ConditionCode); err != nil {
		c.JSON(http.StatusOK, dto.ValidateConditionResponse{Valid: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ValidateConditionResponse{Valid: true})
}

func (h *AutomationRuleHandler) ConditionSchema(c *gin.Context) {
	c.JSON(http.StatusOK, automation.ConditionReference())
}

func (h *AutomationRuleHandler) writeError(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, service.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "automation rule not found"})
	case errors.Is(err, service.ErrRuleNameTaken):
		slog.InfoContext(ctx, "duplicate automation rule name")
		c.JSON(http.StatusConflict, gin.H{"error": "automation rule with this name already exists"})
	default:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
