package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/alerting"
	"github.com/good-yellow-bee/callwatch/internal/models"
	"github.com/good-yellow-bee/callwatch/internal/storage"
)

// CreateRuleRequest is the body of POST /rules.
type CreateRuleRequest struct {
	Name                   string `json:"name"`
	Description            string `json:"description"`
	Enabled                *bool  `json:"enabled"`
	LogType                string `json:"log_type"`
	PatternType            string `json:"pattern_type"`
	PatternValue           string `json:"pattern_value"`
	ThresholdCount         *int   `json:"threshold_count"`
	ThresholdWindowMinutes *int   `json:"threshold_window_minutes"`
}

// UpdateRuleRequest is the body of PUT /rules/{id}. Absent fields are kept.
type UpdateRuleRequest struct {
	Name                   *string `json:"name"`
	Description            *string `json:"description"`
	Enabled                *bool   `json:"enabled"`
	LogType                *string `json:"log_type"`
	PatternType            *string `json:"pattern_type"`
	PatternValue           *string `json:"pattern_value"`
	ThresholdCount         *int    `json:"threshold_count"`
	ThresholdWindowMinutes *int    `json:"threshold_window_minutes"`
}

// SetEnabledRequest is the body of PUT /rules/{id}/enabled.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	rules, err := s.deps.Storage.Rules().List(ctx)
	if err != nil {
		s.logger.Error("list rules", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if rules == nil {
		rules = []*models.MonitoringRule{}
	}
	OK(w, rules)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	now := time.Now().UTC()
	rule := &models.MonitoringRule{
		ID:                     uuid.New().String(),
		Name:                   req.Name,
		Description:            req.Description,
		Enabled:                req.Enabled == nil || *req.Enabled,
		LogKind:                models.LogKind(req.LogType),
		PatternKind:            models.PatternKind(req.PatternType),
		Pattern:                req.PatternValue,
		ThresholdCount:         req.ThresholdCount,
		ThresholdWindowMinutes: req.ThresholdWindowMinutes,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := alerting.ValidateRule(rule); err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	if err := s.deps.Storage.Rules().Create(ctx, rule); err != nil {
		s.logger.Error("create rule", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}

	s.logger.Info("rule created", zap.String("rule_id", rule.ID), zap.String("name", rule.Name))
	Created(w, rule)
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	rule, err := s.deps.Storage.Rules().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storageError(w, "get rule", err, ErrRuleNotFound)
		return
	}
	OK(w, rule)
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	var req UpdateRuleRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	rule, err := s.deps.Storage.Rules().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storageError(w, "get rule", err, ErrRuleNotFound)
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.LogType != nil {
		rule.LogKind = models.LogKind(*req.LogType)
	}
	if req.PatternType != nil {
		rule.PatternKind = models.PatternKind(*req.PatternType)
	}
	if req.PatternValue != nil {
		rule.Pattern = *req.PatternValue
	}
	if req.ThresholdCount != nil {
		rule.ThresholdCount = req.ThresholdCount
	}
	if req.ThresholdWindowMinutes != nil {
		rule.ThresholdWindowMinutes = req.ThresholdWindowMinutes
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := alerting.ValidateRule(rule); err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	if err := s.deps.Storage.Rules().Update(ctx, rule); err != nil {
		s.storageError(w, "update rule", err, ErrRuleNotFound)
		return
	}
	OK(w, rule)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := s.deps.Storage.Rules().Delete(ctx, id); err != nil {
		s.storageError(w, "delete rule", err, ErrRuleNotFound)
		return
	}
	s.logger.Info("rule deleted", zap.String("rule_id", id))
	NoContent(w)
}

func (s *Server) setRuleEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	if req.Enabled == nil {
		JSONError(w, NewValidationError("enabled is required"))
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := s.deps.Storage.Rules().SetEnabled(ctx, id, *req.Enabled); err != nil {
		s.storageError(w, "set rule enabled", err, ErrRuleNotFound)
		return
	}
	rule, err := s.deps.Storage.Rules().GetByID(ctx, id)
	if err != nil {
		s.storageError(w, "get rule", err, ErrRuleNotFound)
		return
	}
	OK(w, rule)
}

// storageError maps storage.ErrNotFound to notFound and anything else to 500.
func (s *Server) storageError(w http.ResponseWriter, op string, err error, notFound *Error) {
	if errors.Is(err, storage.ErrNotFound) {
		JSONError(w, notFound)
		return
	}
	s.logger.Error(op, zap.Error(err))
	JSONError(w, ErrInternalServer)
}
