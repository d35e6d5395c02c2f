package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// CreateActionRequest is the body of POST /rules/{id}/actions.
type CreateActionRequest struct {
	ActionType string          `json:"action_type"`
	Enabled    *bool           `json:"enabled"`
	Config     json.RawMessage `json:"config"`
}

func (s *Server) listRuleActions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	ruleID := chi.URLParam(r, "id")
	if _, err := s.deps.Storage.Rules().GetByID(ctx, ruleID); err != nil {
		s.storageError(w, "get rule", err, ErrRuleNotFound)
		return
	}

	actions, err := s.deps.Storage.Actions().ListByRule(ctx, ruleID)
	if err != nil {
		s.logger.Error("list actions", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if actions == nil {
		actions = []*models.Action{}
	}
	OK(w, actions)
}

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var req CreateActionRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	kind := models.ActionKind(req.ActionType)
	if err := s.deps.Validator.ValidateConfig(kind, req.Config); err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	ruleID := chi.URLParam(r, "id")
	if _, err := s.deps.Storage.Rules().GetByID(ctx, ruleID); err != nil {
		s.storageError(w, "get rule", err, ErrRuleNotFound)
		return
	}

	action := &models.Action{
		ID:        uuid.New().String(),
		RuleID:    ruleID,
		Kind:      kind,
		Enabled:   req.Enabled == nil || *req.Enabled,
		Config:    req.Config,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.Storage.Actions().Create(ctx, action); err != nil {
		s.logger.Error("create action", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}

	s.logger.Info("action created",
		zap.String("action_id", action.ID),
		zap.String("rule_id", ruleID),
		zap.String("action_type", string(kind)))
	Created(w, action)
}

func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	action, err := s.deps.Storage.Actions().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storageError(w, "get action", err, ErrActionNotFound)
		return
	}
	OK(w, action)
}

func (s *Server) deleteAction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	if err := s.deps.Storage.Actions().Delete(ctx, chi.URLParam(r, "id")); err != nil {
		s.storageError(w, "delete action", err, ErrActionNotFound)
		return
	}
	NoContent(w)
}
