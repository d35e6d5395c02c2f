package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

func (s *Server) listAlertHistory(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	offset := (page - 1) * perPage

	ctx, cancel := s.queryContext(r)
	defer cancel()

	var (
		entries []*models.AlertHistory
		total   int64
		err     error
	)
	if ruleID := r.URL.Query().Get("rule_id"); ruleID != "" {
		entries, total, err = s.deps.Storage.AlertHistory().ListByRule(ctx, ruleID, perPage, offset)
	} else {
		entries, total, err = s.deps.Storage.AlertHistory().List(ctx, perPage, offset)
	}
	if err != nil {
		s.logger.Error("list alert history", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if entries == nil {
		entries = []*models.AlertHistory{}
	}
	OK(w, paginated(entries, total, page, perPage))
}
