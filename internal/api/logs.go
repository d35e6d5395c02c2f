package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/ingest"
	"github.com/good-yellow-bee/callwatch/internal/models"
)

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	filter := models.LogFilter{
		Kind:   models.LogKind(r.URL.Query().Get("log_type")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		JSONError(w, NewBadRequest("invalid log_type"))
		return
	}
	if v := r.URL.Query().Get("processed"); v != "" {
		processed, err := strconv.ParseBool(v)
		if err != nil {
			JSONError(w, NewBadRequest("processed must be true or false"))
			return
		}
		filter.Processed = &processed
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	logs, total, err := s.deps.Storage.Logs().List(ctx, filter)
	if err != nil {
		s.logger.Error("list logs", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if logs == nil {
		logs = []*models.Log{}
	}
	OK(w, paginated(logs, total, page, perPage))
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	log, err := s.deps.Storage.Logs().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storageError(w, "get log", err, ErrLogNotFound)
		return
	}
	OK(w, log)
}

// IngestResponse reports stored record counts.
type IngestResponse struct {
	ingest.Result
	Total int `json:"total"`
}

func (s *Server) ingestLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		JSONError(w, NewConflict("ingestion is not enabled"))
		return
	}

	var batch ingest.Batch
	if apiErr := decodeJSON(w, r, &batch); apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	res, err := s.deps.Ingester.Ingest(r.Context(), &batch)
	if err != nil {
		s.logger.Error("ingest logs", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, IngestResponse{Result: res, Total: res.Total()})
}
