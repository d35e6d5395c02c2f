package api

import (
	"net/http"

	"go.uber.org/zap"
)

// ProcessResponse reports the outcome of a manual pass.
type ProcessResponse struct {
	Ran       bool `json:"ran"`
	Processed int  `json:"processed"`
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	if s.deps.Processor == nil {
		JSONError(w, NewConflict("processing is not enabled"))
		return
	}

	count, ran, err := s.deps.Processor.RunOnce(r.Context())
	if err != nil {
		s.logger.Error("manual pass failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if !ran {
		JSONError(w, NewConflict("another pass is in progress"))
		return
	}
	OK(w, ProcessResponse{Ran: true, Processed: count})
}
