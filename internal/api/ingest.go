package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// maxBatchBody caps the size of a batch ingestion body.
const maxBatchBody = 16 << 20

// ingestEvent handles POST /api/v1/ingest/events.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventCreate
	if err := decode(r, &req); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}

	ev, err := s.service.IngestEvent(r.Context(), req)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "ingest event", err))
		return
	}
	Created(w, ev)
}

// ingestBatch handles POST /api/v1/ingest/events/batch. The body is a JSON
// array of events. The batch is rejected whole when it is empty, too large
// or holds an invalid event; events for unknown incidents are skipped.
func (s *Server) ingestBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBody)

	var batch []models.EventCreate
	if err := decode(r, &batch); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}

	events, err := s.service.IngestBatch(r.Context(), batch)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "ingest batch", err))
		return
	}
	Created(w, BatchResponse{
		Items:    events,
		Accepted: len(events),
		Skipped:  len(batch) - len(events),
	})
}

// listEvents handles GET /api/v1/ingest/events/{incident_id}.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, apiErr := parseLimit(r.URL.Query().Get("limit"))
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	events, err := s.service.ListEvents(r.Context(), chi.URLParam(r, "incident_id"), limit)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "list events", err))
		return
	}
	OK(w, ListResponse{Items: events, Total: len(events)})
}
