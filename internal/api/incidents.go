package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/storage"
)

// actorHeader names the caller on mutating requests.
const actorHeader = "X-Actor"

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

// createIncident handles POST /api/v1/incidents.
func (s *Server) createIncident(w http.ResponseWriter, r *http.Request) {
	var req models.IncidentCreate
	if err := decode(r, &req); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}

	inc, err := s.service.CreateIncident(r.Context(), req)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "create incident", err))
		return
	}
	Created(w, inc)
}

// listIncidents handles GET /api/v1/incidents.
func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter storage.IncidentFilter

	if v := q.Get("status"); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			JSONError(w, NewValidationError(err.Error()))
			return
		}
		filter.Status = st
	}
	if v := q.Get("severity"); v != "" {
		sev, err := models.ParseSeverity(v)
		if err != nil {
			JSONError(w, NewValidationError(err.Error()))
			return
		}
		filter.Severity = sev
	}
	limit, apiErr := parseLimit(q.Get("limit"))
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	filter.Limit = limit

	incidents, err := s.service.ListIncidents(r.Context(), filter)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "list incidents", err))
		return
	}
	OK(w, ListResponse{Items: incidents, Total: len(incidents)})
}

// getIncident handles GET /api/v1/incidents/{id}.
func (s *Server) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "get incident", err))
		return
	}
	OK(w, inc)
}

// updateIncident handles PATCH /api/v1/incidents/{id}. The body is a raw
// field map; keys that are not updatable are ignored and reported back.
func (s *Server) updateIncident(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decode(r, &raw); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}

	inc, ignored, err := s.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), raw, actor(r))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "update incident", err))
		return
	}
	OK(w, UpdateResponse{Item: inc, Ignored: ignored})
}

// updateStatus handles PATCH /api/v1/incidents/{id}/status.
func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	who := req.Actor
	if who == "" {
		who = actor(r)
	}

	inc, err := s.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status, who)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "update status", err))
		return
	}
	OK(w, inc)
}

// timeline handles GET /api/v1/incidents/{id}/timeline.
func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "timeline", err))
		return
	}
	OK(w, ListResponse{Items: entries, Total: len(entries)})
}

// addComment handles POST /api/v1/incidents/{id}/comments.
func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := decode(r, &req); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}
	author := req.Author
	if author == "" {
		author = actor(r)
	}

	entry, err := s.service.AddComment(r.Context(), chi.URLParam(r, "id"), author, req.Comment)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "add comment", err))
		return
	}
	Created(w, entry)
}

// listActions handles GET /api/v1/incidents/{id}/actions.
func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.service.Actions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "list actions", err))
		return
	}
	OK(w, ListResponse{Items: actions, Total: len(actions)})
}

// createAction handles POST /api/v1/incidents/{id}/actions.
func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var req models.ActionCreate
	if err := decode(r, &req); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}
	req.IncidentID = chi.URLParam(r, "id")
	if req.SuggestedBy == "" {
		req.SuggestedBy = actor(r)
	}

	a, err := s.service.CreateAction(r.Context(), req)
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "create action", err))
		return
	}
	Created(w, a)
}

// updateAction handles PATCH /api/v1/actions/{id}.
func (s *Server) updateAction(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decode(r, &raw); err != nil {
		JSONError(w, ErrInvalidBody)
		return
	}

	a, ignored, err := s.service.UpdateAction(r.Context(), chi.URLParam(r, "id"), raw, actor(r))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "update action", err))
		return
	}
	OK(w, UpdateResponse{Item: a, Ignored: ignored})
}

// requestAnalysis handles POST /api/v1/incidents/{id}/analyze. The analysis
// runs in the background; the response carries the job to poll.
func (s *Server) requestAnalysis(w http.ResponseWriter, r *http.Request) {
	h, err := s.service.RequestAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "request analysis", err))
		return
	}
	Accepted(w, h.Status())
}

// getJob handles GET /api/v1/jobs/{id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Job(chi.URLParam(r, "id"))
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "get job", err))
		return
	}
	OK(w, st)
}

// postmortem handles GET /api/v1/incidents/{id}/postmortem. format is
// markdown (default) or html; the document is returned as the body.
func (s *Server) postmortem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		doc         string
		err         error
		contentType string
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "markdown", "md":
		doc, err = s.service.Postmortem(r.Context(), id)
		contentType = "text/markdown; charset=utf-8"
	case "html":
		doc, err = s.service.PostmortemHTML(r.Context(), id)
		contentType = "text/html; charset=utf-8"
	default:
		JSONError(w, NewBadRequest("format must be markdown or html"))
		return
	}
	if err != nil {
		JSONError(w, fromServiceError(s.logger, "postmortem", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

// parseLimit parses an optional positive limit. Zero means the default.
func parseLimit(v string) (int, *Error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, NewBadRequest("limit must be a non-negative integer")
	}
	return n, nil
}
