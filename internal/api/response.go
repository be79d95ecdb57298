package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

var errTrailingData = errors.New("unexpected data after JSON body")

// Response is a standard API response wrapper.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{Data: data}
	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)

	resp := Response{Error: err}
	json.NewEncoder(w).Encode(resp)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Accepted writes a 202 Accepted response.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// UpdateResponse is returned by partial updates. Ignored lists the request
// keys that are not updatable fields.
type UpdateResponse struct {
	Item    any      `json:"item"`
	Ignored []string `json:"ignored,omitempty"`
}

// ListResponse wraps a list with its length.
type ListResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

// BatchResponse is returned by batch ingestion.
type BatchResponse struct {
	Items    any `json:"items"`
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

// CommentRequest is the body of a new comment.
type CommentRequest struct {
	Author  string `json:"author"`
	Comment string `json:"comment"`
}

// decode reads a JSON body into v, rejecting trailing data.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
