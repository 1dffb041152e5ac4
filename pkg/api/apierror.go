// Package api is the HTTP front end: RFC 7807 problem responses, the chat
// and catalog endpoints and their middleware.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// Request-level errors use this format; turn failures use ChatError.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// TraceID echoes X-Request-ID.
	TraceID string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("urn:sdnguard:problem:%d", status)
}

// WriteErrorR writes an RFC 7807 Problem Detail JSON response with the
// request path as instance.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get(RequestIDHeader),
	})
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorR(w, r, http.StatusNotFound, "Not Found", "No such endpoint")
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	WriteErrorR(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error", "error", err, "path", r.URL.Path)
	WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
