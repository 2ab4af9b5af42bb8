// Package problem renders RFC 7807 problem documents.
package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	typeBaseURL = "https://errors.exchange-ledger.dev/"
	traceHeader = "X-Trace-ID"
)

// Details is the problem document every error response carries.
type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	// Retryable mirrors a Retry-After header set before writing.
	Retryable bool `json:"retryable,omitempty"`
}

// Type expands a slug such as "ledger/insufficient-funds" into a type URI.
func Type(slug string) string {
	return typeBaseURL + slug
}

// Write sends a problem document. Blank type and title fall back to
// about:blank and the status text.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	d := Details{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		TraceID:   w.Header().Get(traceHeader),
		Retryable: w.Header().Get("Retry-After") != "",
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if d.Title == "" {
		d.Title = http.StatusText(status)
	}
	if r != nil {
		d.Instance = r.URL.Path
		if d.TraceID == "" {
			d.TraceID = r.Header.Get(traceHeader)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
