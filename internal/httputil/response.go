// Package httputil holds the JSON response and query helpers shared by the
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/celltower/internal/monitoring"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes data with 200 OK.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteJSONError writes an ErrorBody with the given status code. code is a
// short machine-readable token and may be empty.
func WriteJSONError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Code: code})
}

// MethodNotAllowed writes a 405 listing the allowed methods.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, "bad_request", msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, "internal", msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, "not_found", msg)
}

// QueryDuration parses the named query parameter as a Go duration or a
// whole number of seconds. A missing parameter returns def.
func QueryDuration(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%s must not be negative", name)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// QueryInt parses the named query parameter as an integer in [lo, hi]. A
// missing parameter returns def.
func QueryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

// QueryBool reports whether the named query parameter is a true value.
func QueryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
