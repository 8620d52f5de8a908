package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusConflict, "busy", "scan already pending")

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "scan already pending" || resp.Code != "busy" {
		t.Errorf("body = %+v", resp)
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"count": 42})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["count"] != 42 {
		t.Errorf("count = %d, want 42", resp["count"])
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "x") }, http.StatusBadRequest, "bad_request"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "x") }, http.StatusInternalServerError, "internal"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound, "not_found"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w) }, http.StatusMethodNotAllowed, "method_not_allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestMethodNotAllowed_AllowHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodPost, http.MethodDelete)
	if got := rec.Header().Get("Allow"); got != "POST, DELETE" {
		t.Errorf("Allow = %q, want %q", got, "POST, DELETE")
	}
}

func TestQueryDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    time.Duration
		wantErr bool
	}{
		{"", 5 * time.Second, false},
		{"timeout=30", 30 * time.Second, false},
		{"timeout=0", 0, false},
		{"timeout=250ms", 250 * time.Millisecond, false},
		{"timeout=-1", 0, true},
		{"timeout=-1s", 0, true},
		{"timeout=soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got, err := QueryDuration(r, "timeout", 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 20, false},
		{"limit=1", 1, false},
		{"limit=100", 100, false},
		{"limit=0", 0, true},
		{"limit=101", 0, true},
		{"limit=ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got, err := QueryInt(r, "limit", 20, 1, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQueryBool(t *testing.T) {
	t.Parallel()

	for query, want := range map[string]bool{
		"":           false,
		"async=true": true,
		"async=1":    true,
		"async=no":   false,
	} {
		r := httptest.NewRequest(http.MethodGet, "/x?"+query, nil)
		if got := QueryBool(r, "async"); got != want {
			t.Errorf("QueryBool(%q) = %t, want %t", query, got, want)
		}
	}
}
