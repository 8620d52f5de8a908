package serialmux

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_ATCommand(t *testing.T) {
	port := newRecordingPort("")
	mux := NewSerialMux(port)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name           string
		method         string
		form           url.Values
		expectedStatus int
		bodyContains   string
	}{
		{"valid command", http.MethodPost, url.Values{"command": {"AT+CSQ"}}, http.StatusOK, "AT+CSQ"},
		{"empty command", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest, "Missing command"},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/at-command", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.bodyContains) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.bodyContains)
			}
		})
	}

	if got := port.Written(); got != "AT+CSQ\r" {
		t.Errorf("written = %q, want %q", got, "AT+CSQ\r")
	}
}

func TestAttachAdminRoutes_ConsoleAndScript(t *testing.T) {
	mux := NewSerialMux(newRecordingPort(""))
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/at-console", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/debug/tail.js") {
		t.Errorf("at-console: status %d body %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/tail.js", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "EventSource") {
		t.Errorf("tail.js: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("tail.js content type = %q", ct)
	}
}

func TestAttachAdminRoutes_TailRejectsPost(t *testing.T) {
	mux := NewSerialMux(newRecordingPort(""))
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/tail", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
