// Package api serves the scanner's JSON endpoints, a signal chart and the
// Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/db"
	"github.com/banshee-data/celltower/internal/monitoring"
	"github.com/banshee-data/celltower/internal/timeutil"
	"github.com/banshee-data/celltower/internal/tower"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Scanner is the part of *tower.Scanner the handlers use.
type Scanner interface {
	Signal(maxAge time.Duration) (tower.SignalSample, error)
	TowerInfo() cellular.TowerInfo
	StartScan() error
	ScanBlocking(ctx context.Context, timeout time.Duration) (cellular.TowerInfo, error)
	CancelScan()
	Status() tower.Status
}

// History is the stored scan and signal history. *db.DB satisfies it.
type History interface {
	RecentScans(ctx context.Context, limit int) ([]db.StoredScan, error)
	SignalHistory(ctx context.Context, since time.Time) ([]db.SignalPoint, error)
}

// PublisherStatus reports on the periodic publisher.
type PublisherStatus interface {
	Status() tower.PublisherStatus
}

// Options configures a Server. Nil History, Publisher and Gatherer switch
// the matching endpoints off.
type Options struct {
	History   History
	Publisher PublisherStatus
	Gatherer  prometheus.Gatherer
	Clock     timeutil.Clock

	// SignalMaxAge is the max_age used when the query omits it.
	SignalMaxAge time.Duration
	// ScanTimeout is the timeout used when POST /api/scan omits it.
	ScanTimeout time.Duration
}

type Server struct {
	scanner Scanner
	opts    Options
	clock   timeutil.Clock
}

func NewServer(scanner Scanner, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.SignalMaxAge <= 0 {
		opts.SignalMaxAge = 10 * time.Second
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	return &Server{scanner: scanner, opts: opts, clock: opts.Clock}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/signal", s.handleSignal)
	mux.HandleFunc("/api/towers", s.handleTowers)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/status", s.handleStatus)
	if s.opts.History != nil {
		mux.HandleFunc("/api/history", s.handleHistory)
		mux.HandleFunc("/api/signal/history", s.handleSignalHistory)
		mux.HandleFunc("/debug/signal-chart", s.handleSignalChart)
	}
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
