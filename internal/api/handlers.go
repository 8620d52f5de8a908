package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/db"
	"github.com/banshee-data/celltower/internal/httputil"
	"github.com/banshee-data/celltower/internal/tower"
	"github.com/banshee-data/celltower/internal/version"
)

const (
	maxLocationTowers = 100
	defaultHistory    = 20
	maxHistory        = 500
	defaultSince      = time.Hour
)

// writeScannerError maps scanner sentinels onto status codes.
func writeScannerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tower.ErrBusy):
		httputil.WriteJSONError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, tower.ErrTimeout):
		httputil.WriteJSONError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, tower.ErrNotReady):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
	case errors.Is(err, tower.ErrStale):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "stale", err.Error())
	case errors.Is(err, tower.ErrClosed):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "closed", err.Error())
	case errors.Is(err, tower.ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
	default:
		httputil.WriteJSONError(w, http.StatusBadGateway, "modem", err.Error())
	}
}

type signalResponse struct {
	Strength int       `json:"strength"`
	Quality  int       `json:"quality"`
	Updated  time.Time `json:"updated"`
	AgeMs    int64     `json:"age_ms"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	maxAge, err := httputil.QueryDuration(r, "max_age", s.opts.SignalMaxAge)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sample, err := s.scanner.Signal(maxAge)
	if err != nil {
		writeScannerError(w, err)
		return
	}
	httputil.WriteJSONOK(w, signalResponse{
		Strength: sample.Strength,
		Quality:  sample.Quality,
		Updated:  sample.Updated,
		AgeMs:    s.clock.Since(sample.Updated).Milliseconds(),
	})
}

type towersResponse struct {
	Valid bool `json:"valid"`
	cellular.TowerInfo
}

type locationResponse struct {
	Towers []cellular.LocationTower `json:"towers"`
}

func (s *Server) handleTowers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	info := s.scanner.TowerInfo()

	switch format := r.URL.Query().Get("format"); format {
	case "", "full":
		httputil.WriteJSONOK(w, towersResponse{Valid: info.IsValid(), TowerInfo: info})
	case "location":
		limit, err := httputil.QueryInt(r, "limit", 0, 0, maxLocationTowers)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		towers := info.LocationTowers(limit)
		if towers == nil {
			towers = []cellular.LocationTower{}
		}
		httputil.WriteJSONOK(w, locationResponse{Towers: towers})
	default:
		httputil.BadRequest(w, "unknown format "+format)
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if httputil.QueryBool(r, "async") {
			if err := s.scanner.StartScan(); err != nil {
				writeScannerError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
			return
		}
		timeout, err := httputil.QueryDuration(r, "timeout", s.opts.ScanTimeout)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		info, err := s.scanner.ScanBlocking(r.Context(), timeout)
		if err != nil {
			writeScannerError(w, err)
			return
		}
		httputil.WriteJSONOK(w, towersResponse{Valid: info.IsValid(), TowerInfo: info})
	case http.MethodDelete:
		s.scanner.CancelScan()
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodPost, http.MethodDelete)
	}
}

type statusResponse struct {
	tower.Status
	LastScanAgo string                 `json:"last_scan_ago"`
	SignalAgo   string                 `json:"signal_ago"`
	Publisher   *tower.PublisherStatus `json:"publisher,omitempty"`
	Build       version.Info           `json:"build"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	st := s.scanner.Status()
	now := s.clock.Now()
	resp := statusResponse{
		Status:      st,
		LastScanAgo: s.ago(st.LastScanAt, now),
		SignalAgo:   s.ago(st.SignalUpdated, now),
		Build:       version.Current(),
	}
	if s.opts.Publisher != nil {
		ps := s.opts.Publisher.Status()
		resp.Publisher = &ps
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) ago(then, now time.Time) string {
	if then.IsZero() {
		return "never"
	}
	return humanize.RelTime(then, now, "ago", "from now")
}

type historyResponse struct {
	Scans []db.StoredScan `json:"scans"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultHistory, 1, maxHistory)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	scans, err := s.opts.History.RecentScans(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if scans == nil {
		scans = []db.StoredScan{}
	}
	httputil.WriteJSONOK(w, historyResponse{Scans: scans})
}

// SignalSummary describes the strength of a run of stored samples, in dBm.
type SignalSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func summarise(points []db.SignalPoint) SignalSummary {
	if len(points) == 0 {
		return SignalSummary{}
	}
	x := make([]float64, len(points))
	for i, p := range points {
		x[i] = float64(p.Strength)
	}
	sum := SignalSummary{Count: len(x), Min: floats.Min(x), Max: floats.Max(x)}
	if len(x) == 1 {
		sum.Mean = x[0]
		return sum
	}
	sum.Mean, sum.StdDev = stat.MeanStdDev(x, nil)
	return sum
}

type signalHistoryResponse struct {
	Since   time.Time        `json:"since"`
	Samples []db.SignalPoint `json:"samples"`
	Summary SignalSummary    `json:"summary"`
}

func (s *Server) signalHistory(ctx context.Context, window time.Duration) (time.Time, []db.SignalPoint, error) {
	since := s.clock.Now().Add(-window)
	points, err := s.opts.History.SignalHistory(ctx, since)
	return since, points, err
}

func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	window, err := httputil.QueryDuration(r, "since", defaultSince)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	since, points, err := s.signalHistory(r.Context(), window)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if points == nil {
		points = []db.SignalPoint{}
	}
	httputil.WriteJSONOK(w, signalHistoryResponse{Since: since, Samples: points, Summary: summarise(points)})
}
