package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/celltower/internal/httputil"
)

// maxChartPoints caps the samples plotted; longer runs are strided.
const maxChartPoints = 2000

// handleSignalChart renders stored signal strength as an HTML line chart.
// Query params:
//   - since (optional; default 1h) how far back to plot
func (s *Server) handleSignalChart(w http.ResponseWriter, r *http.Request) {
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

	stride := 1
	if len(points) > maxChartPoints {
		stride = (len(points) + maxChartPoints - 1) / maxChartPoints
	}
	x := make([]string, 0, len(points)/stride+1)
	y := make([]opts.LineData, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		x = append(x, p.SampledAt.Local().Format(time.TimeOnly))
		y = append(y, opts.LineData{Value: p.Strength})
	}
	summary := summarise(points)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cell Signal", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Signal strength (dBm)",
			Subtitle: fmt.Sprintf("since %s, samples=%d mean=%.1f stddev=%.1f",
				since.Local().Format(time.DateTime), summary.Count, summary.Mean, summary.StdDev),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dBm", Max: 0}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("strength", y,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(false)}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
