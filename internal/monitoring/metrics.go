package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scan outcomes used as the "result" label.
const (
	ResultCompleted = "completed"
	ResultNotReady  = "not_ready"
	ResultFailed    = "failed"
	ResultTimeout   = "timeout"
)

// ScanCollector exposes scanner metrics. All methods are safe on a nil
// receiver so components can run without metrics wired.
type ScanCollector struct {
	gatherer prometheus.Gatherer

	Scans          *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	BusyRejections prometheus.Counter
	ParseErrors    *prometheus.CounterVec
	SignalDBm      prometheus.Gauge
	Neighbors      prometheus.Gauge
}

// NewScanCollector registers the scanner metrics against reg. A nil reg
// uses the default registry.
func NewScanCollector(reg prometheus.Registerer) (*ScanCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	scans, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "celltower_scans_total",
		Help: "Tower scans by outcome.",
	}, []string{"result"}), "celltower_scans_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "celltower_scan_duration_seconds",
		Help:    "Time spent talking to the modem for one tower scan.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "celltower_scan_duration_seconds")
	if err != nil {
		return nil, err
	}

	busy, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "celltower_scan_busy_total",
		Help: "Scan requests rejected because another scan was queued or pending.",
	}), "celltower_scan_busy_total")
	if err != nil {
		return nil, err
	}

	parseErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "celltower_parse_errors_total",
		Help: "QENG response lines that failed to parse, by line kind.",
	}, []string{"kind"}), "celltower_parse_errors_total")
	if err != nil {
		return nil, err
	}

	signal, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "celltower_signal_dbm",
		Help: "Most recent received signal strength in dBm.",
	}), "celltower_signal_dbm")
	if err != nil {
		return nil, err
	}

	neighbors, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "celltower_neighbors",
		Help: "Neighbor cells in the last completed scan.",
	}), "celltower_neighbors")
	if err != nil {
		return nil, err
	}

	return &ScanCollector{
		gatherer:       gatherer,
		Scans:          scans,
		ScanDuration:   duration,
		BusyRejections: busy,
		ParseErrors:    parseErrors,
		SignalDBm:      signal,
		Neighbors:      neighbors,
	}, nil
}

// Gatherer returns the gatherer the collector was registered with.
func (c *ScanCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveScan counts a finished scan and, for scans that reached the modem,
// records how long it took.
func (c *ScanCollector) ObserveScan(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.Scans.WithLabelValues(result).Inc()
	if d > 0 {
		c.ScanDuration.Observe(d.Seconds())
	}
}

func (c *ScanCollector) IncBusy() {
	if c == nil {
		return
	}
	c.BusyRejections.Inc()
}

// IncParseError counts a rejected QENG line; kind is "serving" or "neighbor".
func (c *ScanCollector) IncParseError(kind string) {
	if c == nil {
		return
	}
	c.ParseErrors.WithLabelValues(kind).Inc()
}

func (c *ScanCollector) SetSignal(dbm int) {
	if c == nil {
		return
	}
	c.SignalDBm.Set(float64(dbm))
}

func (c *ScanCollector) SetNeighbors(n int) {
	if c == nil {
		return
	}
	c.Neighbors.Set(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
