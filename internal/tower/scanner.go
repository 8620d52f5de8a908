// Package tower runs periodic signal sampling and on-demand cell tower scans
// against a Quectel modem from a single worker goroutine, and caches the
// results for concurrent readers.
package tower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/modem"
	"github.com/banshee-data/celltower/internal/monitoring"
	"github.com/banshee-data/celltower/internal/timeutil"
)

// Transport is the modem access the worker needs. *modem.Modem satisfies it.
type Transport interface {
	Ready(ctx context.Context) bool
	Command(ctx context.Context, cmd string, onLine func(modem.LineType, string), timeout time.Duration) error
	SignalStrength(ctx context.Context) (cellular.Signal, error)
}

// Options tunes a Scanner. Zero values select the defaults.
type Options struct {
	// SuccessPeriod is the longest the worker waits for a command before
	// sampling the signal again.
	SuccessPeriod time.Duration
	// CommandTimeout bounds each QENG command.
	CommandTimeout time.Duration
	// MaxNeighbors caps the neighbors kept per scan; 0 keeps all.
	MaxNeighbors int

	Clock   timeutil.Clock
	Metrics *monitoring.ScanCollector
}

const (
	DefaultSuccessPeriod  = time.Second
	DefaultCommandTimeout = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.SuccessPeriod <= 0 {
		o.SuccessPeriod = DefaultSuccessPeriod
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.MaxNeighbors < 0 {
		o.MaxNeighbors = 0
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Scanner is the public face of the worker. Build one per modem with New,
// start it with Run, and share it between goroutines.
type Scanner struct {
	transport Transport
	opts      Options
	clock     timeutil.Clock
	metrics   *monitoring.ScanCollector

	cmds     chan command
	done     chan struct{}
	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once
	state    atomic.Int32

	requests requestSlot

	// mu guards the signal cache and everything below it. It is never held
	// across a transport call.
	mu           sync.RWMutex
	signal       *SignalCache
	last         cellular.TowerInfo
	lastScanAt   time.Time
	lastResult   string
	lastErr      error
	scanCount    int64
	failureCount int64
}

// New returns a Scanner for transport. The worker does not run until Run is
// called.
func New(transport Transport, opts Options) *Scanner {
	opts = opts.withDefaults()
	s := &Scanner{
		transport: transport,
		opts:      opts,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		cmds:      make(chan command, 1),
		done:      make(chan struct{}),
		last:      cellular.NewTowerInfo(),
	}
	s.signal = NewSignalCache(&s.mu, opts.Clock)
	s.state.Store(int32(StateIdle))
	return s
}

// Run executes the worker loop on the calling goroutine until ctx is done or
// Stop is called. It returns ErrClosed if the scanner already ran or was
// stopped.
func (s *Scanner) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrClosed
	}
	monitoring.Logf("Tower scanner started: period=%s command_timeout=%s max_neighbors=%d",
		s.opts.SuccessPeriod, s.opts.CommandTimeout, s.opts.MaxNeighbors)
	err := s.run(ctx)
	monitoring.Logf("Tower scanner terminated")
	return err
}

// Stop asks the worker to exit and waits for it. Any request still bound
// completes with ErrClosed.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		if s.started.CompareAndSwap(false, true) {
			s.closed.Store(true)
			close(s.done)
			return
		}
		select {
		case s.cmds <- command{kind: cmdExit}:
		case <-s.done:
		}
	})
	<-s.done
}

// Done is closed when the worker has exited.
func (s *Scanner) Done() <-chan struct{} {
	return s.done
}

// StartScan queues a scan without waiting for it. It fails with ErrBusy if
// a command is already queued.
func (s *Scanner) StartScan() error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.cmds <- command{kind: cmdMeasure}:
		return nil
	default:
		s.metrics.IncBusy()
		return ErrBusy
	}
}

// ScanWithCallback queues a scan and calls fn with a copy of the result when
// it completes. fn runs on the worker goroutine and must not block. It is
// not called if the modem is not ready, the scan fails, or the request is
// cancelled. ErrBusy is returned, and fn discarded, when a command is queued
// or another request is still waiting. Unlike StartScan, an empty queue is
// not enough: at most one request is ever outstanding.
func (s *Scanner) ScanWithCallback(fn func(cellular.TowerInfo)) error {
	_, err := s.submit(func(info cellular.TowerInfo, err error) {
		if err == nil && fn != nil {
			fn(info)
		}
	})
	return err
}

func (s *Scanner) submit(fn completion) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	id, ok := s.requests.bind(fn, func(id uint64) bool {
		select {
		case s.cmds <- command{kind: cmdMeasure, request: id}:
			return true
		default:
			return false
		}
	})
	if !ok {
		s.metrics.IncBusy()
		return 0, ErrBusy
	}
	return id, nil
}

type scanResult struct {
	info cellular.TowerInfo
	err  error
}

// ScanBlocking queues a scan and waits up to timeout for it; 0 waits until
// the scan finishes or ctx is done. On ErrTimeout the request is withdrawn
// and its result discarded. A scan that finds the modem unregistered returns
// ErrNotReady; a transport failure returns the wrapped transport error.
func (s *Scanner) ScanBlocking(ctx context.Context, timeout time.Duration) (cellular.TowerInfo, error) {
	results := make(chan scanResult, 1)
	id, err := s.submit(func(info cellular.TowerInfo, err error) {
		results <- scanResult{info, err}
	})
	if err != nil {
		return cellular.NewTowerInfo(), err
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := s.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C()
	}

	var abandon error
	select {
	case r := <-results:
		return r.info, r.err
	case <-deadline:
		abandon = ErrTimeout
	case <-ctx.Done():
		abandon = ctx.Err()
	case <-s.done:
		abandon = ErrClosed
	}

	if s.requests.take(id) == nil {
		// the worker or CancelScan already took the request; its result is
		// on the way
		r := <-results
		return r.info, r.err
	}
	if errors.Is(abandon, ErrTimeout) {
		s.metrics.ObserveScan(monitoring.ResultTimeout, 0)
	}
	return cellular.NewTowerInfo(), abandon
}

// CancelScan withdraws any waiting request without waiting for the worker.
// A blocked ScanBlocking returns ErrCancelled; a ScanWithCallback callback is
// dropped. A queued scan still runs and still updates TowerInfo.
func (s *Scanner) CancelScan() {
	if fn := s.requests.takeAny(); fn != nil {
		monitoring.Debugf("Tower scan request cancelled")
		fn(cellular.NewTowerInfo(), ErrCancelled)
	}
}

// Signal returns the cached signal if it is no older than maxAge.
func (s *Scanner) Signal(maxAge time.Duration) (SignalSample, error) {
	return s.signal.Read(maxAge)
}

// SignalUpdated returns when the cached signal was last set.
func (s *Scanner) SignalUpdated() time.Time {
	return s.signal.Updated()
}

// TowerInfo returns a copy of the last completed scan. It is invalid until a
// scan finds a serving cell.
func (s *Scanner) TowerInfo() cellular.TowerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.Clone()
}

// State reports what the worker is doing.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Status is a point-in-time summary of the scanner for the API.
type Status struct {
	State         State     `json:"state"`
	RequestBound  bool      `json:"request_bound"`
	LastScanAt    time.Time `json:"last_scan_at"`
	LastResult    string    `json:"last_result,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	ScanCount     int64     `json:"scan_count"`
	FailureCount  int64     `json:"failure_count"`
	SignalUpdated time.Time `json:"signal_updated"`
	Neighbors     int       `json:"neighbors"`
	Valid         bool      `json:"valid"`
}

func (s *Scanner) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:         s.State(),
		RequestBound:  s.requests.bound(),
		LastScanAt:    s.lastScanAt,
		LastResult:    s.lastResult,
		ScanCount:     s.scanCount,
		FailureCount:  s.failureCount,
		SignalUpdated: s.signal.sample.Updated,
		Neighbors:     len(s.last.Neighbors),
		Valid:         s.last.IsValid(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scanner) String() string {
	return fmt.Sprintf("tower.Scanner{state=%s}", s.State())
}
