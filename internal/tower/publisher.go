package tower

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/monitoring"
)

// Sink stores what the Publisher collects.
type Sink interface {
	RecordScan(ctx context.Context, info cellular.TowerInfo, at time.Time) (string, error)
	RecordSignal(ctx context.Context, sample SignalSample) error
}

// PublisherOptions configures a Publisher. Zero intervals disable that half.
type PublisherOptions struct {
	ScanInterval   time.Duration
	ScanTimeout    time.Duration
	SignalInterval time.Duration
	SignalMaxAge   time.Duration
}

// PublishRun describes one scan the Publisher ran.
type PublishRun struct {
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ScanID     string    `json:"scan_id,omitempty"`
	Valid      bool      `json:"valid"`
	Error      string    `json:"error,omitempty"`
}

// PublisherStatus summarises the Publisher for the API.
type PublisherStatus struct {
	RunCount      int64       `json:"run_count"`
	SignalsStored int64       `json:"signals_stored"`
	LastRun       *PublishRun `json:"last_run,omitempty"`
}

// Publisher periodically scans and stores the results, and stores fresh
// signal samples, so history survives restarts.
type Publisher struct {
	scanner *Scanner
	sink    Sink
	opts    PublisherOptions
	trigger chan struct{}

	mu            sync.RWMutex
	runCount      int64
	signalsStored int64
	lastRun       *PublishRun
}

func NewPublisher(scanner *Scanner, sink Sink, opts PublisherOptions) *Publisher {
	if opts.SignalMaxAge <= 0 {
		opts.SignalMaxAge = opts.SignalInterval
	}
	return &Publisher{
		scanner: scanner,
		sink:    sink,
		opts:    opts,
		// capacity 1 coalesces rapid manual triggers
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate scan. It never blocks.
func (p *Publisher) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
		monitoring.Logf("Publisher manual trigger skipped (already pending)")
	}
}

func (p *Publisher) Status() PublisherStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := PublisherStatus{RunCount: p.runCount, SignalsStored: p.signalsStored}
	if p.lastRun != nil {
		run := *p.lastRun
		st.LastRun = &run
	}
	return st
}

// Run loops until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	var scanTick, signalTick <-chan time.Time
	if p.opts.ScanInterval > 0 {
		t := p.scanner.clock.NewTicker(p.opts.ScanInterval)
		defer t.Stop()
		scanTick = t.C()
	}
	if p.opts.SignalInterval > 0 {
		t := p.scanner.clock.NewTicker(p.opts.SignalInterval)
		defer t.Stop()
		signalTick = t.C()
	}
	monitoring.Logf("Publisher started: scan_interval=%s signal_interval=%s", p.opts.ScanInterval, p.opts.SignalInterval)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("Publisher terminated")
			return ctx.Err()
		case <-scanTick:
			p.publishScan(ctx, "periodic")
		case <-p.trigger:
			p.publishScan(ctx, "manual")
		case <-signalTick:
			p.publishSignal(ctx)
		}
	}
}

func (p *Publisher) publishScan(ctx context.Context, trigger string) {
	run := &PublishRun{Trigger: trigger, StartedAt: p.scanner.clock.Now()}

	info, err := p.scanner.ScanBlocking(ctx, p.opts.ScanTimeout)
	if err == nil {
		run.Valid = info.IsValid()
		run.ScanID, err = p.sink.RecordScan(ctx, info, p.scanner.clock.Now())
	}
	run.FinishedAt = p.scanner.clock.Now()

	switch {
	case err == nil:
		monitoring.Debugf("Publisher %s scan stored: id=%s valid=%t neighbors=%d", trigger, run.ScanID, run.Valid, len(info.Neighbors))
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNotReady):
		monitoring.Logf("Publisher %s scan skipped: %v", trigger, err)
	default:
		monitoring.Logf("Publisher %s scan error: %v", trigger, err)
	}
	if err != nil {
		run.Error = err.Error()
	}

	p.mu.Lock()
	p.runCount++
	p.lastRun = run
	p.mu.Unlock()
}

func (p *Publisher) publishSignal(ctx context.Context) {
	sample, err := p.scanner.Signal(p.opts.SignalMaxAge)
	if err != nil {
		return
	}
	if err := p.sink.RecordSignal(ctx, sample); err != nil {
		monitoring.Logf("Publisher signal store error: %v", err)
		return
	}
	p.mu.Lock()
	p.signalsStored++
	p.mu.Unlock()
}
