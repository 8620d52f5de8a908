package tower

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/modem"
	"github.com/banshee-data/celltower/internal/monitoring"
)

// State is the worker's current activity.
type State int32

const (
	StateIdle State = iota
	StateSamplingSignal
	StateScanning
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSamplingSignal:
		return "sampling_signal"
	case StateScanning:
		return "scanning"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	servingCommand  = `AT+QENG="servingcell"`
	neighborCommand = `AT+QENG="neighbourcell"`
	qengPrefix      = "+QENG:"
)

type commandKind int

const (
	cmdMeasure commandKind = iota + 1
	cmdExit
)

// command is one entry in the worker's queue. request is the id of the
// completion bound to a measure, or 0.
type command struct {
	kind    commandKind
	request uint64
}

func (s *Scanner) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Scanner) run(ctx context.Context) error {
	// working is only ever touched by this goroutine
	working := cellular.NewTowerInfo()

	defer func() {
		s.setState(StateTerminating)
		s.closed.Store(true)
		if fn := s.requests.takeAny(); fn != nil {
			fn(cellular.NewTowerInfo(), ErrClosed)
		}
		close(s.done)
	}()

	for {
		s.setState(StateIdle)
		// the wait is always the success period; it bounds how stale the
		// signal sample can get, failed scans included
		timer := s.clock.NewTimer(s.opts.SuccessPeriod)
		var cmd command
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case cmd = <-s.cmds:
		case <-timer.C():
		}
		timer.Stop()

		s.setState(StateSamplingSignal)
		s.sampleSignal(ctx)

		switch cmd.kind {
		case cmdExit:
			return nil
		case cmdMeasure:
			s.setState(StateScanning)
			s.measure(ctx, &working, cmd.request)
		}
	}
}

// sampleSignal refreshes the signal cache when the modem is registered.
func (s *Scanner) sampleSignal(ctx context.Context) {
	if !s.transport.Ready(ctx) {
		return
	}
	sig, err := s.transport.SignalStrength(ctx)
	if err != nil {
		monitoring.Logf("Tower scanner signal read failed: %v", err)
		s.signal.Invalidate()
		return
	}
	s.signal.Update(sig)
	if sig.HasReading() {
		s.metrics.SetSignal(sig.Strength)
	}
}

// measure runs one serving plus neighbor scan into working, publishes it and
// completes the request bound to this command, if it is still waiting.
func (s *Scanner) measure(ctx context.Context, working *cellular.TowerInfo, request uint64) {
	start := s.clock.Now()
	working.Clear()

	if !s.transport.Ready(ctx) {
		monitoring.Logf("Tower scan skipped: modem not ready")
		s.record(monitoring.ResultNotReady, ErrNotReady, false)
		s.metrics.ObserveScan(monitoring.ResultNotReady, 0)
		s.complete(request, cellular.NewTowerInfo(), ErrNotReady)
		return
	}

	err := s.transport.Command(ctx, servingCommand, func(_ modem.LineType, line string) {
		if !strings.HasPrefix(line, qengPrefix) {
			return
		}
		if err := working.ParseServing(line); err != nil {
			s.metrics.IncParseError("serving")
			monitoring.Debugf("Tower scan: serving line dropped: %v", err)
		}
	}, s.opts.CommandTimeout)
	if err == nil {
		err = s.transport.Command(ctx, neighborCommand, func(_ modem.LineType, line string) {
			if !strings.HasPrefix(line, qengPrefix) {
				return
			}
			if err := working.ParseNeighbor(line, s.opts.MaxNeighbors); err != nil {
				s.metrics.IncParseError("neighbor")
				monitoring.Debugf("Tower scan: neighbor line dropped: %v", err)
			}
		}, s.opts.CommandTimeout)
	}
	elapsed := s.clock.Since(start)

	if err != nil {
		err = fmt.Errorf("tower scan: %w", err)
		monitoring.Logf("Tower scan failed after %s: %v", elapsed, err)
		s.record(monitoring.ResultFailed, err, false)
		s.metrics.ObserveScan(monitoring.ResultFailed, elapsed)
		s.complete(request, cellular.NewTowerInfo(), err)
		return
	}

	s.mu.Lock()
	s.last.Assign(*working)
	s.mu.Unlock()
	s.record(monitoring.ResultCompleted, nil, true)
	s.metrics.ObserveScan(monitoring.ResultCompleted, elapsed)
	s.metrics.SetNeighbors(len(working.Neighbors))
	monitoring.Debugf("Tower scan completed in %s: %s", elapsed, working)

	s.complete(request, working.Clone(), nil)
}

func (s *Scanner) record(result string, err error, published bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanCount++
	if err != nil {
		s.failureCount++
	}
	s.lastResult = result
	s.lastErr = err
	if published {
		s.lastScanAt = s.clock.Now()
	}
}

// complete runs the completion bound to request on the worker goroutine.
func (s *Scanner) complete(request uint64, info cellular.TowerInfo, err error) {
	if fn := s.requests.take(request); fn != nil {
		fn(info, err)
	}
}
