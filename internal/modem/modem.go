// Package modem drives a Quectel LTE modem over AT commands: registration
// checks, signal quality, and raw command execution for the tower scanner.
package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/monitoring"
	"github.com/banshee-data/celltower/internal/serialmux"
	"github.com/banshee-data/celltower/internal/timeutil"
)

// DefaultTimeout bounds the short housekeeping commands (AT, CSQ, CEREG).
const DefaultTimeout = 2 * time.Second

// Modem runs one AT command at a time over a SerialMux. Monitor must be
// running on the mux for responses to arrive.
type Modem struct {
	mux     serialmux.SerialMuxInterface
	timeout time.Duration
	clock   timeutil.Clock

	mu sync.Mutex
}

// New returns a Modem using timeout for its own housekeeping commands. A
// zero timeout selects DefaultTimeout and a nil clock the real one.
func New(mux serialmux.SerialMuxInterface, timeout time.Duration, clock timeutil.Clock) *Modem {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Modem{mux: mux, timeout: timeout, clock: clock}
}

// Command writes cmd and reports every data line to onLine until the modem
// answers with a final result code. Echoed commands and unsolicited result
// codes are not reported.
func (m *Modem) Command(ctx context.Context, cmd string, onLine func(LineType, string), timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.timeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// subscribe before writing so the first response line cannot be missed
	id, lines := m.mux.Subscribe()
	defer m.mux.Unsubscribe(id)

	monitoring.Debugf("modem: > %s", cmd)
	if err := m.mux.SendCommand(cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	timer := m.clock.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C():
			return fmt.Errorf("%s: %w after %s", cmd, ErrCommandTimeout, timeout)
		case line, ok := <-lines:
			if !ok {
				return fmt.Errorf("%s: %w", cmd, ErrPortClosed)
			}
			monitoring.Debugf("modem: < %s", line)
			switch t := classify(cmd, line); t {
			case LineFinal:
				return finalError(cmd, line)
			case LineData:
				if onLine != nil {
					onLine(t, line)
				}
			}
		}
	}
}

// query runs cmd and returns the data lines it produced.
func (m *Modem) query(ctx context.Context, cmd string) ([]string, error) {
	var out []string
	err := m.Command(ctx, cmd, func(_ LineType, line string) {
		out = append(out, line)
	}, m.timeout)
	return out, err
}

// Init wakes the modem, disables echo and turns on verbose error reports.
func (m *Modem) Init(ctx context.Context) error {
	for _, cmd := range []string{"AT", "ATE0", "AT+CMEE=2"} {
		if err := m.Command(ctx, cmd, nil, m.timeout); err != nil {
			return fmt.Errorf("initialise modem: %w", err)
		}
	}
	return nil
}

// Ready reports whether the modem is registered on a network, home or
// roaming. The EPS status (CEREG) is checked first, then the circuit
// switched status (CREG).
func (m *Modem) Ready(ctx context.Context) bool {
	for _, cmd := range []string{"AT+CEREG?", "AT+CREG?"} {
		lines, err := m.query(ctx, cmd)
		if err != nil {
			monitoring.Debugf("modem: %v", err)
			continue
		}
		for _, line := range lines {
			if stat, ok := registrationStatus(line); ok && (stat == 1 || stat == 5) {
				return true
			}
		}
	}
	return false
}

// registrationStatus extracts <stat> from "+CEREG: <n>,<stat>[,...]" or
// "+CREG: <n>,<stat>[,...]".
func registrationStatus(line string) (int, bool) {
	_, payload, found := strings.Cut(line, ":")
	if !found {
		return 0, false
	}
	fields := strings.Split(payload, ",")
	if len(fields) < 2 {
		return 0, false
	}
	stat, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, false
	}
	return stat, true
}

// SignalStrength runs AT+CSQ. An rssi of 99 (or anything outside 0-31) is
// returned as cellular.NoSignal without error.
func (m *Modem) SignalStrength(ctx context.Context) (cellular.Signal, error) {
	lines, err := m.query(ctx, "AT+CSQ")
	if err != nil {
		return cellular.NoSignal, err
	}
	for _, line := range lines {
		if sig, ok := parseCSQ(line); ok {
			return sig, nil
		}
	}
	return cellular.NoSignal, fmt.Errorf("AT+CSQ: %w", cellular.ErrNotEnoughData)
}

// parseCSQ converts "+CSQ: <rssi>,<ber>" to dBm.
func parseCSQ(line string) (cellular.Signal, bool) {
	payload, found := strings.CutPrefix(line, "+CSQ:")
	if !found {
		return cellular.NoSignal, false
	}
	parts := strings.Split(payload, ",")
	if len(parts) != 2 {
		return cellular.NoSignal, false
	}
	rssi, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	ber, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return cellular.NoSignal, false
	}
	if rssi < 0 || rssi > 31 {
		return cellular.Signal{Quality: ber}, true
	}
	return cellular.Signal{Strength: -113 + 2*rssi, Quality: ber}, true
}
