package tower

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/modem"
	"github.com/banshee-data/celltower/internal/monitoring"
)

const (
	testServing  = `+QENG: "servingcell","NOCONN","LTE","FDD",310,410,1A2B,123,5230,13,5,5,1A,-85,-10,-55,14,30,-`
	testNeighbor = `+QENG: "neighbourcell intra","LTE",5230,123,-12,-95,-65,0,37,7,16,6,44`
)

// fakeTransport is a scriptable Transport.
type fakeTransport struct {
	mu          sync.Mutex
	ready       bool
	signal      cellular.Signal
	signalErr   error
	lines       map[string][]string
	errs        map[string]error
	block       chan struct{}
	commands    []string
	signalCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ready:  true,
		signal: cellular.Signal{Strength: -71, Quality: 99},
		lines: map[string][]string{
			servingCommand:  {testServing},
			neighborCommand: {testNeighbor},
		},
		errs: map[string]error{},
	}
}

func (f *fakeTransport) Ready(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) SignalStrength(ctx context.Context) (cellular.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signalCalls++
	return f.signal, f.signalErr
}

func (f *fakeTransport) Command(ctx context.Context, cmd string, onLine func(modem.LineType, string), timeout time.Duration) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	block := f.block
	lines := append([]string(nil), f.lines[cmd]...)
	err := f.errs[cmd]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, line := range lines {
		onLine(modem.LineData, line)
	}
	return err
}

func (f *fakeTransport) setReady(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = v
}

func (f *fakeTransport) setSignal(sig cellular.Signal, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signal, f.signalErr = sig, err
}

func (f *fakeTransport) setLines(cmd string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[cmd] = lines
}

func (f *fakeTransport) setErr(cmd string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[cmd] = err
}

func (f *fakeTransport) setBlock(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = ch
}

func (f *fakeTransport) scanCommands() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func (f *fakeTransport) signalCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signalCalls
}

// startScanner runs s until the test ends.
func startScanner(t *testing.T, s *Scanner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		s.Stop()
		<-errCh
	})
}

func fastOptions() Options {
	return Options{
		SuccessPeriod:  5 * time.Millisecond,
		CommandTimeout: time.Second,
	}
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}
