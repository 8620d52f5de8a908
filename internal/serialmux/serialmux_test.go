package serialmux

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// recordingPort captures writes and serves reads from a fixed string.
type recordingPort struct {
	mu       sync.Mutex
	reader   *strings.Reader
	written  strings.Builder
	writeErr error
	closed   bool
}

func newRecordingPort(data string) *recordingPort {
	return &recordingPort{reader: strings.NewReader(data)}
}

func (p *recordingPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reader.Read(b)
}

func (p *recordingPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *recordingPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(newRecordingPort(""))

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("subscription ids must be unique and non-empty: %q %q", id1, id2)
	}
	if cap(ch1) != subscriberBuffer {
		t.Errorf("subscriber channel capacity = %d, want %d", cap(ch1), subscriberBuffer)
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	mux.Unsubscribe("non-existent-id")

	mux.subscriberMu.Lock()
	defer mux.subscriberMu.Unlock()
	if len(mux.subscribers) != 1 {
		t.Errorf("expected 1 subscriber, got %d", len(mux.subscribers))
	}
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := newRecordingPort("")
	mux := NewSerialMux(port)

	for _, cmd := range []string{"AT", "AT+CSQ\r", `AT+QENG="servingcell"`} {
		if err := mux.SendCommand(cmd); err != nil {
			t.Fatalf("SendCommand(%q) returned error: %v", cmd, err)
		}
	}

	want := "AT\rAT+CSQ\rAT+QENG=\"servingcell\"\r"
	if got := port.Written(); got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSerialMux_SendCommand_WriteError(t *testing.T) {
	port := newRecordingPort("")
	port.writeErr = errors.New("write failed")
	mux := NewSerialMux(port)

	if err := mux.SendCommand("AT"); err == nil {
		t.Error("expected error when write fails")
	}
}

func TestSplitLines(t *testing.T) {
	input := "AT+CSQ\r\r\n+CSQ: 20,99\r\n\r\nOK\r\nlast"
	scan := bufio.NewScanner(strings.NewReader(input))
	scan.Split(splitLines)

	var got []string
	for scan.Scan() {
		got = append(got, scan.Text())
	}
	want := []string{"AT+CSQ", "+CSQ: 20,99", "OK", "last"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	mux := NewSerialMux(newRecordingPort("\r\n+CEREG: 0,1\r\n\r\nOK\r\n"))

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// the reader hits EOF after the fixed input
	if err := mux.Monitor(ctx); err != nil {
		t.Fatalf("Monitor returned %v, want nil at EOF", err)
	}

	for i, ch := range []chan string{ch1, ch2} {
		var got []string
		for len(ch) > 0 {
			got = append(got, <-ch)
		}
		if diff := cmp.Diff([]string{"+CEREG: 0,1", "OK"}, got); diff != "" {
			t.Errorf("subscriber %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSerialMux_MonitorStopsOnCancel(t *testing.T) {
	em := NewEmulator(nil)
	mux := NewSerialMux(em)
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := newRecordingPort("")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.closed {
		t.Error("port should be closed")
	}
}
