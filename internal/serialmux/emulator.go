package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// Responder returns the lines a device would print in reply to command. The
// command has its trailing carriage return removed.
type Responder func(command string) []string

var errEmulatorClosed = errors.New("emulated port closed")

// Emulator is a SerialPorter that answers carriage-return terminated
// commands through a Responder. It backs tests and -dev mode.
type Emulator struct {
	respond Responder

	mu       sync.Mutex
	pending  bytes.Buffer
	commands []string
	closed   bool

	r   *io.PipeReader
	w   *io.PipeWriter
	out chan []byte
	wg  sync.WaitGroup
}

// NewEmulator starts an emulated port. Close must be called to release it.
func NewEmulator(respond Responder) *Emulator {
	r, w := io.Pipe()
	e := &Emulator{
		respond: respond,
		r:       r,
		w:       w,
		out:     make(chan []byte, 64),
	}
	e.wg.Add(1)
	go e.pump()
	return e
}

// pump moves queued output into the pipe so Write never blocks on a reader.
func (e *Emulator) pump() {
	defer e.wg.Done()
	for b := range e.out {
		if _, err := e.w.Write(b); err != nil {
			return
		}
	}
}

func (e *Emulator) Read(p []byte) (int, error) {
	return e.r.Read(p)
}

// Write buffers input and answers each complete command.
func (e *Emulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errEmulatorClosed
	}
	e.pending.Write(p)
	for {
		data := e.pending.Bytes()
		i := bytes.IndexByte(data, '\r')
		if i < 0 {
			break
		}
		cmd := string(data[:i])
		e.pending.Next(i + 1)
		e.commands = append(e.commands, cmd)
		if e.respond == nil {
			continue
		}
		for _, line := range e.respond(cmd) {
			e.out <- []byte(line + "\r\n")
		}
	}
	return len(p), nil
}

// Inject emits an unsolicited line, as a modem does for URCs.
func (e *Emulator) Inject(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.out <- []byte("\r\n" + line + "\r\n")
}

// Commands returns every command received so far.
func (e *Emulator) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.out)
	e.mu.Unlock()

	e.w.Close()
	e.wg.Wait()
	return e.r.Close()
}
