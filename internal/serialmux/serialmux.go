// Package serialmux shares one modem serial port between the AT command
// driver and any number of line subscribers (the debug console, log tails).
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// subscriberBuffer is how many lines a slow subscriber may fall behind before
// lines are dropped for it.
const subscriberBuffer = 64

//go:embed templates/*
var adminTemplateFS embed.FS

var consoleTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/at-console.html.tmpl"))

// SerialMux fans lines read from a serial port out to subscribers and
// serialises writes to it.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface is what the modem driver and the debug routes need from
// a SerialMux.
type SerialMuxInterface interface {
	// Subscribe returns an id and a buffered channel that receives every
	// non-empty line read from the port.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes command to the port, terminated with a carriage
	// return.
	SendCommand(string) error
	// Monitor reads lines until ctx is done or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error

	// AttachAdminRoutes adds the AT console under /debug/. The routes are
	// only served to loopback and Tailscale clients.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand sends an AT command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\r") {
		command += "\r"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// splitLines is a bufio.SplitFunc that breaks on CR or LF and never returns
// an empty token, so "\r\nOK\r\n" and an echoed "AT\r\r\n" each yield one
// line.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	// request more data, consuming any leading terminators
	return start, nil, nil
}

// Monitor monitors the serial port for lines and sends them to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Split(splitLines)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs on its own goroutine so the loop below can
	// still observe cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// subscriber is full; drop rather than stall the port
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("at-console", "send raw AT commands to the modem and tail its output", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := consoleTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("at-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to modem", command))
	})

	// Server-Sent Events stream of every line read from the modem.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
