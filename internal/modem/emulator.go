package modem

import (
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/celltower/internal/serialmux"
)

// Sample QENG output from a BG96 registered on an LTE network.
const (
	SampleServing  = `+QENG: "servingcell","NOCONN","LTE","FDD",310,410,1A2B,123,5230,13,5,5,1A,-85,-10,-55,14,30,-`
	SampleNeighbor = `+QENG: "neighbourcell intra","LTE",5230,123,-12,-95,-65,0,37,7,16,6,44`
)

// Script answers AT commands the way a Quectel modem would. Its state can be
// changed while the emulator runs.
type Script struct {
	mu         sync.Mutex
	echo       bool
	registered bool
	rssi       int
	serving    string
	neighbors  []string
	fail       map[string]string
	silent     map[string]bool
	urcs       []string
}

// NewScript returns a registered modem with echo on, rssi 21 (-71 dBm) and
// the sample serving and neighbor cells.
func NewScript() *Script {
	return &Script{
		echo:       true,
		registered: true,
		rssi:       21,
		serving:    SampleServing,
		neighbors:  []string{SampleNeighbor},
		fail:       map[string]string{},
		silent:     map[string]bool{},
	}
}

// NewEmulator returns an emulated serial port driven by s.
func NewEmulator(s *Script) *serialmux.Emulator {
	return serialmux.NewEmulator(s.Respond)
}

func (s *Script) SetRegistered(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = v
}

// SetRSSI sets the raw CSQ rssi; 99 means no reading.
func (s *Script) SetRSSI(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rssi = v
}

func (s *Script) SetServing(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serving = line
}

func (s *Script) SetNeighbors(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neighbors = append([]string(nil), lines...)
}

// Fail makes cmd answer with final instead of its normal output.
func (s *Script) Fail(cmd, final string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[cmd] = final
}

// Silence makes cmd produce no output at all, so callers time out.
func (s *Script) Silence(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[cmd] = true
}

// Clear undoes Fail and Silence for cmd.
func (s *Script) Clear(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fail, cmd)
	delete(s.silent, cmd)
}

// InterleaveURC makes the next response carry line before its data.
func (s *Script) InterleaveURC(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urcs = append(s.urcs, line)
}

// Respond implements serialmux.Responder.
func (s *Script) Respond(cmd string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	if s.echo {
		out = append(out, cmd)
	}
	if s.silent[cmd] {
		return out
	}
	out = append(out, s.urcs...)
	s.urcs = nil
	if final, ok := s.fail[cmd]; ok {
		return append(out, final)
	}

	switch strings.ToUpper(cmd) {
	case "AT", "AT+CMEE=2":
	case "ATE0":
		s.echo = false
	case "ATE1":
		s.echo = true
	case "AT+CSQ":
		out = append(out, fmt.Sprintf("+CSQ: %d,99", s.rssi))
	case "AT+CEREG?":
		out = append(out, fmt.Sprintf("+CEREG: 0,%d", s.stat()))
	case "AT+CREG?":
		out = append(out, fmt.Sprintf("+CREG: 0,%d", s.stat()))
	case `AT+QENG="SERVINGCELL"`:
		if s.registered {
			out = append(out, s.serving)
		} else {
			out = append(out, `+QENG: "servingcell","SEARCH"`)
		}
	case `AT+QENG="NEIGHBOURCELL"`:
		if s.registered {
			out = append(out, s.neighbors...)
		}
	default:
		return append(out, "ERROR")
	}
	return append(out, "OK")
}

func (s *Script) stat() int {
	if s.registered {
		return 1
	}
	return 2
}
