package modem

import (
	"errors"
	"fmt"
	"strings"
)

// LineType classifies one line of modem output relative to the command that
// is currently running.
type LineType int

const (
	// LineData is intermediate output belonging to the running command.
	LineData LineType = iota
	// LineEcho is the command itself, repeated back while echo is on.
	LineEcho
	// LineURC is an unsolicited result code unrelated to the command.
	LineURC
	// LineFinal terminates the command.
	LineFinal
)

func (t LineType) String() string {
	switch t {
	case LineData:
		return "data"
	case LineEcho:
		return "echo"
	case LineURC:
		return "urc"
	case LineFinal:
		return "final"
	default:
		return fmt.Sprintf("LineType(%d)", int(t))
	}
}

const (
	resultOK    = "OK"
	resultError = "ERROR"
	cmeError    = "+CME ERROR:"
	cmsError    = "+CMS ERROR:"
)

var (
	// ErrCommandRejected is returned when the modem answers ERROR or a
	// +CME/+CMS error.
	ErrCommandRejected = errors.New("modem rejected command")
	// ErrCommandTimeout is returned when no final result code arrives in time.
	ErrCommandTimeout = errors.New("modem command timed out")
	// ErrPortClosed is returned when the serial port goes away mid-command.
	ErrPortClosed = errors.New("modem port closed")
)

// bareURCs are unsolicited lines that carry no "+NAME:" prefix.
var bareURCs = []string{"RDY", "RING", "NO CARRIER", "POWERED DOWN", "APP RDY"}

// responsePrefix returns the "+NAME:" prefix data lines for cmd carry, or ""
// for basic commands.
func responsePrefix(cmd string) string {
	upper := strings.ToUpper(strings.TrimSpace(cmd))
	if !strings.HasPrefix(upper, "AT+") {
		return ""
	}
	name := upper[2:]
	if i := strings.IndexAny(name, "=?"); i >= 0 {
		name = name[:i]
	}
	return name + ":"
}

// classify decides what line means while cmd is running.
func classify(cmd, line string) LineType {
	switch {
	case line == resultOK, line == resultError,
		strings.HasPrefix(line, cmeError), strings.HasPrefix(line, cmsError):
		return LineFinal
	case strings.EqualFold(line, strings.TrimSpace(cmd)):
		return LineEcho
	}
	for _, urc := range bareURCs {
		if line == urc {
			return LineURC
		}
	}
	if strings.HasPrefix(line, "+") {
		if prefix := responsePrefix(cmd); prefix == "" || !strings.HasPrefix(line, prefix) {
			return LineURC
		}
	}
	return LineData
}

// finalError maps a final result line to nil or a wrapped ErrCommandRejected.
func finalError(cmd, line string) error {
	if line == resultOK {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", cmd, ErrCommandRejected, line)
}
