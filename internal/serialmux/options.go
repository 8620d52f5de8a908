package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the factory rate of the Quectel BG9x/EG9x UART.
const DefaultBaudRate = 115200

// PortOptions describes the serial connection parameters used when opening
// the modem's port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into the serial.Mode go.bug.st/serial
// expects.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}

	return mode, nil
}
