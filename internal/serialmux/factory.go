package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the modem's serial port at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](port), nil
}
