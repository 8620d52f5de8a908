package serialmux

import "io"

// SerialPorter is the minimal interface needed for a serial port. Real ports
// come from go.bug.st/serial; tests and -dev mode use an Emulator.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
