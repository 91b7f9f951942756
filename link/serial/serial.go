// Package serial provides the byte-oriented lower layer the datalink
// runs over: a Port abstraction plus a tarm/serial-backed native
// implementation, and an Adapter that exposes a Port as a
// datalink.LowerLayer.
//
// Grounded on the teacher's host/serial/serial.go Port abstraction,
// generalized from a fixed Klipper 250000 baud default to the comm
// core's own defaults.
package serial

import "io"

// Port is the byte transport a Datalink runs over: read, write, close,
// and flush any buffered output.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device is the OS device path (e.g. "/dev/ttyUSB0", "COM3").
	Device string
	// Baud is the line rate.
	Baud int
	// ReadTimeout bounds a blocking Read, in milliseconds (0 = block
	// forever).
	ReadTimeout int
}

// DefaultConfig returns a Config for device at a conservative rate
// suited to a microcontroller UART link.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
