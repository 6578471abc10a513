// Package serial opens the byte link between a controller and its
// sender.
package serial

import (
	"io"
	"os"
)

// Port is a serial link. Implementations:
// - native serial (github.com/tarm/serial)
// - stdio, for running the simulator under socat or a pty
type Port interface {
	io.ReadWriteCloser

	// Flush pushes buffered output to the line
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; USB CDC ignores it
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the usual controller link settings
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

type stdio struct {
	in  io.Reader
	out *os.File
}

// Stdio returns a Port reading stdin and writing stdout
func Stdio() Port {
	return &stdio{in: os.Stdin, out: os.Stdout}
}

func (s *stdio) Read(b []byte) (int, error)  { return s.in.Read(b) }
func (s *stdio) Write(b []byte) (int, error) { return s.out.Write(b) }
func (s *stdio) Close() error                { return nil }
func (s *stdio) Flush() error                { return s.out.Sync() }
