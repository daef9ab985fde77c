// Package serialport opens serial devices and frames their byte stream into
// text lines.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"

	DefaultPort = "/dev/ttyACM0"
	DefaultBaud = 9600
)

var ErrUnknownDriver = errors.New("unknown serial driver")

// Port is the subset of a serial device the bridge needs. Both drivers
// tolerate a concurrent Read and Write on the same handle.
type Port interface {
	io.ReadWriteCloser
}

// Options describes how to open a device.
type Options struct {
	Name   string
	Baud   int
	Driver string
}

// Open opens the device with the selected driver, defaulting to bugst.
func Open(opts Options) (Port, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = DefaultPort
	}
	baud := opts.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverBugst:
		return OpenBugst(name, baud)
	case DriverTarm:
		return OpenTarm(name, baud)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, opts.Driver)
	}
}

// OpenBugst opens name at baud (8N1) using go.bug.st/serial.
func OpenBugst(name string, baud int) (Port, error) {
	p, err := bugst.Open(name, &bugst.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}

// OpenTarm opens name at baud using github.com/tarm/serial. Reads block
// until data arrives, like the bugst driver.
func OpenTarm(name string, baud int) (Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:   name,
		Baud:   baud,
		Parity: tarm.ParityNone,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}

// Flush discards input the device buffered before the bridge started.
// Ports that cannot flush are left alone.
func Flush(p Port) error {
	switch port := p.(type) {
	case interface{ ResetInputBuffer() error }:
		return port.ResetInputBuffer()
	case interface{ Flush() error }:
		return port.Flush()
	default:
		return nil
	}
}

// ListPorts returns the serial devices present on the host, sorted.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
