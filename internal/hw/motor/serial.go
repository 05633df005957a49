package motor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"go.bug.st/serial"
)

// Port is the part of serial.Port the link uses.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens a named serial port.
type Opener func(name string, mode *serial.Mode) (Port, error)

func openSerial(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPorts returns the serial ports present on the machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// ResolvePort picks the port to use when none is configured. USB serial
// adapters (where an Arduino shows up) win; otherwise the last enumerated
// port is used.
func ResolvePort(ports []string) (string, error) {
	if len(ports) == 0 {
		return "", ErrNoPort
	}
	for _, p := range ports {
		for _, hint := range []string{"ttyACM", "ttyUSB", "usbmodem", "usbserial"} {
			if strings.Contains(p, hint) {
				return p, nil
			}
		}
	}
	return ports[len(ports)-1], nil
}

// SerialLink is a Link over a serial line. The port is opened for each
// exchange and closed afterwards, so a controller reset or a replugged cable
// is picked up on the next frame.
type SerialLink struct {
	name        string
	mode        *serial.Mode
	readTimeout time.Duration
	open        Opener
	port        Port
}

// NewSerialLink prepares a link to the named port. An empty name selects a
// port with ResolvePort; ErrNoPort means there is nothing to talk to.
func NewSerialLink(name string, opts PortOptions, readTimeout time.Duration) (*SerialLink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if name == "" {
		ports, err := ListPorts()
		if err != nil {
			return nil, err
		}
		if name, err = ResolvePort(ports); err != nil {
			return nil, err
		}
	}
	debug.Info("Motor link on %s at %d baud", name, mode.BaudRate)
	return &SerialLink{
		name:        name,
		mode:        mode,
		readTimeout: readTimeout,
		open:        openSerial,
	}, nil
}

// Name returns the serial port path.
func (l *SerialLink) Name() string {
	return l.name
}

// SendStep writes the command byte, waits for the reply and closes the port.
func (l *SerialLink) SendStep(ctx context.Context, command int8) (Confirmation, error) {
	if command == 0 {
		return Failed, ErrZeroCommand
	}
	if err := ctx.Err(); err != nil {
		return Failed, err
	}

	if l.port == nil {
		p, err := l.open(l.name, l.mode)
		if err != nil {
			return Failed, fmt.Errorf("open %s: %w", l.name, err)
		}
		l.port = p
	}
	defer l.closePort()

	if l.readTimeout > 0 {
		if err := l.port.SetReadTimeout(l.readTimeout); err != nil {
			return Failed, fmt.Errorf("set read timeout: %w", err)
		}
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		return Failed, fmt.Errorf("reset input buffer: %w", err)
	}

	out := []byte{EncodeCommand(command)}
	debug.Serial("tx", out)
	if n, err := l.port.Write(out); err != nil {
		return Failed, fmt.Errorf("write command: %w", err)
	} else if n != len(out) {
		return Failed, fmt.Errorf("write command: short write (%d bytes)", n)
	}

	in := make([]byte, 2)
	n, err := l.port.Read(in)
	if err != nil {
		return Failed, fmt.Errorf("read confirmation: %w", err)
	}
	if n == 0 {
		return Failed, ErrNoReply
	}
	debug.Serial("rx", in[:n])

	c := DecodeConfirmation(in[0])
	if c == Failed {
		return Failed, fmt.Errorf("controller reported no step for command %+d", command)
	}
	return c, nil
}

func (l *SerialLink) closePort() {
	if l.port == nil {
		return
	}
	if err := l.port.Close(); err != nil {
		debug.Warn("closing %s: %v", l.name, err)
	}
	l.port = nil
}
