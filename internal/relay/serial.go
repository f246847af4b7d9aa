package relay

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialDriver drives a CH34x-style USB relay board over a serial port.
// These boards speak a fixed 4-byte command: start byte 0xA0, channel,
// level, additive checksum.
type SerialDriver struct {
	port    string
	baud    int
	channel byte
}

// NewSerialDriver creates a driver for the named port and relay channel
// (1-based on the common boards).
func NewSerialDriver(port string, channel int) *SerialDriver {
	return &SerialDriver{port: port, baud: 9600, channel: byte(channel)}
}

// Open opens the serial port for the duration of one pulse.
func (d *SerialDriver) Open() (Pin, error) {
	p, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baud})
	if err != nil {
		return nil, fmt.Errorf("open relay port %s: %w", d.port, err)
	}
	return &serialPin{w: p, channel: d.channel}, nil
}

type serialPin struct {
	w       io.WriteCloser
	channel byte
}

// SetLevel sends the on or off command frame for this pin's channel.
func (p *serialPin) SetLevel(on bool) error {
	level := byte(0)
	if on {
		level = 1
	}
	frame := []byte{0xA0, p.channel, level, 0xA0 + p.channel + level}
	if _, err := p.w.Write(frame); err != nil {
		return fmt.Errorf("write relay command: %w", err)
	}
	return nil
}

func (p *serialPin) Close() error {
	return p.w.Close()
}
