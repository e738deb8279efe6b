// Package transport moves bytes to a display controller over a 4-wire SPI
// link: the SPI connection itself plus chip-select, data/command and reset
// control lines.
//
// Every transfer carries an explicit Mode. The data/command line is driven for
// that mode before the first bit is clocked out and is never changed in the
// middle of a transfer.
//
// The transport assumes a single writer and does no locking of its own.
package transport

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Bus parameters of the link.
const (
	Frequency = 40 * physic.MegaHertz
	Mode0     = spi.Mode0
	Bits      = 8

	// defaultMaxTxSize is used when the connection does not implement
	// conn.Limits.
	defaultMaxTxSize = 4096
)

// Reset timing. These are hardware floors, not tunables.
const (
	ResetPulse  = 10 * time.Millisecond
	ResetSettle = 120 * time.Millisecond
)

// Mode selects how the controller interprets the bytes of a transfer.
type Mode bool

const (
	// Command transfers are sent with the D/C line low.
	Command Mode = false
	// Data transfers are sent with the D/C line high.
	Data Mode = true
)

func (m Mode) String() string {
	if m == Data {
		return "data"
	}
	return "command"
}

func (m Mode) level() gpio.Level {
	return gpio.Level(m)
}

// ErrFault is matched by every Fault through errors.Is.
var ErrFault = errors.New("transport: fault")

// Fault reports a failure of the bus or of one of the control lines.
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("transport: %s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Is makes errors.Is(err, ErrFault) true for any Fault.
func (f *Fault) Is(target error) bool {
	return target == ErrFault
}

// Transport is an open handle to the controller link.
type Transport struct {
	c   conn.Conn
	dc  gpio.PinOut // low for commands, high for data
	cs  gpio.PinOut // active low, nil when the SPI port drives chip-select
	rst gpio.PinOut // active low, optional

	maxTxSize int
	sleep     func(time.Duration)
}

// Open connects to the SPI port at 40MHz, Mode0, 8-bit words and returns a
// Transport over it.
//
// dc is required. cs may be nil when the port drives chip-select itself. rst
// may be nil when the reset line is not wired to a GPIO.
func Open(p spi.Port, dc, cs, rst gpio.PinOut) (*Transport, error) {
	c, err := p.Connect(Frequency, Mode0, Bits)
	if err != nil {
		return nil, &Fault{Op: "connect", Err: err}
	}
	return New(c, dc, cs, rst)
}

// New returns a Transport over an already established connection.
func New(c conn.Conn, dc, cs, rst gpio.PinOut) (*Transport, error) {
	if c == nil {
		return nil, errors.New("transport: nil connection")
	}
	if dc == nil || dc == gpio.INVALID {
		return nil, errors.New("transport: a data/command pin is required")
	}
	if cs == gpio.INVALID {
		return nil, errors.New("transport: use nil for cs when chip-select is driven by the port, do not use gpio.INVALID")
	}
	if rst == gpio.INVALID {
		return nil, errors.New("transport: use nil for rst when it is not wired, do not use gpio.INVALID")
	}

	// Get the maxTxSize from the conn if it implements the conn.Limits
	// interface, otherwise use a conservative default.
	maxTxSize := 0
	if limits, ok := c.(conn.Limits); ok {
		maxTxSize = limits.MaxTxSize()
	}
	if maxTxSize <= 0 {
		maxTxSize = defaultMaxTxSize
	}

	t := &Transport{
		c:         c,
		dc:        dc,
		cs:        cs,
		rst:       rst,
		maxTxSize: maxTxSize,
		sleep:     time.Sleep,
	}
	if cs != nil {
		if err := cs.Out(gpio.High); err != nil {
			return nil, &Fault{Op: "cs", Err: err}
		}
	}
	return t, nil
}

func (t *Transport) String() string {
	return fmt.Sprintf("transport.Transport{%s, dc=%s}", t.c, t.dc)
}

// MaxTxSize returns the largest chunk handed to the connection at once.
func (t *Transport) MaxTxSize() int {
	return t.maxTxSize
}

// Tx sends p as one burst in mode m.
//
// A zero length p is a successful no-op: no line changes and no bus
// transfer. Longer payloads are split in chunks of at most MaxTxSize bytes;
// chip-select and data/command stay asserted across the chunks.
func (t *Transport) Tx(m Mode, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := t.dc.Out(m.level()); err != nil {
		return &Fault{Op: "dc", Err: err}
	}
	if t.cs != nil {
		if err := t.cs.Out(gpio.Low); err != nil {
			return &Fault{Op: "cs", Err: err}
		}
	}
	err := t.burst(m, p)
	if t.cs != nil {
		if csErr := t.cs.Out(gpio.High); csErr != nil && err == nil {
			err = &Fault{Op: "cs", Err: csErr}
		}
	}
	return err
}

func (t *Transport) burst(m Mode, p []byte) error {
	for len(p) != 0 {
		chunk := p
		if len(chunk) > t.maxTxSize {
			chunk = p[:t.maxTxSize]
		}
		if err := t.c.Tx(chunk, nil); err != nil {
			return &Fault{Op: m.String(), Err: err}
		}
		p = p[len(chunk):]
	}
	return nil
}

// SendCommand sends a single command byte.
func (t *Transport) SendCommand(cmd byte) error {
	return t.Tx(Command, []byte{cmd})
}

// SendData sends a data payload. An empty payload does nothing.
func (t *Transport) SendData(p []byte) error {
	return t.Tx(Data, p)
}

// Reset pulses the reset line and blocks until the controller has settled.
//
// It is a no-op when no reset line is wired.
func (t *Transport) Reset() error {
	if t.rst == nil {
		return nil
	}
	if err := t.rst.Out(gpio.Low); err != nil {
		return &Fault{Op: "reset", Err: err}
	}
	t.sleep(ResetPulse)
	if err := t.rst.Out(gpio.High); err != nil {
		return &Fault{Op: "reset", Err: err}
	}
	t.sleep(ResetSettle)
	return nil
}

// Halt releases chip-select.
func (t *Transport) Halt() error {
	if t.cs == nil {
		return nil
	}
	if err := t.cs.Out(gpio.High); err != nil {
		return &Fault{Op: "cs", Err: err}
	}
	return nil
}
