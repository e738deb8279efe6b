// Package emulator implements a software ST7735 controller.
//
// A Panel is an spi.Port and a spi.Conn. It samples its DC pin at the start of
// every transfer, the same way the real controller samples the D/C line, and
// interprets the bytes accordingly: command bytes select a command, data
// bytes are its parameters or, after a memory write, pixels.
//
// It is meant for tests and for developing display output on a host machine
// without the hardware; see Terminal to look at the frame memory.
package emulator

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/flavioheleno/st7735/image565"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Commands understood by the panel.
const (
	SWRESET = 0x01
	SLPOUT  = 0x11
	DISPON  = 0x29
	CASET   = 0x2A
	RASET   = 0x2B
	RAMWR   = 0x2C
	MADCTL  = 0x36
	COLMOD  = 0x3A
)

// Op is a command and the data bytes that followed it.
type Op struct {
	Cmd  byte
	Data []byte
}

// Panel is an emulated ST7735 with its frame memory.
type Panel struct {
	// DC is the data/command line, low for commands.
	DC *gpiotest.Pin
	// RST is the reset line. The panel only exposes it for wiring.
	RST *gpiotest.Pin
	// Fail, when set, is called before every transfer with the last command
	// received and whether the transfer carries data. A non-nil error fails
	// the transfer and nothing of it is processed.
	Fail func(cmd byte, data bool) error

	mu        sync.Mutex
	maxTxSize int
	freq      physic.Frequency
	ops       []Op
	transfers int

	frame    *image565.Image
	cmd      byte
	hasCmd   bool
	params   []byte
	writing  bool
	x, y     int
	pending  []byte // odd byte of a pixel split across transfers
	window   image.Rectangle
	sleeping bool
	on       bool
	colmod   byte
	madctl   byte
}

// New returns a panel with a w×h frame memory, asleep and off as after power
// on.
func New(w, h int) *Panel {
	p := &Panel{
		DC:        &gpiotest.Pin{N: "DC"},
		RST:       &gpiotest.Pin{N: "RST", L: gpio.High},
		maxTxSize: 4096,
		frame:     image565.NewImage(image.Rect(0, 0, w, h)),
	}
	p.resetLocked()
	return p
}

func (p *Panel) resetLocked() {
	p.hasCmd = false
	p.params = nil
	p.writing = false
	p.pending = nil
	p.window = p.frame.Rect
	p.sleeping = true
	p.on = false
	p.colmod = 0x06
	p.madctl = 0x00
}

func (p *Panel) String() string {
	return fmt.Sprintf("emulator.Panel{%dx%d}", p.frame.Rect.Dx(), p.frame.Rect.Dy())
}

// Connect implements spi.Port. The panel accepts Mode0, 8 bits per word, up
// to 62.5MHz.
func (p *Panel) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if mode != spi.Mode0 {
		return nil, fmt.Errorf("emulator: unsupported mode %v", mode)
	}
	if bits != 8 {
		return nil, fmt.Errorf("emulator: unsupported %d bits per word", bits)
	}
	if f <= 0 || f > 62500*physic.KiloHertz {
		return nil, fmt.Errorf("emulator: unsupported frequency %s", f)
	}
	p.mu.Lock()
	p.freq = f
	p.mu.Unlock()
	return p, nil
}

// Frequency returns the clock requested by the last Connect.
func (p *Panel) Frequency() physic.Frequency {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freq
}

// Duplex implements conn.Conn.
func (p *Panel) Duplex() conn.Duplex {
	return conn.Half
}

// MaxTxSize implements conn.Limits.
func (p *Panel) MaxTxSize() int {
	return p.maxTxSize
}

// SetMaxTxSize changes the largest transfer the panel reports it accepts.
func (p *Panel) SetMaxTxSize(n int) {
	p.maxTxSize = n
}

// TxPackets implements spi.Conn.
func (p *Panel) TxPackets(pkts []spi.Packet) error {
	for _, pkt := range pkts {
		if err := p.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

// Tx implements conn.Conn. The panel is write only.
func (p *Panel) Tx(w, r []byte) error {
	if len(r) != 0 {
		return errors.New("emulator: reads are not supported")
	}
	data := p.DC.Read() == gpio.High

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail != nil {
		if err := p.Fail(p.cmd, data); err != nil {
			return err
		}
	}
	if len(w) > p.maxTxSize {
		return fmt.Errorf("emulator: transfer of %d bytes exceeds %d", len(w), p.maxTxSize)
	}
	p.transfers++
	if data {
		p.dataLocked(w)
		return nil
	}
	for _, b := range w {
		p.commandLocked(b)
	}
	return nil
}

func (p *Panel) commandLocked(b byte) {
	p.ops = append(p.ops, Op{Cmd: b})
	p.cmd = b
	p.hasCmd = true
	p.params = p.params[:0]
	p.writing = false
	p.pending = nil
	switch b {
	case SWRESET:
		p.resetLocked()
		p.cmd, p.hasCmd = b, true
	case SLPOUT:
		p.sleeping = false
	case DISPON:
		p.on = true
	case RAMWR:
		p.writing = true
		p.x, p.y = p.window.Min.X, p.window.Min.Y
	}
}

func (p *Panel) dataLocked(w []byte) {
	if !p.hasCmd {
		// Data without a command is ignored by the controller.
		return
	}
	if len(p.ops) == 0 {
		p.ops = append(p.ops, Op{Cmd: p.cmd})
	}
	last := &p.ops[len(p.ops)-1]
	last.Data = append(last.Data, w...)
	if p.writing {
		p.pixelsLocked(w)
		return
	}
	p.params = append(p.params, w...)
	switch p.cmd {
	case CASET:
		if len(p.params) >= 4 {
			p.window.Min.X = int(p.params[0])<<8 | int(p.params[1])
			p.window.Max.X = (int(p.params[2])<<8 | int(p.params[3])) + 1
		}
	case RASET:
		if len(p.params) >= 4 {
			p.window.Min.Y = int(p.params[0])<<8 | int(p.params[1])
			p.window.Max.Y = (int(p.params[2])<<8 | int(p.params[3])) + 1
		}
	case COLMOD:
		p.colmod = p.params[0]
	case MADCTL:
		p.madctl = p.params[0]
	}
}

// pixelsLocked stores RGB565 pixels in the window in raster order, wrapping
// to the top of the window once it is full.
func (p *Panel) pixelsLocked(w []byte) {
	if len(p.pending) != 0 {
		w = append(p.pending, w...)
		p.pending = nil
	}
	for ; len(w) >= 2; w = w[2:] {
		p.frame.SetRGB565(p.x, p.y, image565.RGB565(uint16(w[0])<<8|uint16(w[1])))
		p.x++
		if p.x >= p.window.Max.X {
			p.x = p.window.Min.X
			p.y++
			if p.y >= p.window.Max.Y {
				p.y = p.window.Min.Y
			}
		}
	}
	if len(w) == 1 {
		p.pending = []byte{w[0]}
	}
}

// Ops returns the commands received so far.
func (p *Panel) Ops() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Op, len(p.ops))
	copy(out, p.ops)
	return out
}

// Transfers returns the number of bus transactions received.
func (p *Panel) Transfers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transfers
}

// ClearOps forgets the recorded commands and transfer count. The frame
// memory and registers are kept.
func (p *Panel) ClearOps() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = nil
	p.transfers = 0
}

// Frame returns a copy of the frame memory.
func (p *Panel) Frame() *image565.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	img := image565.NewImage(p.frame.Rect)
	copy(img.Pix, p.frame.Pix)
	return img
}

// Window returns the current addressing window.
func (p *Panel) Window() image.Rectangle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// Registers reports the sleep, display and format state of the panel.
func (p *Panel) Registers() (sleeping, on bool, colmod, madctl byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleeping, p.on, p.colmod, p.madctl
}

var _ spi.Port = &Panel{}
var _ spi.Conn = &Panel{}
var _ conn.Limits = &Panel{}
