package st7735

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flavioheleno/st7735/image565"
	"github.com/flavioheleno/st7735/transport"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Commands. Only the ones needed to present pixels are used.
const (
	swReset             = 0x01
	sleepOut            = 0x11
	displayOn           = 0x29
	columnAddressSet    = 0x2A
	rowAddressSet       = 0x2B
	memoryWrite         = 0x2C
	memoryAccessControl = 0x36
	pixelFormatSet      = 0x3A
)

// pixelFormat16 selects 16 bits per pixel (RGB565) in pixelFormatSet.
const pixelFormat16 = 0x05

// Memory access control bits.
const (
	madctlMY  = 0x80
	madctlMX  = 0x40
	madctlMV  = 0x20
	madctlBGR = 0x08
)

// Settle delays required by the controller after each bring-up command.
// These are lower bounds.
const (
	swResetSettle     = 150 * time.Millisecond
	sleepOutSettle    = 150 * time.Millisecond
	pixelFormatSettle = 10 * time.Millisecond
	displayOnSettle   = 100 * time.Millisecond
)

// maxSide is the largest frame memory dimension of the controller (132×162).
const maxSide = 162

// Rotation is the clockwise orientation of the picture on the panel.
type Rotation byte

// Possible rotations. Rotate90 and Rotate270 swap width and height.
const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

func (r Rotation) madctl() byte {
	switch r {
	case Rotate90:
		return madctlMX | madctlMV
	case Rotate180:
		return madctlMX | madctlMY
	case Rotate270:
		return madctlMY | madctlMV
	default:
		return 0x00
	}
}

// State is the lifecycle state of a Dev.
type State int32

// A Dev starts Uninitialized and becomes Ready after a successful Init. A
// failed Init leaves it Failed for good.
const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Link is the command/data channel to the controller.
//
// *transport.Transport implements it.
type Link interface {
	SendCommand(cmd byte) error
	SendData(p []byte) error
	Reset() error
}

// Opts is the configuration for the ST7735 display.
type Opts struct {
	// Panel dimensions in pixels before rotation (default: 160x128, max 162).
	W int
	H int

	// Orientation (default: Rotate0, memory access control 0x00).
	Rotation Rotation
	// BGR swaps the red and blue channels for panels wired that way.
	BGR bool

	// Optional control lines, nil if not wired.
	CS        gpio.PinOut // Chip select, nil when driven by the SPI port
	RST       gpio.PinOut // Hardware reset
	Backlight gpio.PinOut // Backlight enable, active high
}

// DefaultOpts is the 160x128 panel with no rotation.
var DefaultOpts = Opts{
	W: 160,
	H: 128,
}

// Dev is the device handle for the ST7735 display.
type Dev struct {
	l         Link
	backlight gpio.PinOut

	// Display geometry after rotation.
	rect   image.Rectangle
	madctl byte

	// mu serializes everything that talks to the link.
	mu      sync.Mutex
	state   atomic.Int32
	scratch []byte // Draw conversion buffer

	sleep func(time.Duration)
}

// NewSPI opens a transport on the SPI port and returns an initialized Dev.
//
// The SPI port is configured for 40MHz, Mode0 (CPOL=0, CPHA=0), 8-bit
// transfers. The dc (Data/Command) GPIO pin must be provided. opts can be nil
// to use DefaultOpts.
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	t, err := transport.Open(p, dc, opts.CS, opts.RST)
	if err != nil {
		return nil, err
	}
	d, err := New(t, opts)
	if err != nil {
		return nil, err
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// New returns an Uninitialized Dev talking over l. Call Init before Flush.
//
// opts can be nil to use DefaultOpts. Once the Dev is Ready it owns l; nothing
// else may send on it.
func New(l Link, opts *Opts) (*Dev, error) {
	if l == nil {
		return nil, errors.New("st7735: nil link")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	w, h := opts.W, opts.H
	if w == 0 && h == 0 {
		w, h = DefaultOpts.W, DefaultOpts.H
	}
	if w <= 0 || w > maxSide || h <= 0 || h > maxSide {
		return nil, fmt.Errorf("st7735: invalid size %dx%d", w, h)
	}
	if opts.Rotation > Rotate270 {
		return nil, fmt.Errorf("st7735: invalid rotation %d", opts.Rotation)
	}
	if opts.Rotation == Rotate90 || opts.Rotation == Rotate270 {
		w, h = h, w
	}
	madctl := opts.Rotation.madctl()
	if opts.BGR {
		madctl |= madctlBGR
	}
	return &Dev{
		l:         l,
		backlight: opts.Backlight,
		rect:      image.Rect(0, 0, w, h),
		madctl:    madctl,
		sleep:     time.Sleep,
	}, nil
}

// command is one step of a command sequence.
type command struct {
	cmd   byte
	data  []byte
	delay time.Duration
}

// initSequence returns the bring-up commands in the order the controller
// requires them.
func initSequence(madctl byte) []command {
	return []command{
		{cmd: swReset, delay: swResetSettle},
		{cmd: sleepOut, delay: sleepOutSettle},
		{cmd: pixelFormatSet, data: []byte{pixelFormat16}, delay: pixelFormatSettle},
		{cmd: memoryAccessControl, data: []byte{madctl}},
		{cmd: displayOn, delay: displayOnSettle},
	}
}

// send issues the command, its payload if any, then waits for its settle
// delay.
func (d *Dev) send(c command) error {
	if err := d.l.SendCommand(c.cmd); err != nil {
		return err
	}
	if len(c.data) != 0 {
		if err := d.l.SendData(c.data); err != nil {
			return err
		}
	}
	if c.delay != 0 {
		d.sleep(c.delay)
	}
	return nil
}

// Init runs the one-shot bring-up sequence: backlight on, hardware reset,
// software reset, sleep out, 16-bit pixel format, orientation, display on.
//
// It is only valid on an Uninitialized Dev. On failure the Dev becomes Failed
// and the returned error wraps ErrInit and the underlying fault.
func (d *Dev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
		return fmt.Errorf("%w: init while %s", ErrNotReady, d.State())
	}
	if err := d.bringUp(); err != nil {
		d.state.Store(int32(Failed))
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	d.state.Store(int32(Ready))
	return nil
}

func (d *Dev) bringUp() error {
	if d.backlight != nil {
		if err := d.backlight.Out(gpio.High); err != nil {
			return fmt.Errorf("backlight: %w", err)
		}
	}
	if err := d.l.Reset(); err != nil {
		return err
	}
	for _, c := range initSequence(d.madctl) {
		if err := d.send(c); err != nil {
			return err
		}
	}
	return nil
}

// State returns the current lifecycle state.
func (d *Dev) State() State {
	return State(d.state.Load())
}

// Flush presents pix inside a.
//
// pix holds a.Width()×a.Height() RGB565 pixels, row-major, high byte first
// (image565.Image.Pix). It is streamed as-is, never copied, and not touched
// once done has been called.
//
// The addressing window is set on every call. done, when not nil, is called
// exactly once per call with the same error Flush returns, after the pixel
// data has been handed to the transport or the call has been rejected. It
// runs with the Dev locked and must not call back into it.
//
// An invalid area, a length mismatch or a Dev that is not Ready is rejected
// with an error wrapping ErrProtocol before anything is sent. A transport
// fault is returned wrapped (errors.Is(err, transport.ErrFault)) and leaves
// the Dev Ready; the same call can be retried.
func (d *Dev) Flush(a Area, pix []byte, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.flushLocked(a, pix)
	if done != nil {
		done(err)
	}
	return err
}

func (d *Dev) flushLocked(a Area, pix []byte) error {
	if s := d.State(); s != Ready {
		return fmt.Errorf("%w: flush while %s", ErrNotReady, s)
	}
	if !a.In(d.rect.Dx(), d.rect.Dy()) {
		return fmt.Errorf("%w: area %s outside %dx%d", ErrProtocol, a, d.rect.Dx(), d.rect.Dy())
	}
	if len(pix) != a.Len() {
		return fmt.Errorf("%w: area %s needs %d bytes, got %d", ErrProtocol, a, a.Len(), len(pix))
	}
	if err := d.setWindow(a); err != nil {
		return fmt.Errorf("st7735: flush %s: %w", a, err)
	}
	if err := d.l.SendData(pix); err != nil {
		return fmt.Errorf("st7735: flush %s: %w", a, err)
	}
	return nil
}

// setWindow sets the addressing window and arms a memory write.
func (d *Dev) setWindow(a Area) error {
	cmds := []command{
		{cmd: columnAddressSet, data: addressPayload(a.X1, a.X2)},
		{cmd: rowAddressSet, data: addressPayload(a.Y1, a.Y2)},
		{cmd: memoryWrite},
	}
	for _, c := range cmds {
		if err := d.send(c); err != nil {
			return err
		}
	}
	return nil
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return image565.RGB565Model
}

// Bounds implements display.Drawer. Min is always {0, 0}.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw implements display.Drawer.
//
// The destination is clipped to the display. An *image565.Image source
// covering exactly r with no row padding is sent directly, anything else is
// converted first.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	clipped := r.Intersect(d.rect)
	sp = sp.Add(clipped.Min.Sub(r.Min))
	r = clipped
	if r.Empty() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if img, ok := src.(*image565.Image); ok && img.Rect == r && sp == r.Min && img.Contiguous() {
		return d.flushLocked(AreaFromRect(r), img.Pix)
	}

	n := 2 * r.Dx() * r.Dy()
	if cap(d.scratch) < n {
		d.scratch = make([]byte, n)
	}
	img := &image565.Image{Pix: d.scratch[:n], Stride: 2 * r.Dx(), Rect: r}
	draw.Draw(img, r, src, sp, draw.Src)
	return d.flushLocked(AreaFromRect(r), img.Pix)
}

// Write writes a full frame of wire-format RGB565 pixels.
// The data must be exactly 2 * Bounds().Dx() * Bounds().Dy() bytes.
func (d *Dev) Write(pixels []byte) (int, error) {
	if err := d.Flush(AreaFromRect(d.rect), pixels, nil); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// Halt implements conn.Resource.
//
// It turns the backlight off when one is wired and halts the link when it
// supports it, which releases chip-select for a Transport. The controller
// keeps its state and the next Flush is shown once the backlight is back on.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backlight != nil {
		if err := d.backlight.Out(gpio.Low); err != nil {
			return err
		}
	}
	if h, ok := d.l.(interface{ Halt() error }); ok {
		return h.Halt()
	}
	return nil
}

// Backlight switches the backlight line.
func (d *Dev) Backlight(on bool) error {
	if d.backlight == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlight.Out(gpio.Level(on))
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("st7735.Dev{%dx%d, %s}", d.rect.Dx(), d.rect.Dy(), d.State())
}

var _ display.Drawer = &Dev{}
