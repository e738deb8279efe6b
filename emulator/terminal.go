package emulator

import (
	"bytes"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Terminal draws frames on a terminal using ANSI 256 color codes.
//
// Each pixel is a colored block, so a 160 pixel wide frame needs a wide
// terminal unless Step is raised.
type Terminal struct {
	// Step keeps one pixel out of Step in both directions. Zero means 1.
	Step int

	w       io.Writer
	palette *ansi256.Palette
	buf     bytes.Buffer
}

// NewTerminal returns a Terminal writing to w, or to stdout when w is nil.
// p can be nil to use ansi256.Default.
func NewTerminal(w io.Writer, p *ansi256.Palette) *Terminal {
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	if p == nil {
		p = ansi256.Default
	}
	return &Terminal{w: w, palette: p}
}

// Render moves the cursor home and draws img.
func (t *Terminal) Render(img image.Image) error {
	step := t.Step
	if step <= 0 {
		step = 1
	}
	// Reuse the buffer so a frame costs a single write.
	t.buf.Reset()
	_, _ = t.buf.WriteString("\033[H")
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += step {
		_, _ = t.buf.WriteString("\033[0m")
		for x := b.Min.X; x < b.Max.X; x += step {
			_, _ = io.WriteString(&t.buf, t.palette.Block(color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)))
		}
		_, _ = t.buf.WriteString("\033[0m\n")
	}
	_, err := t.buf.WriteTo(t.w)
	return err
}

// Clear resets the attributes and clears the screen.
func (t *Terminal) Clear() error {
	_, err := io.WriteString(t.w, "\033[0m\033[2J\033[H")
	return err
}
