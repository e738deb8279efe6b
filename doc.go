// Package st7735 controls a ST7735 TFT LCD controller via SPI.
//
// The ST7735 is a 262K color TFT controller with a 132×162 frame memory. This
// driver runs it in 16-bit RGB565 mode on a 160×128 panel and implements the
// display.Drawer interface from periph.io.
//
// # Display Characteristics
//
// - 16-bit RGB565 color
// - 160×128 pixels (128×160 when rotated by 90° or 270°)
// - Partial updates: any rectangle of the frame memory can be rewritten
// - Optional backlight enable line
//
// # Hardware Connection
//
// Connect the ST7735 display to your system via SPI:
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	SCL/CLK     → SPI Clock (SCLK)
//	SDA/MOSI    → SPI Data (MOSI)
//	DC/A0       → GPIO (any available pin)
//	CS          → SPI Chip Select, or a GPIO passed as Opts.CS
//	RES         → Optional: GPIO for hardware reset (Opts.RST)
//	BLK/LED     → Optional: GPIO for backlight (Opts.Backlight)
//
// The bus runs at 40MHz in SPI mode 0.
//
// # Basic Usage
//
//	package main
//
//	import (
//		"image"
//
//		"github.com/flavioheleno/st7735"
//		"github.com/flavioheleno/st7735/image565"
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//
//		spiBus, _ := spireg.Open("")
//
//		dev, _ := st7735.NewSPI(spiBus, gpioreg.ByName("GPIO25"), &st7735.Opts{
//			W:         160,
//			H:         128,
//			RST:       gpioreg.ByName("GPIO24"),
//			Backlight: gpioreg.ByName("GPIO18"),
//		})
//		defer dev.Halt()
//
//		img := image565.NewImage(dev.Bounds())
//		img.Fill(image565.Blue)
//		dev.Draw(dev.Bounds(), img, image.Point{})
//	}
//
// # Lifecycle
//
// New returns an Uninitialized Dev. Init performs the one-shot bring-up
// sequence (hardware reset, software reset, sleep out, pixel format,
// orientation, display on) and waits for the controller mandated settle
// delays. A Dev becomes Ready when Init succeeds and Failed when it does not;
// there is no way back. NewSPI does both steps.
//
// # Flushing
//
// Flush is the entry point for tile based renderers. It takes an inclusive
// Area and a buffer of RGB565 pixels in wire order and calls a completion
// function exactly once:
//
//	img := image565.NewImage(image.Rect(10, 20, 20, 30))
//	err := dev.Flush(st7735.AreaFromRect(img.Rect), img.Pix, func(err error) {
//		// img may be reused from here on.
//	})
//
// Every flush sets the column and row address window again before the memory
// write, so a skipped or failed transfer never leaves a stale window behind.
// The buffer is streamed without copying.
//
// # Errors
//
// Calls that break the contract (area outside the display, buffer length not
// matching the area, Flush before Init) fail with an error wrapping
// ErrProtocol and send nothing. Bus failures wrap transport.ErrFault. Any
// failure during Init wraps ErrInit.
//
// # Datasheet
//
// https://www.displayfuture.com/Display/datasheet/controller/ST7735.pdf
package st7735
