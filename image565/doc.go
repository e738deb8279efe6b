// Package image565 provides the 16-bit RGB565 image format used by the ST7735
// display controller.
//
// Each pixel occupies two bytes. Red uses the top 5 bits, green the middle 6
// bits and blue the low 5 bits. Pixels are stored row-major, high byte first,
// which is the order the controller expects on the wire once a memory write
// has been armed.
//
// Memory layout example for a 2-pixel row:
//
//	Pixels: 0       1
//	Colors: red     blue
//	Value:  0xF800  0x001F
//	Bytes:  F8 00   00 1F
//
// This package provides:
//
// - RGB565: a color type holding the packed 16-bit value
// - RGB565Model: a color model converting standard Go colors to RGB565
// - Image: an image.Image / draw.Image whose Pix can be streamed as-is
//
// Example usage:
//
//	// Create a 160x128 image
//	img := image565.NewImage(image.Rect(0, 0, 160, 128))
//
//	// Set a pixel to pure green
//	img.SetRGB565(10, 20, image565.FromRGB(0, 0xFF, 0))
//
//	// Use with standard Go image operations
//	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
package image565
