package st7735

import (
	"fmt"
	"image"
)

// Area is a rectangle in device pixel coordinates with inclusive bounds, the
// way the controller's column and row address registers express it.
type Area struct {
	X1, Y1, X2, Y2 int
}

// AreaFromRect converts an image.Rectangle, whose Max is exclusive.
func AreaFromRect(r image.Rectangle) Area {
	return Area{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X - 1, Y2: r.Max.Y - 1}
}

// Rect returns the equivalent image.Rectangle.
func (a Area) Rect() image.Rectangle {
	return image.Rect(a.X1, a.Y1, a.X2+1, a.Y2+1)
}

// Width is the number of columns covered.
func (a Area) Width() int {
	return a.X2 - a.X1 + 1
}

// Height is the number of rows covered.
func (a Area) Height() int {
	return a.Y2 - a.Y1 + 1
}

// Len is the pixel buffer length in bytes needed to fill the area.
func (a Area) Len() int {
	return 2 * a.Width() * a.Height()
}

// In reports whether the area is well formed and fits a w×h display.
func (a Area) In(w, h int) bool {
	return 0 <= a.X1 && a.X1 <= a.X2 && a.X2 < w &&
		0 <= a.Y1 && a.Y1 <= a.Y2 && a.Y2 < h
}

func (a Area) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", a.X1, a.Y1, a.X2, a.Y2)
}

// addressPayload encodes start and end as two big-endian 16-bit values.
func addressPayload(start, end int) []byte {
	return []byte{byte(start >> 8), byte(start), byte(end >> 8), byte(end)}
}
