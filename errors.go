package st7735

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is returned when a call breaks the driver contract: an area
	// outside the display, a pixel buffer whose length does not match its
	// area, or a call made in the wrong state. Nothing is sent to the
	// controller in that case.
	ErrProtocol = errors.New("st7735: protocol violation")

	// ErrNotReady is the state flavor of ErrProtocol.
	ErrNotReady = fmt.Errorf("%w: wrong state", ErrProtocol)

	// ErrInit is returned when the bring-up sequence fails. The device is then
	// unusable.
	ErrInit = errors.New("st7735: init failed")
)
