// Package cursor is the OS pointer boundary: absolute moves and clicks
// behind a small interface so the tracking pipeline never talks to the
// display server directly. Backends are probed at startup and composed into
// a fallback chain; tests use the mock and dry runs use the null injector.
package cursor

import "fmt"

// Injector issues pointer primitives against the host display. Calls are
// made one at a time from the tracking loop; implementations do not need to
// be safe for concurrent use.
type Injector interface {
	// MoveCursorAbsolute warps the pointer to the given screen pixel.
	MoveCursorAbsolute(x, y int) error

	// ClickAtCurrentPosition issues a left click wherever the pointer is.
	ClickAtCurrentPosition() error

	// Name identifies the backend for status reporting and logs.
	Name() string
}

// Prober is implemented by backends that can cheaply check whether they can
// actually reach the display before being selected.
type Prober interface {
	Available() bool
}

// ErrNoBackend is returned by Detect when no injection backend can reach
// the display.
var ErrNoBackend = fmt.Errorf("no cursor injection backend available")
