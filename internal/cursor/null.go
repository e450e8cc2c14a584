package cursor

import "log"

// NullInjector is a no-op backend used for dry runs (--no-cursor) and when
// no real backend is available. It logs primitives instead of issuing them
// so a headless session still shows what the pipeline would have done.
type NullInjector struct {
	// Quiet suppresses per-primitive logging.
	Quiet bool

	moves  int
	clicks int
}

func NewNullInjector() *NullInjector { return &NullInjector{} }

func (n *NullInjector) Name() string { return "null" }

func (n *NullInjector) MoveCursorAbsolute(x, y int) error {
	n.moves++
	if !n.Quiet {
		log.Printf("[cursor] dry-run move to (%d, %d)", x, y)
	}
	return nil
}

func (n *NullInjector) ClickAtCurrentPosition() error {
	n.clicks++
	if !n.Quiet {
		log.Printf("[cursor] dry-run click")
	}
	return nil
}

// Moves returns the number of move primitives received.
func (n *NullInjector) Moves() int { return n.moves }

// Clicks returns the number of click primitives received.
func (n *NullInjector) Clicks() int { return n.clicks }
