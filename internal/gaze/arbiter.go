package gaze

import (
	"time"
)

// ClickOutcome is the reported result of click arbitration. Suppressions
// are expected outcomes, not errors, and are counted separately from
// accepted clicks.
type ClickOutcome string

const (
	ClickAccepted           ClickOutcome = "accepted"
	ClickSuppressedCooldown ClickOutcome = "suppressed-cooldown"
	ClickSuppressedSafeZone ClickOutcome = "suppressed-safezone"
	ClickFailed             ClickOutcome = "failed"
)

// Clicker issues the OS click primitive at the current cursor position.
// Defined here so the arbiter does not depend on the cursor package; the
// cursor injectors satisfy it.
type Clicker interface {
	ClickAtCurrentPosition() error
}

// ClickArbiter gates blink events behind a cooldown and a safe zone before
// they become actual clicks. The safe zone protects window-chrome controls
// in the screen's top corners from accidental blink-clicks.
//
// Owned by the single tracking loop; not safe for concurrent use.
type ClickArbiter struct {
	Clicker    Clicker
	Cooldown   time.Duration
	ScreenW    int
	ScreenH    int
	TopMargin  float64 // safe-zone band height from the top edge, pixels
	SideMargin float64 // safe-zone band width from each side edge, pixels

	lastClick  time.Time
	clickCount int
	suppressed int
}

// NewClickArbiter creates an arbiter for the given screen with the given
// cooldown and safe-zone margins.
func NewClickArbiter(clicker Clicker, screenW, screenH int, cooldown time.Duration, topMargin, sideMargin float64) *ClickArbiter {
	return &ClickArbiter{
		Clicker:    clicker,
		Cooldown:   cooldown,
		ScreenW:    screenW,
		ScreenH:    screenH,
		TopMargin:  topMargin,
		SideMargin: sideMargin,
	}
}

// Reset clears the per-session click state.
func (a *ClickArbiter) Reset() {
	a.lastClick = time.Time{}
	a.clickCount = 0
	a.suppressed = 0
}

// ClickCount returns the number of accepted clicks since the last Reset.
func (a *ClickArbiter) ClickCount() int { return a.clickCount }

// SuppressedCount returns the number of suppressed requests since the last
// Reset.
func (a *ClickArbiter) SuppressedCount() int { return a.suppressed }

// inSafeZone reports whether the position is inside the protected band:
// within the top margin vertically AND within either side margin
// horizontally.
func (a *ClickArbiter) inSafeZone(x, y float64) bool {
	if y >= a.TopMargin {
		return false
	}
	return x < a.SideMargin || x > float64(a.ScreenW)-a.SideMargin
}

// RequestClick arbitrates one blink-triggered click request at the current
// cursor position. Accepted requests issue the OS click primitive and stamp
// the cooldown clock; suppressed requests leave all click state untouched.
func (a *ClickArbiter) RequestClick(x, y float64, now time.Time) ClickOutcome {
	if !a.lastClick.IsZero() && now.Sub(a.lastClick) < a.Cooldown {
		a.suppressed++
		return ClickSuppressedCooldown
	}
	if a.inSafeZone(x, y) {
		a.suppressed++
		return ClickSuppressedSafeZone
	}
	if err := a.Clicker.ClickAtCurrentPosition(); err != nil {
		return ClickFailed
	}
	a.lastClick = now
	a.clickCount++
	return ClickAccepted
}
