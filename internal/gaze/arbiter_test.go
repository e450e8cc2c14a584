package gaze

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClicker struct {
	clicks int
	err    error
}

func (m *mockClicker) ClickAtCurrentPosition() error {
	if m.err != nil {
		return m.err
	}
	m.clicks++
	return nil
}

func newTestArbiter(c Clicker) *ClickArbiter {
	return NewClickArbiter(c, 1920, 1080, time.Second, 50, 50)
}

// TestArbiterAccepts tests the happy path: a mid-screen click outside the
// cooldown window.
func TestArbiterAccepts(t *testing.T) {
	t.Parallel()
	clicker := &mockClicker{}
	a := newTestArbiter(clicker)

	outcome := a.RequestClick(960, 540, time.Now())
	assert.Equal(t, ClickAccepted, outcome)
	assert.Equal(t, 1, clicker.clicks)
	assert.Equal(t, 1, a.ClickCount())
	assert.Equal(t, 0, a.SuppressedCount())
}

// TestArbiterCooldown tests cooldown gating at 0.3s and 1.1s spacing.
func TestArbiterCooldown(t *testing.T) {
	t.Parallel()

	t.Run("second click 0.3s later is suppressed", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)
		base := time.Now()

		require.Equal(t, ClickAccepted, a.RequestClick(960, 540, base))
		outcome := a.RequestClick(960, 540, base.Add(300*time.Millisecond))
		assert.Equal(t, ClickSuppressedCooldown, outcome)
		assert.Equal(t, 1, clicker.clicks)
		assert.Equal(t, 1, a.SuppressedCount())
	})

	t.Run("second click 1.1s later is accepted", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)
		base := time.Now()

		require.Equal(t, ClickAccepted, a.RequestClick(960, 540, base))
		outcome := a.RequestClick(960, 540, base.Add(1100*time.Millisecond))
		assert.Equal(t, ClickAccepted, outcome)
		assert.Equal(t, 2, clicker.clicks)
	})
}

// TestArbiterSafeZone tests the top-corner protection band.
func TestArbiterSafeZone(t *testing.T) {
	t.Parallel()

	t.Run("top-left corner is suppressed", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)

		outcome := a.RequestClick(5, 5, time.Now())
		assert.Equal(t, ClickSuppressedSafeZone, outcome)
		assert.Equal(t, 0, clicker.clicks)
		assert.Equal(t, 1, a.SuppressedCount())
	})

	t.Run("top-right corner is suppressed", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)

		outcome := a.RequestClick(1915, 5, time.Now())
		assert.Equal(t, ClickSuppressedSafeZone, outcome)
	})

	t.Run("top-center is accepted", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)

		// Inside the top band but clear of both side bands.
		outcome := a.RequestClick(960, 5, time.Now())
		assert.Equal(t, ClickAccepted, outcome)
		assert.Equal(t, 1, clicker.clicks)
	})

	t.Run("left edge below top band is accepted", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)

		outcome := a.RequestClick(5, 540, time.Now())
		assert.Equal(t, ClickAccepted, outcome)
	})

	t.Run("suppression does not start a cooldown", func(t *testing.T) {
		t.Parallel()
		clicker := &mockClicker{}
		a := newTestArbiter(clicker)
		base := time.Now()

		require.Equal(t, ClickSuppressedSafeZone, a.RequestClick(5, 5, base))
		outcome := a.RequestClick(960, 540, base.Add(10*time.Millisecond))
		assert.Equal(t, ClickAccepted, outcome)
	})
}

// TestArbiterClickFailure tests that an injector error is reported as a
// failed click without counting as accepted.
func TestArbiterClickFailure(t *testing.T) {
	t.Parallel()
	clicker := &mockClicker{err: errors.New("injector unavailable")}
	a := newTestArbiter(clicker)

	outcome := a.RequestClick(960, 540, time.Now())
	assert.Equal(t, ClickFailed, outcome)
	assert.Equal(t, 0, a.ClickCount())
}

// TestArbiterReset tests that Reset clears counters and the cooldown clock.
func TestArbiterReset(t *testing.T) {
	t.Parallel()
	clicker := &mockClicker{}
	a := newTestArbiter(clicker)
	base := time.Now()

	require.Equal(t, ClickAccepted, a.RequestClick(960, 540, base))
	a.Reset()

	assert.Equal(t, 0, a.ClickCount())
	assert.Equal(t, 0, a.SuppressedCount())

	// Immediately after Reset the cooldown no longer applies.
	outcome := a.RequestClick(960, 540, base.Add(10*time.Millisecond))
	assert.Equal(t, ClickAccepted, outcome)
}
