package cursor

import "log"

// Detect probes the known backends in preference order and returns the
// first one that can reach the display. The chain falls back to the null
// injector at runtime if the selected backend starts failing, so a display
// that goes away mid-session degrades to a dry run instead of spamming
// errors.
func Detect() (Injector, error) {
	candidates := []Injector{
		NewXdotoolInjector(),
		NewYdotoolInjector(),
	}
	for _, c := range candidates {
		if p, ok := c.(Prober); ok && !p.Available() {
			continue
		}
		log.Printf("[cursor] using %s backend", c.Name())
		return NewFallbackInjector(c, &NullInjector{Quiet: true}), nil
	}
	return nil, ErrNoBackend
}

// FallbackInjector wraps a primary backend and switches permanently to the
// fallback after repeated primary failures. The switch is logged once.
type FallbackInjector struct {
	primary   Injector
	fallback  Injector
	failures  int
	demoted   bool
	threshold int
}

// maxPrimaryFailures is how many consecutive primary errors are tolerated
// before demotion.
const maxPrimaryFailures = 5

// NewFallbackInjector composes a primary backend with a fallback.
func NewFallbackInjector(primary, fallback Injector) *FallbackInjector {
	return &FallbackInjector{primary: primary, fallback: fallback, threshold: maxPrimaryFailures}
}

func (f *FallbackInjector) Name() string {
	if f.demoted {
		return f.fallback.Name()
	}
	return f.primary.Name()
}

func (f *FallbackInjector) active() Injector {
	if f.demoted {
		return f.fallback
	}
	return f.primary
}

func (f *FallbackInjector) observe(err error) error {
	if f.demoted {
		return err
	}
	if err == nil {
		f.failures = 0
		return nil
	}
	f.failures++
	if f.failures >= f.threshold {
		f.demoted = true
		log.Printf("[cursor] %s backend failed %d times, falling back to %s: %v",
			f.primary.Name(), f.failures, f.fallback.Name(), err)
	}
	return err
}

func (f *FallbackInjector) MoveCursorAbsolute(x, y int) error {
	return f.observe(f.active().MoveCursorAbsolute(x, y))
}

func (f *FallbackInjector) ClickAtCurrentPosition() error {
	return f.observe(f.active().ClickAtCurrentPosition())
}
