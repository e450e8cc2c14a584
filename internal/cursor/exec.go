package cursor

import (
	"fmt"
	"os/exec"
	"strconv"
)

// ExecInjector drives the pointer through an external injection tool.
// xdotool covers X11 sessions; ydotool covers Wayland via its uinput
// daemon. One short-lived process per primitive keeps the backend stateless
// and trivially recoverable.
type ExecInjector struct {
	tool string
}

// NewXdotoolInjector returns an injector backed by xdotool.
func NewXdotoolInjector() *ExecInjector { return &ExecInjector{tool: "xdotool"} }

// NewYdotoolInjector returns an injector backed by ydotool.
func NewYdotoolInjector() *ExecInjector { return &ExecInjector{tool: "ydotool"} }

func (e *ExecInjector) Name() string { return e.tool }

// Available reports whether the tool binary is on PATH.
func (e *ExecInjector) Available() bool {
	_, err := exec.LookPath(e.tool)
	return err == nil
}

func (e *ExecInjector) MoveCursorAbsolute(x, y int) error {
	var cmd *exec.Cmd
	switch e.tool {
	case "ydotool":
		cmd = exec.Command(e.tool, "mousemove", "--absolute", "-x", strconv.Itoa(x), "-y", strconv.Itoa(y))
	default:
		cmd = exec.Command(e.tool, "mousemove", strconv.Itoa(x), strconv.Itoa(y))
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s mousemove failed: %w (%s)", e.tool, err, out)
	}
	return nil
}

func (e *ExecInjector) ClickAtCurrentPosition() error {
	var cmd *exec.Cmd
	switch e.tool {
	case "ydotool":
		// 0xC0 = left button press + release.
		cmd = exec.Command(e.tool, "click", "0xC0")
	default:
		cmd = exec.Command(e.tool, "click", "1")
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s click failed: %w (%s)", e.tool, err, out)
	}
	return nil
}
