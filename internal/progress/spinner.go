// Package progress draws a terminal spinner while a long-running step such
// as a clone or a dependency install is in flight.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

// Spinner renders an animation to out while a task runs.
type Spinner struct {
	out     io.Writer
	style   spinner.Spinner
	enabled bool
}

// New creates a Spinner writing to out. Animation is disabled when out is
// not a terminal; Run then only executes the task.
func New(out io.Writer) *Spinner {
	enabled := false
	if f, ok := out.(*os.File); ok {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Spinner{out: out, style: spinner.MiniDot, enabled: enabled}
}

// Disabled returns a Spinner that never draws.
func Disabled() *Spinner {
	return &Spinner{out: io.Discard, style: spinner.MiniDot}
}

// Enabled reports whether the spinner animates.
func (s *Spinner) Enabled() bool {
	return s != nil && s.enabled
}

// Run executes task, animating label until it returns. The task's error
// is returned unchanged.
func (s *Spinner) Run(ctx context.Context, label string, task func(ctx context.Context) error) error {
	if !s.Enabled() {
		return task(ctx)
	}

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		return task(gctx)
	})

	g.Go(func() error {
		s.animate(done, label)
		return nil
	})

	return g.Wait()
}

func (s *Spinner) animate(done <-chan struct{}, label string) {
	fps := s.style.FPS
	if fps <= 0 {
		fps = time.Second / 10
	}
	ticker := time.NewTicker(fps)
	defer ticker.Stop()

	width := 0
	for i := 0; ; i++ {
		line := fmt.Sprintf("%s %s", s.style.Frames[i%len(s.style.Frames)], label)
		if n := len([]rune(line)); n > width {
			width = n
		}
		_, _ = fmt.Fprintf(s.out, "\r%s", line)

		select {
		case <-done:
			_, _ = fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", width))
			return
		case <-ticker.C:
		}
	}
}
