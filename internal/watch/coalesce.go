// Package watch turns kernel and session events into change signals for the
// scheduler.
package watch

import (
	"context"
	"slices"
	"time"
)

// Source names what raised a change signal.
type Source string

const (
	SourceDisplay Source = "display"
	SourcePower   Source = "power"
	SourceSession Source = "session"
)

// Signal is a batch of raw events from one source.
type Signal struct {
	Source Source
	Count  int
}

// Coalescer batches raw events that arrive within one window.
type Coalescer struct {
	window time.Duration
	in     chan Source
	out    chan Signal
}

// NewCoalescer returns a Coalescer. Run must be called to emit signals.
func NewCoalescer(window time.Duration) *Coalescer {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Coalescer{
		window: window,
		in:     make(chan Source, 64),
		out:    make(chan Signal, 8),
	}
}

// Notify records one raw event. It never blocks; events beyond the buffer
// are dropped since a flush is already pending.
func (c *Coalescer) Notify(src Source) {
	select {
	case c.in <- src:
	default:
	}
}

// Signals is closed when Run returns.
func (c *Coalescer) Signals() <-chan Signal {
	return c.out
}

// Run emits one Signal per source each time a window closes.
func (c *Coalescer) Run(ctx context.Context) {
	defer close(c.out)

	counts := map[Source]int{}
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case src := <-c.in:
			counts[src]++
			if fire == nil {
				timer = time.NewTimer(c.window)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			sources := make([]Source, 0, len(counts))
			for src := range counts {
				sources = append(sources, src)
			}
			slices.Sort(sources)
			for _, src := range sources {
				select {
				case c.out <- Signal{Source: src, Count: counts[src]}:
				case <-ctx.Done():
					return
				}
			}
			clear(counts)
		}
	}
}
