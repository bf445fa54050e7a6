package inspect

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// FrameHistory keeps the most recent frame times in a ring.
type FrameHistory struct {
	frames []time.Duration
	next   int
	filled bool
}

func NewFrameHistory(size int) *FrameHistory {
	return &FrameHistory{frames: make([]time.Duration, max(size, 1))}
}

func (h *FrameHistory) Record(d time.Duration) {
	h.frames[h.next] = d
	h.next = (h.next + 1) % len(h.frames)
	if h.next == 0 {
		h.filled = true
	}
}

// Average returns the mean of the recorded frames, or 0 before the first one.
func (h *FrameHistory) Average() time.Duration {
	n := h.next
	if h.filled {
		n = len(h.frames)
	}
	if n == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range h.frames[:n] {
		total += d
	}
	return total / time.Duration(n)
}

// WriteSummary renders storage occupancy, singletons and, when history is not
// nil, the average frame time.
func (in *Inspector) WriteSummary(w io.Writer, history *FrameHistory) error {
	stats := in.storage.CollectStats()

	var b strings.Builder
	fmt.Fprintf(&b, "Total Entities: %d\n", stats.TotalEntityCount)
	fmt.Fprintf(&b, "Archetypes: %d\n", stats.ArchetypeCount)
	fmt.Fprintf(&b, "Singletons: %d\n", stats.SingletonCount)
	for _, singletonType := range stats.SingletonTypes {
		fmt.Fprintf(&b, "  - %s\n", singletonType)
	}
	if history != nil {
		if avg := history.Average(); avg > 0 {
			fmt.Fprintf(&b, "Avg Frame Time: %s (%.0f FPS)\n", avg, float64(time.Second)/float64(avg))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
