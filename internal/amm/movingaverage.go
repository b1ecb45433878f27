package amm

import "fmt"

// MovingAverageTracker computes a trailing arithmetic mean over a fixed
// window of samples. Updates are O(1): a running sum is maintained instead
// of re-summing the window, and the buffer is recycled as a ring.
//
// The mean is always taken over however many samples have been seen so far,
// never zero-padded: after 3 updates on a capacity-50 tracker, Value is the
// mean of those 3 samples.
type MovingAverageTracker struct {
	buffer     []float64
	writeIndex int
	filled     bool
	runningSum float64
}

// NewMovingAverageTracker creates a tracker with the given window size.
// A capacity below 1 is a configuration error and fails construction;
// callers are expected to validate window sizes before building trackers.
func NewMovingAverageTracker(capacity int) (*MovingAverageTracker, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("moving average capacity must be >= 1, got %d", capacity)
	}
	return &MovingAverageTracker{
		buffer: make([]float64, capacity),
	}, nil
}

// Update appends a sample, evicting the oldest once the window is full,
// and returns the new mean.
func (m *MovingAverageTracker) Update(sample float64) float64 {
	if m.filled {
		m.runningSum -= m.buffer[m.writeIndex]
	}
	m.buffer[m.writeIndex] = sample
	m.runningSum += sample

	m.writeIndex++
	if m.writeIndex == len(m.buffer) {
		m.writeIndex = 0
		m.filled = true
	}

	return m.Value()
}

// Value returns the current mean without mutating state. An empty tracker
// returns 0.
func (m *MovingAverageTracker) Value() float64 {
	count := m.Count()
	if count == 0 {
		return 0
	}
	return m.runningSum / float64(count)
}

// Count returns the number of samples currently contributing to the mean.
func (m *MovingAverageTracker) Count() int {
	if m.filled {
		return len(m.buffer)
	}
	return m.writeIndex
}

// Capacity returns the window size.
func (m *MovingAverageTracker) Capacity() int {
	return len(m.buffer)
}

// Full reports whether the window has wrapped at least once.
func (m *MovingAverageTracker) Full() bool {
	return m.filled
}
