package rate

import "errors"

var ErrInvalidCapacity = errors.New("window capacity must be positive")

// IntervalWindow keeps the most recent inter-arrival intervals of a sample
// stream and estimates the arrival rate from them.
type IntervalWindow struct {
	intervals []float64
	head      int
	size      int
	last      float64
	started   bool
}

func NewIntervalWindow(capacity int) (*IntervalWindow, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	return &IntervalWindow{intervals: make([]float64, capacity)}, nil
}

// OnSampleArrived records a sample observed at timestamp, in seconds.
// Timestamps going backwards produce a zero interval.
func (w *IntervalWindow) OnSampleArrived(timestamp float64) {
	if !w.started {
		w.started = true
		w.last = timestamp

		return
	}

	delta := timestamp - w.last
	if delta < 0 {
		delta = 0
	}
	w.last = timestamp

	tail := (w.head + w.size) % len(w.intervals)
	w.intervals[tail] = delta

	if w.size < len(w.intervals) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.intervals)
	}
}

// OnEmgData forwards EMG events to OnSampleArrived, the payload is not
// inspected.
func (w *IntervalWindow) OnEmgData(timestamp float64, _ []int8) {
	w.OnSampleArrived(timestamp)
}

// Rate returns the number of retained intervals over their total duration.
// An empty window, or one spanning no time at all, reports 0.
func (w *IntervalWindow) Rate() float64 {
	if w.size == 0 {
		return 0.0
	}

	sum := 0.0
	for i := 0; i < w.size; i++ {
		sum += w.intervals[(w.head+i)%len(w.intervals)]
	}

	if sum <= 0 {
		return 0.0
	}

	return float64(w.size) / sum
}

// Intervals returns a copy of the retained intervals, oldest first.
func (w *IntervalWindow) Intervals() []float64 {
	out := make([]float64, w.size)
	for i := range out {
		out[i] = w.intervals[(w.head+i)%len(w.intervals)]
	}

	return out
}

func (w *IntervalWindow) Len() int {
	return w.size
}

func (w *IntervalWindow) Capacity() int {
	return len(w.intervals)
}

func (w *IntervalWindow) Reset() {
	w.head = 0
	w.size = 0
	w.last = 0
	w.started = false
}
