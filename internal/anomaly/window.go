package anomaly

import "gonum.org/v1/gonum/stat"

// rollingWindow is a bounded trailing window over one partition's signal
// values. Once full, adding a value evicts the oldest.
type rollingWindow struct {
	size   int
	values []float64
	index  int
	count  int
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{
		size:   size,
		values: make([]float64, size),
	}
}

func (w *rollingWindow) Add(value float64) {
	w.values[w.index] = value
	w.index = (w.index + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

func (w *rollingWindow) Values() []float64 {
	if w.count < w.size {
		return w.values[:w.count]
	}
	return w.values
}

// Stats returns the mean and sample standard deviation of the window
// contents. With fewer than two samples the deviation is 0, which forces
// the classifier to STABLE for that row.
func (w *rollingWindow) Stats() (mean, stddev float64) {
	vals := w.Values()
	if len(vals) == 0 {
		return 0, 0
	}
	mean = stat.Mean(vals, nil)
	if len(vals) < 2 {
		return mean, 0
	}
	return mean, stat.StdDev(vals, nil)
}
