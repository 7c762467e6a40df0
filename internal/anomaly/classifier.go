// Package anomaly implements the two statistical engines of the detector:
// the windowed per-time-of-week classifier and the sustained-anomaly filter
// that promotes repeated anomalous slots into cell-level anomalies.
package anomaly

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// partitionKey groups observations that share a cell and a time-of-week
// slot. Rolling baselines are computed within one key only, so a Monday
// 09:00 row is compared against previous Mondays at 09:00 rather than the
// hours immediately before it. This is what lets the detector tell a real
// anomaly from an ordinary diurnal or weekly swing.
type partitionKey struct {
	CellID  string
	Weekday time.Weekday
	Hour    int
}

// Classifier labels each observation's CS and data signals against the
// rolling baseline of its (cell, weekday, hour) partition.
type Classifier struct {
	// CSMultiplier and DataMultiplier scale the stddev band for the two
	// signals independently.
	CSMultiplier   float64
	DataMultiplier float64
	// Window is the number of trailing same-time-of-week samples in the
	// baseline, including the row under classification.
	Window int
	// Workers bounds the partition fan-out; zero means GOMAXPROCS.
	Workers int
}

// NewClassifier returns a classifier with the given thresholds.
func NewClassifier(csMultiplier, dataMultiplier float64, window int) *Classifier {
	return &Classifier{
		CSMultiplier:   csMultiplier,
		DataMultiplier: dataMultiplier,
		Window:         window,
	}
}

// labelValue thresholds one value against its window statistics. Equality
// at either band edge is STABLE; zero or undefined deviation collapses the
// band so the row can only be STABLE.
func labelValue(value, mean, stddev, multiplier float64) telemetry.Label {
	switch {
	case value > mean+multiplier*stddev:
		return telemetry.LabelIncrease
	case value < mean-multiplier*stddev:
		return telemetry.LabelDegradation
	default:
		return telemetry.LabelStable
	}
}

// Classify computes rolling statistics and labels for every observation.
// Partitions are processed concurrently; within a partition rows are
// ordered by timestamp, which is the only ordering the algorithm needs.
// The result is sorted by (cell, timestamp).
func (c *Classifier) Classify(observations []telemetry.TrafficObservation) ([]telemetry.ClassifiedObservation, error) {
	if c.Window < 1 {
		return nil, fmt.Errorf("classification window must be >= 1, got %d", c.Window)
	}

	partitions := make(map[partitionKey][]telemetry.TrafficObservation)
	for _, obs := range observations {
		key := partitionKey{
			CellID:  obs.CellID,
			Weekday: obs.Timestamp.Weekday(),
			Hour:    obs.Timestamp.Hour(),
		}
		partitions[key] = append(partitions[key], obs)
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	jobs := make(chan []telemetry.TrafficObservation)
	results := make(chan []telemetry.ClassifiedObservation)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rows := range jobs {
				results <- c.classifyPartition(rows)
			}
		}()
	}

	go func() {
		for _, rows := range partitions {
			jobs <- rows
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	classified := make([]telemetry.ClassifiedObservation, 0, len(observations))
	for batch := range results {
		classified = append(classified, batch...)
	}

	sort.Slice(classified, func(i, j int) bool {
		if classified[i].CellID != classified[j].CellID {
			return classified[i].CellID < classified[j].CellID
		}
		return classified[i].Timestamp.Before(classified[j].Timestamp)
	})

	return classified, nil
}

// classifyPartition walks one partition in timestamp order, feeding the
// trailing windows and labelling each row against the statistics that
// include the row itself.
func (c *Classifier) classifyPartition(rows []telemetry.TrafficObservation) []telemetry.ClassifiedObservation {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	csWindow := newRollingWindow(c.Window)
	dataWindow := newRollingWindow(c.Window)

	out := make([]telemetry.ClassifiedObservation, 0, len(rows))
	for _, obs := range rows {
		csWindow.Add(obs.TrafficCS)
		dataWindow.Add(obs.TrafficData)

		csMean, csStddev := csWindow.Stats()
		dataMean, dataStddev := dataWindow.Stats()

		out = append(out, telemetry.ClassifiedObservation{
			TrafficObservation: obs,
			CSRollingMean:      csMean,
			CSRollingStddev:    csStddev,
			DataRollingMean:    dataMean,
			DataRollingStddev:  dataStddev,
			CSLabel:            labelValue(obs.TrafficCS, csMean, csStddev, c.CSMultiplier),
			DataLabel:          labelValue(obs.TrafficData, dataMean, dataStddev, c.DataMultiplier),
		})
	}
	return out
}
