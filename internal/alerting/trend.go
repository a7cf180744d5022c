package alerting

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Order is the time ordering of samples in a HistoryWindow.
type Order int

const (
	// OldestFirst orders samples by ascending time.
	OldestFirst Order = iota
	// NewestFirst orders samples by descending time, as most stores return them.
	NewestFirst
)

func (o Order) String() string {
	if o == NewestFirst {
		return "newest_first"
	}
	return "oldest_first"
}

// HistoryWindow is a time-ordered run of samples for one subject and metric.
// The ordering is part of the value and never inferred from timestamps.
type HistoryWindow struct {
	order   Order
	samples []models.MetricSample
}

// NewHistoryWindow wraps samples that are already in the given order.
func NewHistoryWindow(samples []models.MetricSample, order Order) HistoryWindow {
	cp := make([]models.MetricSample, len(samples))
	copy(cp, samples)
	return HistoryWindow{order: order, samples: cp}
}

// Order returns the window's ordering tag.
func (w HistoryWindow) Order() Order { return w.order }

// Len returns the number of samples in the window.
func (w HistoryWindow) Len() int { return len(w.samples) }

// Chronological converts the window to the canonical oldest-first form.
func (w HistoryWindow) Chronological() ChronologicalWindow {
	out := make([]models.MetricSample, len(w.samples))
	if w.order == NewestFirst {
		for i, s := range w.samples {
			out[len(out)-1-i] = s
		}
	} else {
		copy(out, w.samples)
	}
	return ChronologicalWindow{samples: out}
}

// ChronologicalWindow is an oldest-first window, the only form trend
// computations accept.
type ChronologicalWindow struct {
	samples []models.MetricSample
}

// Len returns the number of samples in the window.
func (c ChronologicalWindow) Len() int { return len(c.samples) }

// Samples returns a copy of the samples, oldest first.
func (c ChronologicalWindow) Samples() []models.MetricSample {
	return append([]models.MetricSample(nil), c.samples...)
}

// Latest returns the newest sample.
func (c ChronologicalWindow) Latest() (models.MetricSample, bool) {
	if len(c.samples) == 0 {
		return models.MetricSample{}, false
	}
	return c.samples[len(c.samples)-1], true
}

// WithLatest returns the window with s appended as the newest sample, unless
// the window already ends with it.
func (c ChronologicalWindow) WithLatest(s models.MetricSample) ChronologicalWindow {
	if last, ok := c.Latest(); ok && sameSample(last, s) {
		return c
	}
	out := make([]models.MetricSample, len(c.samples), len(c.samples)+1)
	copy(out, c.samples)
	return ChronologicalWindow{samples: append(out, s)}
}

// Without returns the window minus any sample equal to s. Used to separate the
// prior history from a newest sample a store may already have returned.
func (c ChronologicalWindow) Without(s models.MetricSample) ChronologicalWindow {
	out := make([]models.MetricSample, 0, len(c.samples))
	for _, x := range c.samples {
		if sameSample(x, s) {
			continue
		}
		out = append(out, x)
	}
	return ChronologicalWindow{samples: out}
}

func sameSample(a, b models.MetricSample) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.RecordedAt.Equal(b.RecordedAt) && a.Value == b.Value && a.Metric == b.Metric
}

// Direction is the direction of change of a metric.
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
)

// Trend describes the change between a reference sample and the latest one.
type Trend struct {
	Direction     Direction `json:"direction"`
	From          float64   `json:"from"`
	To            float64   `json:"to"`
	AbsoluteDelta float64   `json:"absolute_delta"`
	// PercentDelta is nil when the reference value is zero or there is no
	// reference sample.
	PercentDelta *float64 `json:"percent_delta"`
	Samples      int      `json:"samples"`
}

// TrendCalculator computes trends over chronological windows.
type TrendCalculator struct {
	// Epsilon is the delta magnitude under which a change counts as stable.
	Epsilon float64
}

// Default trend epsilons.
const (
	DefaultWeightEpsilon = 0.5
	DefaultScoreEpsilon  = 0
)

// OverWindow compares the latest sample with the oldest one in the window.
func (tc TrendCalculator) OverWindow(w ChronologicalWindow) Trend {
	n := len(w.samples)
	if n == 0 {
		return Trend{Direction: DirectionStable}
	}
	return tc.between(w.samples[0].Value, w.samples[n-1].Value, n)
}

// SinceLast compares the latest sample with the one immediately before it.
func (tc TrendCalculator) SinceLast(w ChronologicalWindow) Trend {
	n := len(w.samples)
	if n == 0 {
		return Trend{Direction: DirectionStable}
	}
	if n == 1 {
		return tc.between(w.samples[0].Value, w.samples[0].Value, 1)
	}
	return tc.between(w.samples[n-2].Value, w.samples[n-1].Value, n)
}

func (tc TrendCalculator) between(from, to float64, n int) Trend {
	t := Trend{From: from, To: to, Samples: n}
	if n < 2 {
		t.Direction = DirectionStable
		return t
	}
	delta := to - from
	t.AbsoluteDelta = delta
	if from != 0 {
		pct := delta / math.Abs(from) * 100
		t.PercentDelta = &pct
	}
	switch {
	case delta == 0 || math.Abs(delta) < tc.Epsilon:
		t.Direction = DirectionStable
	case delta > 0:
		t.Direction = DirectionRising
	default:
		t.Direction = DirectionFalling
	}
	return t
}

// percentPlaces is the decimal precision readings are compared at. Weights
// are recorded to the gram.
const percentPlaces = 3

// ExceedsPercent reports whether the trend's relative change is strictly
// greater than pct percent. Both readings are compared as decimals at a fixed
// precision, so a change of exactly pct never fires.
func (t Trend) ExceedsPercent(pct float64) bool {
	if t.Samples < 2 || t.From == 0 {
		return false
	}
	from := decimal.NewFromFloat(t.From).Round(percentPlaces)
	to := decimal.NewFromFloat(t.To).Round(percentPlaces)
	if from.IsZero() {
		return false
	}
	delta := to.Sub(from).Abs().Mul(decimal.NewFromInt(100))
	return delta.GreaterThan(decimal.NewFromFloat(pct).Mul(from.Abs()))
}
