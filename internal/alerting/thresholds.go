package alerting

import (
	"fmt"
	"sync/atomic"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Limit is one side of a metric's bounds. A low limit fires when the value is
// at or below Value, a high limit when it is at or above Value.
type Limit struct {
	Value    float64          `yaml:"value"`
	Kind     models.AlertKind `yaml:"kind"`
	Severity models.Severity  `yaml:"severity"`
}

// Bounds are the alert-triggering limits for a metric.
type Bounds struct {
	Low  *Limit `yaml:"low,omitempty"`
	High *Limit `yaml:"high,omitempty"`
}

// Range is an inclusive numeric range.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Thresholds maps each measured attribute to its alert bounds.
type Thresholds struct {
	Metrics     map[models.Metric]Bounds   `yaml:"metrics"`
	IdealRanges map[models.SizeClass]Range `yaml:"ideal_ranges"`
}

// DefaultThresholds returns the built-in daycare thresholds.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		Metrics: map[models.Metric]Bounds{
			models.MetricAnxiety: {
				High: &Limit{Value: 8, Kind: models.KindAnxietyHigh, Severity: models.SeverityWarning},
			},
			models.MetricObedience: {
				Low:  &Limit{Value: 3, Kind: models.KindObedienceLow, Severity: models.SeverityWarning},
				High: &Limit{Value: 8, Kind: models.KindObedienceExcellent, Severity: models.SeverityPositive},
			},
			models.MetricEnergy: {
				High: &Limit{Value: 9, Kind: models.KindEnergyVeryHigh, Severity: models.SeverityWarning},
			},
			models.MetricSociability: {
				High: &Limit{Value: 8, Kind: models.KindSociabilityExcellent, Severity: models.SeverityPositive},
			},
		},
		IdealRanges: map[models.SizeClass]Range{
			models.SizeSmall:  {Min: 1, Max: 10},
			models.SizeMedium: {Min: 10, Max: 25},
			models.SizeLarge:  {Min: 25, Max: 45},
			models.SizeGiant:  {Min: 45, Max: 90},
		},
	}
}

// Bounds returns the bounds for a metric. ok is false when no rule applies.
func (t *Thresholds) Bounds(m models.Metric) (Bounds, bool) {
	if t == nil {
		return Bounds{}, false
	}
	b, ok := t.Metrics[m]
	return b, ok
}

// IdealRange returns the ideal weight range for a size class.
func (t *Thresholds) IdealRange(size models.SizeClass) (Range, bool) {
	if t == nil {
		return Range{}, false
	}
	r, ok := t.IdealRanges[size]
	return r, ok
}

// scoreKinds lists the kinds a behavioral limit may carry.
var scoreKinds = map[models.AlertKind]bool{
	models.KindAnxietyHigh:          true,
	models.KindObedienceLow:         true,
	models.KindObedienceExcellent:   true,
	models.KindEnergyVeryHigh:       true,
	models.KindSociabilityExcellent: true,
}

// Validate checks the thresholds for errors.
func (t *Thresholds) Validate() error {
	for m, b := range t.Metrics {
		if !m.IsBehavior() {
			return fmt.Errorf("metric %q: only behavioral metrics take score bounds", m)
		}
		if b.Low == nil && b.High == nil {
			return fmt.Errorf("metric %q: at least one of low or high is required", m)
		}
		for _, l := range []*Limit{b.Low, b.High} {
			if l == nil {
				continue
			}
			if err := l.validate(); err != nil {
				return fmt.Errorf("metric %q: %w", m, err)
			}
		}
		if b.Low != nil && b.High != nil && b.Low.Value >= b.High.Value {
			return fmt.Errorf("metric %q: low %v must be below high %v", m, b.Low.Value, b.High.Value)
		}
	}
	for size, r := range t.IdealRanges {
		if models.ParseSizeClass(string(size)) == "" {
			return fmt.Errorf("ideal range: unknown size class %q", size)
		}
		if r.Min <= 0 || r.Max <= r.Min {
			return fmt.Errorf("ideal range %q: need 0 < min < max, got [%v, %v]", size, r.Min, r.Max)
		}
	}
	return nil
}

func (l *Limit) validate() error {
	if l.Value < models.MinScore || l.Value > models.MaxScore {
		return fmt.Errorf("limit %v outside [%d, %d]", l.Value, models.MinScore, models.MaxScore)
	}
	if !scoreKinds[l.Kind] {
		return fmt.Errorf("invalid kind %q", l.Kind)
	}
	switch l.Severity {
	case models.SeverityInfo, models.SeverityPositive, models.SeverityWarning, models.SeverityCritical:
	case "":
		l.Severity = models.SeverityWarning
	default:
		return fmt.Errorf("invalid severity %q", l.Severity)
	}
	return nil
}

// ThresholdProvider supplies the thresholds currently in force.
type ThresholdProvider interface {
	Current() *Thresholds
}

// ThresholdSet holds thresholds that can be swapped at runtime.
type ThresholdSet struct {
	v atomic.Pointer[Thresholds]
}

// NewThresholdSet creates a set holding t, or the defaults when t is nil.
func NewThresholdSet(t *Thresholds) *ThresholdSet {
	if t == nil {
		t = DefaultThresholds()
	}
	s := &ThresholdSet{}
	s.v.Store(t)
	return s
}

// Current returns the active thresholds.
func (s *ThresholdSet) Current() *Thresholds {
	return s.v.Load()
}

// Replace validates t and makes it active.
func (s *ThresholdSet) Replace(t *Thresholds) error {
	if t == nil {
		return fmt.Errorf("thresholds are nil")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	s.v.Store(t)
	return nil
}
