package alerting

import (
	"fmt"
	"math"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// RuleInput is everything a rule may look at. Rules are pure functions of it.
type RuleInput struct {
	Sample     models.MetricSample
	Subject    models.Subject
	History    ChronologicalWindow // prior samples for Sample.Metric, oldest first
	Thresholds *Thresholds
	Now        time.Time
}

func (in RuleInput) header(sev models.Severity) EventHeader {
	return EventHeader{
		SubjectID:   in.Subject.ID,
		SubjectName: in.Subject.Name,
		Severity:    sev,
		Origin:      in.Sample.Origin,
		GeneratedAt: in.Now,
	}
}

// Rule turns a RuleInput into at most one candidate. A nil event with a nil
// error means the rule did not fire.
type Rule struct {
	Name   string
	Metric models.Metric
	Apply  func(in RuleInput) (AlertEvent, error)
}

// RuleOptions are the tunable constants used by the built-in rules.
type RuleOptions struct {
	// SignificantChangePercent is the exclusive weight-change limit.
	SignificantChangePercent float64 `yaml:"significant_change_percent"`
	// CriticalChangePercent escalates a significant change to critical.
	CriticalChangePercent float64 `yaml:"critical_change_percent"`
	WeightEpsilon         float64 `yaml:"weight_epsilon"`
	ScoreEpsilon          float64 `yaml:"score_epsilon"`
	// MinTrendSamples is the minimum window length for behavior trends.
	MinTrendSamples int `yaml:"min_trend_samples"`
	// TrendNetChange is how many more metrics must improve than decline (or
	// the reverse) before a behavior trend alert fires.
	TrendNetChange int `yaml:"trend_net_change"`
	// HistoryLimit is how many prior samples are fetched per metric.
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultRuleOptions returns the default rule constants.
func DefaultRuleOptions() RuleOptions {
	return RuleOptions{
		SignificantChangePercent: 15,
		CriticalChangePercent:    25,
		WeightEpsilon:            DefaultWeightEpsilon,
		ScoreEpsilon:             DefaultScoreEpsilon,
		MinTrendSamples:          3,
		TrendNetChange:           2,
		HistoryLimit:             10,
	}
}

// WithDefaults fills unset fields from DefaultRuleOptions.
func (o RuleOptions) WithDefaults() RuleOptions {
	d := DefaultRuleOptions()
	if o.SignificantChangePercent <= 0 {
		o.SignificantChangePercent = d.SignificantChangePercent
	}
	if o.CriticalChangePercent <= 0 {
		o.CriticalChangePercent = d.CriticalChangePercent
	}
	if o.WeightEpsilon < 0 {
		o.WeightEpsilon = d.WeightEpsilon
	}
	if o.ScoreEpsilon < 0 {
		o.ScoreEpsilon = d.ScoreEpsilon
	}
	if o.MinTrendSamples < 2 {
		o.MinTrendSamples = d.MinTrendSamples
	}
	if o.TrendNetChange <= 0 {
		o.TrendNetChange = d.TrendNetChange
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	return o
}

// ScoreThresholdRule checks a behavioral score against the metric's bounds.
// When both limits are crossed the higher severity wins.
func ScoreThresholdRule(metric models.Metric) Rule {
	return Rule{
		Name:   string(metric) + "_threshold",
		Metric: metric,
		Apply: func(in RuleInput) (AlertEvent, error) {
			if err := in.Sample.Validate(); err != nil {
				return nil, err
			}
			b, ok := in.Thresholds.Bounds(metric)
			if !ok {
				return nil, nil
			}
			v := in.Sample.Value

			var hit *Limit
			if b.High != nil && v >= b.High.Value {
				hit = b.High
			}
			if b.Low != nil && v <= b.Low.Value {
				if hit == nil || b.Low.Severity.Rank() > hit.Severity.Rank() {
					hit = b.Low
				}
			}
			if hit == nil {
				return nil, nil
			}
			ev, ok := newScoreEvent(hit.Kind, in.header(hit.Severity), ScoreReading{Score: v, Limit: hit.Value})
			if !ok {
				return nil, fmt.Errorf("no alert type for kind %q", hit.Kind)
			}
			return ev, nil
		},
	}
}

// WeightRangeRule fires when a weight lies outside the ideal range for the
// subject's size class.
func WeightRangeRule() Rule {
	return Rule{
		Name:   "weight_ideal_range",
		Metric: models.MetricWeight,
		Apply: func(in RuleInput) (AlertEvent, error) {
			if err := in.Sample.Validate(); err != nil {
				return nil, err
			}
			r, ok := in.Thresholds.IdealRange(in.Subject.SizeClass)
			if !ok || r.Contains(in.Sample.Value) {
				return nil, nil
			}
			return WeightOutOfIdealRange{
				EventHeader: in.header(models.SeverityWarning),
				Weight:      in.Sample.Value,
				SizeClass:   in.Subject.SizeClass,
				Ideal:       r,
			}, nil
		},
	}
}

// WeightChangeRule fires when the weight moved more than the significant
// percentage since the immediately preceding weighing.
func WeightChangeRule(opts RuleOptions) Rule {
	opts = opts.WithDefaults()
	calc := TrendCalculator{Epsilon: opts.WeightEpsilon}
	return Rule{
		Name:   "weight_significant_change",
		Metric: models.MetricWeight,
		Apply: func(in RuleInput) (AlertEvent, error) {
			if err := in.Sample.Validate(); err != nil {
				return nil, err
			}
			w := in.History.Without(in.Sample).WithLatest(in.Sample)
			if w.Len() < 2 {
				return nil, nil
			}
			prev := w.samples[w.Len()-2]
			if err := prev.Validate(); err != nil {
				// A corrupt prior row is missing history, not an input error.
				return nil, nil
			}
			t := calc.SinceLast(w)
			if t.PercentDelta == nil || !t.ExceedsPercent(opts.SignificantChangePercent) {
				return nil, nil
			}
			sev := models.SeverityWarning
			if t.ExceedsPercent(opts.CriticalChangePercent) {
				sev = models.SeverityCritical
			}
			// A significant change is never stable, even when it is smaller
			// than the weight epsilon.
			dir := DirectionRising
			if t.To < t.From {
				dir = DirectionFalling
			}
			return WeightSignificantChange{
				EventHeader:  in.header(sev),
				Previous:     t.From,
				Current:      t.To,
				PercentDelta: round1(*t.PercentDelta),
				Direction:    dir,
			}, nil
		},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// improvementSign says which direction is good for a behavioral metric. Energy
// has no good direction and is left out of behavior trends.
var improvementSign = map[models.Metric]float64{
	models.MetricObedience:   1,
	models.MetricSociability: 1,
	models.MetricAnxiety:     -1,
}

// behaviorTrend summarises how the tracked metrics moved over their windows.
// windows must already contain the newest evaluation.
func behaviorTrend(windows map[models.Metric]ChronologicalWindow, opts RuleOptions) (BehaviorTrendSummary, bool) {
	calc := TrendCalculator{Epsilon: opts.ScoreEpsilon}
	var sum BehaviorTrendSummary
	considered := 0
	for _, m := range models.BehaviorMetrics {
		sign, tracked := improvementSign[m]
		if !tracked {
			continue
		}
		w, ok := windows[m]
		if !ok || w.Len() < opts.MinTrendSamples {
			continue
		}
		considered++
		if w.Len() > sum.Samples {
			sum.Samples = w.Len()
		}
		t := calc.OverWindow(w)
		switch {
		case t.Direction == DirectionStable:
		case (t.AbsoluteDelta > 0) == (sign > 0):
			sum.Improved = append(sum.Improved, m)
		default:
			sum.Declined = append(sum.Declined, m)
		}
	}
	return sum, considered > 0
}
