package alerting

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// RuleError records a rule that could not run because its input was invalid.
// It only suppresses that rule's candidate.
type RuleError struct {
	Rule   string        `json:"rule"`
	Metric models.Metric `json:"metric"`
	Err    error         `json:"-"`
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %s (%s): %v", e.Rule, e.Metric, e.Err)
}

func (e RuleError) Unwrap() error { return e.Err }

// Evaluator applies threshold and trend rules to fresh samples. It has no
// side effects beyond logging.
type Evaluator struct {
	thresholds ThresholdProvider
	opts       RuleOptions
	rules      map[models.Metric][]Rule
	logger     zerolog.Logger
}

// NewEvaluator creates an evaluator with the built-in rule set.
func NewEvaluator(thresholds ThresholdProvider, opts RuleOptions, logger zerolog.Logger) *Evaluator {
	if thresholds == nil {
		thresholds = NewThresholdSet(nil)
	}
	opts = opts.WithDefaults()

	rules := make(map[models.Metric][]Rule)
	for _, m := range models.BehaviorMetrics {
		rules[m] = []Rule{ScoreThresholdRule(m)}
	}
	rules[models.MetricWeight] = []Rule{WeightRangeRule(), WeightChangeRule(opts)}

	return &Evaluator{
		thresholds: thresholds,
		opts:       opts,
		rules:      rules,
		logger:     logger,
	}
}

// Options returns the effective rule options.
func (e *Evaluator) Options() RuleOptions { return e.opts }

// EvaluateSample runs every rule registered for the sample's metric. For
// behavioral metrics at most one candidate is returned: the one with the
// highest severity.
func (e *Evaluator) EvaluateSample(sample models.MetricSample, subject models.Subject, history HistoryWindow, now time.Time) ([]AlertEvent, []RuleError) {
	rules, ok := e.rules[sample.Metric]
	if !ok {
		e.logger.Warn().
			Str("metric", string(sample.Metric)).
			Str("subject_id", subject.ID).
			Msg("no rules for metric, skipping")
		return nil, nil
	}

	in := RuleInput{
		Sample:     sample,
		Subject:    subject,
		History:    validOnly(history.Chronological()),
		Thresholds: e.thresholds.Current(),
		Now:        now,
	}

	var (
		events []AlertEvent
		errs   []RuleError
	)
	for _, r := range rules {
		ev, err := r.Apply(in)
		if err != nil {
			errs = append(errs, RuleError{Rule: r.Name, Metric: sample.Metric, Err: err})
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	if sample.Metric.IsBehavior() && len(events) > 1 {
		events = []AlertEvent{highestSeverity(events)}
	}
	return events, errs
}

// EvaluateBehavior checks each of the four scores of an evaluation and the
// behavior trend across history. history holds prior samples per metric and
// may or may not already contain the evaluation itself.
func (e *Evaluator) EvaluateBehavior(ev models.BehaviorEvaluation, subject models.Subject, history map[models.Metric]HistoryWindow, now time.Time) ([]AlertEvent, []RuleError) {
	var (
		events []AlertEvent
		errs   []RuleError
	)
	windows := make(map[models.Metric]ChronologicalWindow, len(models.BehaviorMetrics))

	for _, s := range ev.Samples() {
		h := history[s.Metric]
		got, rerrs := e.EvaluateSample(s, subject, h, now)
		events = append(events, got...)
		errs = append(errs, rerrs...)

		if s.Validate() != nil {
			continue
		}
		windows[s.Metric] = validOnly(h.Chronological()).Without(s).WithLatest(s)
	}

	if trend := e.behaviorTrendEvent(windows, subject, ev.Origin, now); trend != nil {
		events = append(events, trend)
	}
	return events, errs
}

// EvaluateWeight checks a weight sample against the ideal range and the
// previous weighing.
func (e *Evaluator) EvaluateWeight(sample models.MetricSample, subject models.Subject, history HistoryWindow, now time.Time) ([]AlertEvent, []RuleError) {
	if sample.Metric == "" {
		sample.Metric = models.MetricWeight
	}
	if sample.Metric != models.MetricWeight {
		return nil, []RuleError{{
			Rule:   "weight",
			Metric: sample.Metric,
			Err:    fmt.Errorf("expected a weight sample, got %q", sample.Metric),
		}}
	}
	return e.EvaluateSample(sample, subject, history, now)
}

func (e *Evaluator) behaviorTrendEvent(windows map[models.Metric]ChronologicalWindow, subject models.Subject, origin models.Location, now time.Time) AlertEvent {
	sum, ok := behaviorTrend(windows, e.opts)
	if !ok {
		return nil
	}
	net := len(sum.Improved) - len(sum.Declined)
	h := EventHeader{
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Origin:      origin,
		GeneratedAt: now,
	}
	switch {
	case net >= e.opts.TrendNetChange:
		h.Severity = models.SeverityPositive
		return BehaviorImproving{EventHeader: h, BehaviorTrendSummary: sum}
	case net <= -e.opts.TrendNetChange:
		h.Severity = models.SeverityWarning
		return BehaviorDeclining{EventHeader: h, BehaviorTrendSummary: sum}
	}
	return nil
}

// highestSeverity returns the first event with the highest severity rank.
func highestSeverity(events []AlertEvent) AlertEvent {
	best := events[0]
	for _, ev := range events[1:] {
		if Severity(ev).Rank() > Severity(best).Rank() {
			best = ev
		}
	}
	return best
}

// validOnly drops malformed samples; they count as missing history.
func validOnly(w ChronologicalWindow) ChronologicalWindow {
	out := make([]models.MetricSample, 0, len(w.samples))
	for _, s := range w.samples {
		if s.Validate() == nil {
			out = append(out, s)
		}
	}
	return ChronologicalWindow{samples: out}
}
