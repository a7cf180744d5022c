// Package engine runs the alert pipeline after a behavior evaluation or a
// weight record is saved: evaluate rules, drop repeats inside the cooldown,
// resolve recipients, dispatch notifications.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/recipients"
)

// Pipeline triggers, used as metric labels.
const (
	TriggerEvaluation = "evaluation"
	TriggerWeight     = "weight"
)

// SampleSource returns recent samples, newest first.
type SampleSource interface {
	FetchRecentSamples(ctx context.Context, subjectID string, metric models.Metric, limit int) ([]models.MetricSample, error)
}

// Dispatcher delivers alerts to their recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, deliveries []notifier.Delivery) notifier.DispatchReport
}

// Deps are the collaborators of an Engine. Dedup may be nil, in which case
// only the in-process cooldown applies.
type Deps struct {
	Samples      SampleSource
	Dedup        alerting.DedupStore
	Evaluator    *alerting.Evaluator
	Deduplicator *alerting.Deduplicator
	Resolver     recipients.Resolver
	Dispatcher   Dispatcher
}

func (d Deps) validate() error {
	switch {
	case d.Samples == nil:
		return fmt.Errorf("engine: sample source is required")
	case d.Evaluator == nil:
		return fmt.Errorf("engine: evaluator is required")
	case d.Deduplicator == nil:
		return fmt.Errorf("engine: deduplicator is required")
	case d.Resolver == nil:
		return fmt.Errorf("engine: resolver is required")
	case d.Dispatcher == nil:
		return fmt.Errorf("engine: dispatcher is required")
	}
	return nil
}

// Stats tracks engine statistics using atomic operations for lock-free access.
type Stats struct {
	Runs       atomic.Int64
	Candidates atomic.Int64
	Suppressed atomic.Int64
	Created    atomic.Int64
	Failed     atomic.Int64
	Panics     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Runs       int64 `json:"runs"`
	Candidates int64 `json:"candidates"`
	Suppressed int64 `json:"suppressed"`
	Created    int64 `json:"created"`
	Failed     int64 `json:"failed"`
	Panics     int64 `json:"panics"`
}

// Engine is the alert pipeline. It is safe for concurrent use; runs share
// nothing but the deduplicator's cache and the stores.
type Engine struct {
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger
	stats  Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine.
func New(deps Deps, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	e := &Engine{deps: deps, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() StatsSnapshot {
	return StatsSnapshot{
		Runs:       e.stats.Runs.Load(),
		Candidates: e.stats.Candidates.Load(),
		Suppressed: e.stats.Suppressed.Load(),
		Created:    e.stats.Created.Load(),
		Failed:     e.stats.Failed.Load(),
		Panics:     e.stats.Panics.Load(),
	}
}

// OnEvaluationSaved runs the pipeline for a behavior evaluation that has
// just been stored. It never fails: problems are reported in the result.
func (e *Engine) OnEvaluationSaved(ctx context.Context, ev models.BehaviorEvaluation, subject models.Subject, recorderID string) (report notifier.DispatchReport) {
	defer e.finish(TriggerEvaluation, subject.ID, time.Now(), &report)

	if ev.SubjectID == "" {
		ev.SubjectID = subject.ID
	}
	if ev.SubjectID != subject.ID {
		report.Errors = append(report.Errors, fmt.Sprintf("evaluation is for subject %q, not %q", ev.SubjectID, subject.ID))
		return report
	}
	if recorderID != "" {
		ev.RecorderID = recorderID
	}
	now := e.now()

	limit := e.deps.Evaluator.Options().HistoryLimit
	history := make(map[models.Metric]alerting.HistoryWindow, len(models.BehaviorMetrics))
	for _, m := range models.BehaviorMetrics {
		w, ok := e.history(ctx, subject.ID, m, limit)
		if ok {
			history[m] = w
		}
	}

	candidates, ruleErrs := e.deps.Evaluator.EvaluateBehavior(ev, subject, history, now)
	return e.deliver(ctx, subject, candidates, ruleErrs, now)
}

// OnWeightRecorded runs the pipeline for a weight sample that has just been
// stored.
func (e *Engine) OnWeightRecorded(ctx context.Context, sample models.MetricSample, subject models.Subject, recorderID string) (report notifier.DispatchReport) {
	defer e.finish(TriggerWeight, subject.ID, time.Now(), &report)

	if sample.SubjectID == "" {
		sample.SubjectID = subject.ID
	}
	if sample.SubjectID != subject.ID {
		report.Errors = append(report.Errors, fmt.Sprintf("sample is for subject %q, not %q", sample.SubjectID, subject.ID))
		return report
	}
	if sample.Metric == "" {
		sample.Metric = models.MetricWeight
	}
	if recorderID != "" {
		sample.RecorderID = recorderID
	}
	now := e.now()

	// One extra so the previous weighing is still there when the store
	// already holds this one.
	history, _ := e.history(ctx, subject.ID, models.MetricWeight, e.deps.Evaluator.Options().HistoryLimit+1)
	candidates, ruleErrs := e.deps.Evaluator.EvaluateWeight(sample, subject, history, now)
	return e.deliver(ctx, subject, candidates, ruleErrs, now)
}

// history fetches prior samples. A failed fetch is logged and treated as no
// history, so trend rules stay silent.
func (e *Engine) history(ctx context.Context, subjectID string, m models.Metric, limit int) (alerting.HistoryWindow, bool) {
	samples, err := e.deps.Samples.FetchRecentSamples(ctx, subjectID, m, limit)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("fetch_recent_samples").Inc()
		e.logger.Warn().Err(err).
			Str("subject_id", subjectID).
			Str("metric", string(m)).
			Msg("history unavailable, skipping trend rules")
		return alerting.HistoryWindow{}, false
	}
	return alerting.NewHistoryWindow(samples, alerting.NewestFirst), true
}

func (e *Engine) deliver(ctx context.Context, subject models.Subject, candidates []alerting.AlertEvent, ruleErrs []alerting.RuleError, now time.Time) notifier.DispatchReport {
	var ruleErrors []string
	for _, re := range ruleErrs {
		metrics.RuleErrorsTotal.WithLabelValues(string(re.Metric)).Inc()
		e.logger.Warn().Err(re.Err).
			Str("subject_id", subject.ID).
			Str("rule", re.Rule).
			Msg("rule skipped")
		ruleErrors = append(ruleErrors, re.Error())
	}

	pending := make(map[models.AlertKind]int, len(candidates))
	for _, c := range candidates {
		metrics.CandidatesTotal.WithLabelValues(string(c.Kind())).Inc()
		pending[c.Kind()]++
	}

	survivors := e.deps.Deduplicator.Filter(ctx, candidates, e.deps.Dedup, now)
	for _, s := range survivors {
		pending[s.Kind()]--
	}
	for kind, n := range pending {
		if n > 0 {
			metrics.SuppressedTotal.WithLabelValues(string(kind)).Add(float64(n))
		}
	}

	var (
		deliveries []notifier.Delivery
		errs       []string
	)
	for _, ev := range survivors {
		refs, err := e.deps.Resolver.RecipientsFor(ctx, subject, ev)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("subject_id", subject.ID).
				Str("kind", string(ev.Kind())).
				Msg("recipient lookup incomplete")
			errs = append(errs, fmt.Sprintf("%s: %v", ev.Kind(), err))
		}
		if len(refs) == 0 {
			continue
		}
		deliveries = append(deliveries, notifier.Delivery{Event: ev, Recipients: refs})
	}

	var report notifier.DispatchReport
	if len(deliveries) > 0 {
		report = e.deps.Dispatcher.Dispatch(ctx, deliveries)
	}
	report.Candidates = len(candidates)
	report.Suppressed = len(candidates) - len(survivors)
	report.RuleErrors = append(report.RuleErrors, ruleErrors...)
	report.Errors = append(report.Errors, errs...)
	return report
}

// finish records metrics for a run and turns a panic into a report error.
func (e *Engine) finish(trigger, subjectID string, start time.Time, report *notifier.DispatchReport) {
	if r := recover(); r != nil {
		e.stats.Panics.Add(1)
		metrics.PipelinePanicsTotal.Inc()
		e.logger.Error().
			Str("trigger", trigger).
			Str("subject_id", subjectID).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("alert pipeline panicked")
		report.Errors = append(report.Errors, fmt.Sprintf("pipeline panic: %v", r))
	}

	e.stats.Runs.Add(1)
	e.stats.Candidates.Add(int64(report.Candidates))
	e.stats.Suppressed.Add(int64(report.Suppressed))
	e.stats.Created.Add(int64(len(report.Created)))
	e.stats.Failed.Add(int64(len(report.Failed)))

	metrics.PipelineRunsTotal.WithLabelValues(trigger).Inc()
	metrics.PipelineRunDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())

	e.logger.Debug().
		Str("trigger", trigger).
		Str("subject_id", subjectID).
		Int("candidates", report.Candidates).
		Int("suppressed", report.Suppressed).
		Int("created", len(report.Created)).
		Int("failed", len(report.Failed)).
		Msg("alert pipeline finished")
}
