package engine

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// MetricTrend is the dashboard view of one metric's recent history.
type MetricTrend struct {
	Metric    models.Metric        `json:"metric"`
	Latest    *models.MetricSample `json:"latest,omitempty"`
	Window    alerting.Trend       `json:"window"`
	SinceLast alerting.Trend       `json:"since_last"`
}

// SubjectTrends groups the trends of every metric of a subject.
type SubjectTrends struct {
	SubjectID string        `json:"subject_id"`
	Metrics   []MetricTrend `json:"metrics"`
}

// Trends computes weight and behavior trends over the configured history
// window. Unlike the pipeline entry points it returns store errors.
func (e *Engine) Trends(ctx context.Context, subjectID string) (SubjectTrends, error) {
	opts := e.deps.Evaluator.Options()
	out := SubjectTrends{SubjectID: subjectID}

	metricsInOrder := append([]models.Metric{models.MetricWeight}, models.BehaviorMetrics...)
	for _, m := range metricsInOrder {
		samples, err := e.deps.Samples.FetchRecentSamples(ctx, subjectID, m, opts.HistoryLimit)
		if err != nil {
			return SubjectTrends{}, fmt.Errorf("fetch %s history: %w", m, err)
		}
		w := alerting.NewHistoryWindow(samples, alerting.NewestFirst).Chronological()

		calc := alerting.TrendCalculator{Epsilon: opts.ScoreEpsilon}
		if m == models.MetricWeight {
			calc.Epsilon = opts.WeightEpsilon
		}
		mt := MetricTrend{Metric: m, Window: calc.OverWindow(w), SinceLast: calc.SinceLast(w)}
		if latest, ok := w.Latest(); ok {
			mt.Latest = &latest
		}
		out.Metrics = append(out.Metrics, mt)
	}
	return out, nil
}
