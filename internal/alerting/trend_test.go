package alerting

import (
	"math"
	"testing"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func weights(vals ...float64) []models.MetricSample {
	out := make([]models.MetricSample, len(vals))
	for i, v := range vals {
		out[i] = models.MetricSample{
			SubjectID:  "dog-1",
			Metric:     models.MetricWeight,
			Value:      v,
			RecordedAt: baseTime.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func TestTrendSingleSample(t *testing.T) {
	w := NewHistoryWindow(weights(20), OldestFirst).Chronological()
	calc := TrendCalculator{Epsilon: DefaultWeightEpsilon}

	for name, tr := range map[string]Trend{"over window": calc.OverWindow(w), "since last": calc.SinceLast(w)} {
		if tr.Direction != DirectionStable {
			t.Errorf("%s: expected stable, got %s", name, tr.Direction)
		}
		if tr.AbsoluteDelta != 0 {
			t.Errorf("%s: expected delta 0, got %v", name, tr.AbsoluteDelta)
		}
		if tr.PercentDelta != nil {
			t.Errorf("%s: expected nil percent, got %v", name, *tr.PercentDelta)
		}
	}
}

func TestTrendEmptyWindow(t *testing.T) {
	tr := TrendCalculator{}.OverWindow(ChronologicalWindow{})
	if tr.Direction != DirectionStable || tr.PercentDelta != nil {
		t.Errorf("expected stable trend with nil percent, got %+v", tr)
	}
}

func TestTrendZeroReference(t *testing.T) {
	samples := []models.MetricSample{{Value: 0, RecordedAt: baseTime}, {Value: 4, RecordedAt: baseTime.Add(time.Hour)}}
	tr := TrendCalculator{}.OverWindow(NewHistoryWindow(samples, OldestFirst).Chronological())
	if tr.PercentDelta != nil {
		t.Errorf("expected nil percent for zero reference, got %v", *tr.PercentDelta)
	}
	if tr.Direction != DirectionRising || tr.AbsoluteDelta != 4 {
		t.Errorf("expected rising by 4, got %+v", tr)
	}
	if tr.ExceedsPercent(1) {
		t.Error("zero reference must never exceed a percentage")
	}
}

func TestTrendDirectionEpsilon(t *testing.T) {
	tests := []struct {
		name    string
		from    float64
		to      float64
		epsilon float64
		want    Direction
	}{
		{"inside weight epsilon", 20, 20.3, DefaultWeightEpsilon, DirectionStable},
		{"at weight epsilon", 20, 20.5, DefaultWeightEpsilon, DirectionRising},
		{"falling", 20, 18, DefaultWeightEpsilon, DirectionFalling},
		{"score unchanged", 5, 5, DefaultScoreEpsilon, DirectionStable},
		{"score up one", 5, 6, DefaultScoreEpsilon, DirectionRising},
		{"score down one", 5, 4, DefaultScoreEpsilon, DirectionFalling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewHistoryWindow(weights(tt.from, tt.to), OldestFirst).Chronological()
			got := TrendCalculator{Epsilon: tt.epsilon}.SinceLast(w)
			if got.Direction != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Direction)
			}
		})
	}
}

func TestTrendOverWindowVersusSinceLast(t *testing.T) {
	// Stored newest first, as the stores return history.
	w := NewHistoryWindow(weights(23.5, 20.1, 20.0), NewestFirst).Chronological()
	calc := TrendCalculator{Epsilon: DefaultWeightEpsilon}

	// The ordering tag decides, not the timestamps.
	if latest, _ := w.Latest(); latest.Value != 23.5 {
		t.Fatalf("expected latest 23.5, got %v", latest.Value)
	}

	w = NewHistoryWindow(weights(20.0, 20.1, 23.5), OldestFirst).Chronological()
	over := calc.OverWindow(w)
	last := calc.SinceLast(w)

	if over.From != 20.0 || over.To != 23.5 {
		t.Errorf("over window: expected 20.0 -> 23.5, got %v -> %v", over.From, over.To)
	}
	if last.From != 20.1 || last.To != 23.5 {
		t.Errorf("since last: expected 20.1 -> 23.5, got %v -> %v", last.From, last.To)
	}
	if over.Direction != DirectionRising {
		t.Errorf("expected rising over window, got %s", over.Direction)
	}
	if last.PercentDelta == nil || math.Abs(*last.PercentDelta-16.915) > 0.01 {
		t.Errorf("expected ~16.9%% since last, got %v", last.PercentDelta)
	}
}

func TestHistoryWindowOrdering(t *testing.T) {
	newest := NewHistoryWindow(weights(3, 2, 1), NewestFirst)
	if newest.Order() != NewestFirst || newest.Len() != 3 {
		t.Fatalf("unexpected window %v/%d", newest.Order(), newest.Len())
	}
	got := newest.Chronological().Samples()
	want := []float64{1, 2, 3}
	for i, s := range got {
		if s.Value != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], s.Value)
		}
	}

	oldest := NewHistoryWindow(weights(1, 2, 3), OldestFirst).Chronological().Samples()
	for i, s := range oldest {
		if s.Value != want[i] {
			t.Errorf("oldest-first index %d: expected %v, got %v", i, want[i], s.Value)
		}
	}
}

func TestChronologicalWithLatest(t *testing.T) {
	samples := weights(20, 21)
	w := NewHistoryWindow(samples, OldestFirst).Chronological()

	if got := w.WithLatest(samples[1]).Len(); got != 2 {
		t.Errorf("expected sample already present to be kept once, got len %d", got)
	}

	next := models.MetricSample{Metric: models.MetricWeight, Value: 22, RecordedAt: baseTime.Add(72 * time.Hour)}
	if got := w.WithLatest(next).Len(); got != 3 {
		t.Errorf("expected new sample appended, got len %d", got)
	}
	if w.Len() != 2 {
		t.Error("WithLatest must not modify the receiver")
	}

	if got := w.Without(samples[1]).Len(); got != 1 {
		t.Errorf("expected Without to drop the sample, got len %d", got)
	}
}

func TestTrendIdempotent(t *testing.T) {
	w := NewHistoryWindow(weights(10, 12, 11, 15), OldestFirst).Chronological()
	calc := TrendCalculator{Epsilon: DefaultWeightEpsilon}

	a, b := calc.OverWindow(w), calc.OverWindow(w)
	if a.Direction != b.Direction || a.AbsoluteDelta != b.AbsoluteDelta || *a.PercentDelta != *b.PercentDelta {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestExceedsPercentBoundary(t *testing.T) {
	tests := []struct {
		from, to float64
		want     bool
	}{
		{20, 23, false},   // exactly +15%
		{20, 17, false},   // exactly -15%
		{20, 23.01, true}, // just over
		{20, 16.9, true},
		{100, 114.9, false},
		{14.0, 16.1, false},
		{24.0, 27.6, false},
		{12.0, 13.8, false},
		{12.0, 10.2, false},
		{14.0, 16.101, true},
	}
	calc := TrendCalculator{Epsilon: DefaultWeightEpsilon}
	for _, tt := range tests {
		tr := calc.SinceLast(NewHistoryWindow(weights(tt.from, tt.to), OldestFirst).Chronological())
		if got := tr.ExceedsPercent(15); got != tt.want {
			t.Errorf("%v -> %v: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}
