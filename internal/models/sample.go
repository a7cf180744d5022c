package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Metric names a measured attribute of a subject.
type Metric string

const (
	MetricEnergy      Metric = "energy"
	MetricSociability Metric = "sociability"
	MetricObedience   Metric = "obedience"
	MetricAnxiety     Metric = "anxiety"
	MetricWeight      Metric = "weight"
)

// BehaviorMetrics lists the scored behavioral metrics in evaluation order.
var BehaviorMetrics = []Metric{MetricEnergy, MetricSociability, MetricObedience, MetricAnxiety}

// IsBehavior reports whether m is a 1-10 behavioral score.
func (m Metric) IsBehavior() bool {
	switch m {
	case MetricEnergy, MetricSociability, MetricObedience, MetricAnxiety:
		return true
	}
	return false
}

// Score bounds for behavioral metrics (inclusive).
const (
	MinScore = 1
	MaxScore = 10
)

// MetricSample is one immutable measurement of a metric.
type MetricSample struct {
	ID           string    `json:"id,omitempty"`
	SubjectID    string    `json:"subject_id"`
	Metric       Metric    `json:"metric"`
	Value        float64   `json:"value"`
	RecordedAt   time.Time `json:"recorded_at"`
	Origin       Location  `json:"origin"`
	RecorderID   string    `json:"recorder_id"`
	RecorderRole Role      `json:"recorder_role"`
}

// Validate checks the value against the metric's domain.
func (s MetricSample) Validate() error {
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%s: value is not a finite number", s.Metric)
	}
	switch {
	case s.Metric.IsBehavior():
		if s.Value < MinScore || s.Value > MaxScore {
			return fmt.Errorf("%s: score %v outside [%d, %d]", s.Metric, s.Value, MinScore, MaxScore)
		}
	case s.Metric == MetricWeight:
		if s.Value <= 0 {
			return fmt.Errorf("weight: %v must be positive", s.Value)
		}
	default:
		return fmt.Errorf("unknown metric %q", s.Metric)
	}
	return nil
}

// BehaviorEvaluation is a single behavioral assessment of a subject.
type BehaviorEvaluation struct {
	ID           string    `json:"id,omitempty"`
	SubjectID    string    `json:"subject_id"`
	Energy       float64   `json:"energy"`
	Sociability  float64   `json:"sociability"`
	Obedience    float64   `json:"obedience"`
	Anxiety      float64   `json:"anxiety"`
	Observations []string  `json:"observations,omitempty"`
	Origin       Location  `json:"origin"`
	RecorderID   string    `json:"recorder_id"`
	RecorderRole Role      `json:"recorder_role"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// Score returns the score for a behavioral metric.
func (e BehaviorEvaluation) Score(m Metric) (float64, bool) {
	switch m {
	case MetricEnergy:
		return e.Energy, true
	case MetricSociability:
		return e.Sociability, true
	case MetricObedience:
		return e.Obedience, true
	case MetricAnxiety:
		return e.Anxiety, true
	}
	return 0, false
}

// Validate checks every score. All out-of-range scores are reported.
func (e BehaviorEvaluation) Validate() error {
	var errs []error
	for _, s := range e.Samples() {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Samples splits the evaluation into one MetricSample per behavioral metric.
func (e BehaviorEvaluation) Samples() []MetricSample {
	out := make([]MetricSample, 0, len(BehaviorMetrics))
	for _, m := range BehaviorMetrics {
		v, _ := e.Score(m)
		out = append(out, MetricSample{
			SubjectID:    e.SubjectID,
			Metric:       m,
			Value:        v,
			RecordedAt:   e.EvaluatedAt,
			Origin:       e.Origin,
			RecorderID:   e.RecorderID,
			RecorderRole: e.RecorderRole,
		})
	}
	return out
}
