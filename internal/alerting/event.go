package alerting

import (
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// AlertEvent is a candidate alert. The set of implementations is closed: one
// type per alert kind, each carrying exactly what its message needs.
type AlertEvent interface {
	Kind() models.AlertKind
	Header() EventHeader
	alertEvent()
}

// EventHeader holds the fields shared by every alert.
type EventHeader struct {
	SubjectID   string          `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	Severity    models.Severity `json:"severity"`
	Origin      models.Location `json:"origin"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Header returns the shared alert fields.
func (h EventHeader) Header() EventHeader { return h }

func (EventHeader) alertEvent() {}

// ScoreReading is a behavioral score and the limit it crossed.
type ScoreReading struct {
	Score float64 `json:"score"`
	Limit float64 `json:"limit"`
}

// AnxietyHigh fires when anxiety reaches its high limit.
type AnxietyHigh struct {
	EventHeader
	ScoreReading
}

func (AnxietyHigh) Kind() models.AlertKind { return models.KindAnxietyHigh }

// ObedienceLow fires when obedience falls to its low limit.
type ObedienceLow struct {
	EventHeader
	ScoreReading
}

func (ObedienceLow) Kind() models.AlertKind { return models.KindObedienceLow }

// ObedienceExcellent fires when obedience reaches its high limit.
type ObedienceExcellent struct {
	EventHeader
	ScoreReading
}

func (ObedienceExcellent) Kind() models.AlertKind { return models.KindObedienceExcellent }

// EnergyVeryHigh fires when energy reaches its high limit.
type EnergyVeryHigh struct {
	EventHeader
	ScoreReading
}

func (EnergyVeryHigh) Kind() models.AlertKind { return models.KindEnergyVeryHigh }

// SociabilityExcellent fires when sociability reaches its high limit.
type SociabilityExcellent struct {
	EventHeader
	ScoreReading
}

func (SociabilityExcellent) Kind() models.AlertKind { return models.KindSociabilityExcellent }

// WeightSignificantChange fires when weight moved more than the allowed
// percentage since the previous weighing.
type WeightSignificantChange struct {
	EventHeader
	Previous     float64   `json:"previous"`
	Current      float64   `json:"current"`
	PercentDelta float64   `json:"percent_delta"`
	Direction    Direction `json:"direction"`
}

func (WeightSignificantChange) Kind() models.AlertKind { return models.KindWeightSignificantChange }

// WeightOutOfIdealRange fires when a weight lies outside the ideal range for
// the subject's size class.
type WeightOutOfIdealRange struct {
	EventHeader
	Weight    float64          `json:"weight"`
	SizeClass models.SizeClass `json:"size_class"`
	Ideal     Range            `json:"ideal"`
}

func (WeightOutOfIdealRange) Kind() models.AlertKind { return models.KindWeightOutOfIdealRange }

// Above reports whether the weight is over the range rather than under it.
func (e WeightOutOfIdealRange) Above() bool { return e.Weight > e.Ideal.Max }

// BehaviorTrendSummary lists which metrics moved in which direction.
type BehaviorTrendSummary struct {
	Improved []models.Metric `json:"improved"`
	Declined []models.Metric `json:"declined"`
	Samples  int             `json:"samples"`
}

// BehaviorImproving is the reassurance alert sent when behavior improves.
type BehaviorImproving struct {
	EventHeader
	BehaviorTrendSummary
}

func (BehaviorImproving) Kind() models.AlertKind { return models.KindBehaviorImproving }

// BehaviorDeclining is the attention-needed alert sent when behavior worsens.
type BehaviorDeclining struct {
	EventHeader
	BehaviorTrendSummary
}

func (BehaviorDeclining) Kind() models.AlertKind { return models.KindBehaviorDeclining }

// newScoreEvent builds the variant for a behavioral limit kind.
func newScoreEvent(kind models.AlertKind, h EventHeader, r ScoreReading) (AlertEvent, bool) {
	switch kind {
	case models.KindAnxietyHigh:
		return AnxietyHigh{h, r}, true
	case models.KindObedienceLow:
		return ObedienceLow{h, r}, true
	case models.KindObedienceExcellent:
		return ObedienceExcellent{h, r}, true
	case models.KindEnergyVeryHigh:
		return EnergyVeryHigh{h, r}, true
	case models.KindSociabilityExcellent:
		return SociabilityExcellent{h, r}, true
	}
	return nil, false
}

// Severity is a shorthand for ev.Header().Severity.
func Severity(ev AlertEvent) models.Severity { return ev.Header().Severity }
