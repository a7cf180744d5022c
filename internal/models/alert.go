package models

import "time"

// Severity represents alert severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityPositive Severity = "positive"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: critical > warning > positive > info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityPositive:
		return 1
	default:
		return 0
	}
}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "positive":
		return SeverityPositive
	case "warning":
		return SeverityWarning
	case "critical":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// AlertKind is the stable identifier of a triggered condition.
type AlertKind string

const (
	KindAnxietyHigh             AlertKind = "anxiety_high"
	KindObedienceLow            AlertKind = "obedience_low"
	KindObedienceExcellent      AlertKind = "obedience_excellent"
	KindEnergyVeryHigh          AlertKind = "energy_very_high"
	KindSociabilityExcellent    AlertKind = "sociability_excellent"
	KindWeightSignificantChange AlertKind = "weight_significant_change"
	KindWeightOutOfIdealRange   AlertKind = "weight_out_of_ideal_range"
	KindBehaviorImproving       AlertKind = "behavior_improving"
	KindBehaviorDeclining       AlertKind = "behavior_declining"
)

// DedupRecord marks the last time an alert kind was sent for a subject.
type DedupRecord struct {
	SubjectID string    `json:"subject_id"`
	Kind      AlertKind `json:"kind"`
	LastSent  time.Time `json:"last_sent"`
}
