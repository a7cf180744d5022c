package alerting

import (
	"strings"
	"testing"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

func TestRenderAllKinds(t *testing.T) {
	h := EventHeader{SubjectID: "dog-1", SubjectName: "Luna", Origin: models.LocationSchool, Severity: models.SeverityWarning}
	reading := ScoreReading{Score: 9, Limit: 8}
	trend := BehaviorTrendSummary{
		Improved: []models.Metric{models.MetricObedience, models.MetricAnxiety},
		Declined: []models.Metric{models.MetricSociability},
		Samples:  4,
	}

	tests := []struct {
		event     AlertEvent
		wantTitle string
		wantBody  []string
	}{
		{AnxietyHigh{h, reading}, "High anxiety detected", []string{"Luna", "9/10", "school"}},
		{ObedienceLow{h, ScoreReading{Score: 2, Limit: 3}}, "Obedience needs work", []string{"2/10", "alert level 3"}},
		{ObedienceExcellent{h, reading}, "Excellent obedience", []string{"9/10"}},
		{EnergyVeryHigh{h, ScoreReading{Score: 10, Limit: 9}}, "Very high energy", []string{"10/10"}},
		{SociabilityExcellent{h, reading}, "Very sociable day", []string{"sociability"}},
		{
			WeightSignificantChange{EventHeader: h, Previous: 20.1, Current: 23.5, PercentDelta: 16.9, Direction: DirectionRising},
			"Significant weight change",
			[]string{"20.1 kg", "23.5 kg", "+16.9%"},
		},
		{
			WeightOutOfIdealRange{EventHeader: h, Weight: 30, SizeClass: models.SizeMedium, Ideal: Range{Min: 10, Max: 25}},
			"Weight outside ideal range",
			[]string{"30.0 kg", "above", "10.0 kg-25.0 kg", "medium"},
		},
		{BehaviorImproving{h, trend}, "Behavior is improving", []string{"4 evaluations", "obedience, anxiety"}},
		{BehaviorDeclining{h, trend}, "Behavior needs attention", []string{"sociability"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Kind()), func(t *testing.T) {
			msg, err := Render(tt.event)
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if msg.Title != tt.wantTitle {
				t.Errorf("expected title %q, got %q", tt.wantTitle, msg.Title)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(msg.Body, want) {
					t.Errorf("expected body to contain %q, got %q", want, msg.Body)
				}
			}
		})
	}
}

func TestRenderDefaults(t *testing.T) {
	msg, err := Render(WeightOutOfIdealRange{Weight: 5, SizeClass: models.SizeLarge, Ideal: Range{Min: 25, Max: 45}})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.HasPrefix(msg.Body, "Your dog weighs") {
		t.Errorf("expected default name, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "below") {
		t.Errorf("expected below, got %q", msg.Body)
	}
}

type unknownEvent struct{ EventHeader }

func (unknownEvent) Kind() models.AlertKind { return "unknown_kind" }

func TestRenderUnhandledKind(t *testing.T) {
	if _, err := Render(unknownEvent{}); err == nil || !strings.Contains(err.Error(), "unhandled alert kind") {
		t.Errorf("expected unhandled kind error, got %v", err)
	}
}
