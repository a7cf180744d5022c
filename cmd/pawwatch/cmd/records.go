package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// YAML shapes for import and check files.

type userRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

func (r userRecord) model() (*models.User, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("user without id")
	}
	return &models.User{ID: r.ID, Name: r.Name, Role: models.ParseRole(r.Role)}, nil
}

type subjectRecord struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	SizeClass  string   `yaml:"size_class"`
	OwnerID    string   `yaml:"owner_id"`
	Locations  []string `yaml:"locations"`
	TeacherIDs []string `yaml:"teacher_ids"`
}

func (r subjectRecord) model() (*models.Subject, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("subject without id")
	}
	if r.OwnerID == "" {
		return nil, fmt.Errorf("subject %s: owner_id is required", r.ID)
	}
	size := models.ParseSizeClass(r.SizeClass)
	if r.SizeClass != "" && size == "" {
		return nil, fmt.Errorf("subject %s: unknown size_class %q", r.ID, r.SizeClass)
	}
	s := &models.Subject{
		ID:         r.ID,
		Name:       r.Name,
		SizeClass:  size,
		OwnerID:    r.OwnerID,
		TeacherIDs: r.TeacherIDs,
	}
	for _, l := range r.Locations {
		s.Locations = append(s.Locations, models.Location(l))
	}
	return s, nil
}

type sampleRecord struct {
	Metric     string    `yaml:"metric"`
	Value      float64   `yaml:"value"`
	RecordedAt time.Time `yaml:"recorded_at"`
	Origin     string    `yaml:"origin"`
}

func (r sampleRecord) model(subjectID string) models.MetricSample {
	metric := models.Metric(r.Metric)
	if metric == "" {
		metric = models.MetricWeight
	}
	return models.MetricSample{
		SubjectID:  subjectID,
		Metric:     metric,
		Value:      r.Value,
		RecordedAt: r.RecordedAt,
		Origin:     models.Location(r.Origin),
	}
}

type evaluationRecord struct {
	Energy       float64   `yaml:"energy"`
	Sociability  float64   `yaml:"sociability"`
	Obedience    float64   `yaml:"obedience"`
	Anxiety      float64   `yaml:"anxiety"`
	Observations []string  `yaml:"observations"`
	Origin       string    `yaml:"origin"`
	EvaluatedAt  time.Time `yaml:"evaluated_at"`
}

func (r evaluationRecord) model(subjectID string) models.BehaviorEvaluation {
	return models.BehaviorEvaluation{
		SubjectID:    subjectID,
		Energy:       r.Energy,
		Sociability:  r.Sociability,
		Obedience:    r.Obedience,
		Anxiety:      r.Anxiety,
		Observations: r.Observations,
		Origin:       models.Location(r.Origin),
		EvaluatedAt:  r.EvaluatedAt,
	}
}

func readYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
