package alerting

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Message is a rendered alert.
type Message struct {
	Title string
	Body  string
}

// messageData is the template input for every kind.
type messageData struct {
	Name         string
	Origin       string
	Score        float64
	Limit        float64
	Previous     float64
	Current      float64
	PercentDelta float64
	Weight       float64
	Min          float64
	Max          float64
	Above        bool
	SizeClass    string
	Improved     []models.Metric
	Declined     []models.Metric
	Samples      int
}

var (
	tmplOnce sync.Once
	tmpl     *template.Template
	tmplErr  error
)

func loadTemplates() (*template.Template, error) {
	tmplOnce.Do(func() {
		funcs := template.FuncMap{
			"score": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
			"kg":    func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + " kg" },
			"pct":   func(v float64) string { return fmt.Sprintf("%+.1f%%", v) },
			"join": func(ms []models.Metric) string {
				parts := make([]string, len(ms))
				for i, m := range ms {
					parts[i] = string(m)
				}
				return strings.Join(parts, ", ")
			},
		}
		tmpl, tmplErr = template.New("messages").Funcs(funcs).ParseFS(templateFS, "templates/messages.tmpl")
	})
	return tmpl, tmplErr
}

// Render produces the title and body for an alert.
func Render(ev AlertEvent) (Message, error) {
	t, err := loadTemplates()
	if err != nil {
		return Message{}, fmt.Errorf("load templates: %w", err)
	}

	h := ev.Header()
	data := messageData{Name: h.SubjectName, Origin: string(h.Origin)}
	if data.Name == "" {
		data.Name = "Your dog"
	}
	if data.Origin == "" {
		data.Origin = string(models.LocationSchool)
	}

	switch e := ev.(type) {
	case AnxietyHigh:
		data.Score, data.Limit = e.Score, e.Limit
	case ObedienceLow:
		data.Score, data.Limit = e.Score, e.Limit
	case ObedienceExcellent:
		data.Score, data.Limit = e.Score, e.Limit
	case EnergyVeryHigh:
		data.Score, data.Limit = e.Score, e.Limit
	case SociabilityExcellent:
		data.Score, data.Limit = e.Score, e.Limit
	case WeightSignificantChange:
		data.Previous, data.Current, data.PercentDelta = e.Previous, e.Current, e.PercentDelta
	case WeightOutOfIdealRange:
		data.Weight, data.Min, data.Max = e.Weight, e.Ideal.Min, e.Ideal.Max
		data.Above, data.SizeClass = e.Above(), string(e.SizeClass)
	case BehaviorImproving:
		data.Improved, data.Declined, data.Samples = e.Improved, e.Declined, e.Samples
	case BehaviorDeclining:
		data.Improved, data.Declined, data.Samples = e.Improved, e.Declined, e.Samples
	default:
		return Message{}, fmt.Errorf("unhandled alert kind %q", ev.Kind())
	}

	kind := string(ev.Kind())
	var title, body bytes.Buffer
	if err := t.ExecuteTemplate(&title, kind+".title", data); err != nil {
		return Message{}, fmt.Errorf("render %s title: %w", kind, err)
	}
	if err := t.ExecuteTemplate(&body, kind+".body", data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", kind, err)
	}
	return Message{Title: title.String(), Body: body.String()}, nil
}
