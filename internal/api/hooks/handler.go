// Package hooks receives save notifications from the record-keeping service
// and runs the alert pipeline for them.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/api/respond"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

const maxBodyBytes = 1 << 20

// Pipeline is the part of engine.Engine the hooks call.
type Pipeline interface {
	OnEvaluationSaved(ctx context.Context, ev models.BehaviorEvaluation, subject models.Subject, recorderID string) notifier.DispatchReport
	OnWeightRecorded(ctx context.Context, sample models.MetricSample, subject models.Subject, recorderID string) notifier.DispatchReport
}

// Handler handles hook endpoints.
type Handler struct {
	subjects storage.SubjectRepository
	samples  storage.SampleRepository
	pipeline Pipeline
	timeout  time.Duration
	now      func() time.Time
}

// NewHandler creates a new hooks handler. timeout bounds one pipeline run;
// zero means the request context alone.
func NewHandler(subjects storage.SubjectRepository, samples storage.SampleRepository, pipeline Pipeline, timeout time.Duration) *Handler {
	return &Handler{
		subjects: subjects,
		samples:  samples,
		pipeline: pipeline,
		timeout:  timeout,
		now:      time.Now,
	}
}

// EvaluationHook is the body of POST /hooks/evaluations.
type EvaluationHook struct {
	RecorderID string                    `json:"recorder_id"`
	Evaluation models.BehaviorEvaluation `json:"evaluation"`
}

// WeightHook is the body of POST /hooks/weights.
type WeightHook struct {
	RecorderID string              `json:"recorder_id"`
	Sample     models.MetricSample `json:"sample"`
}

// Evaluation handles POST /api/v1/hooks/evaluations.
func (h *Handler) Evaluation(w http.ResponseWriter, r *http.Request) {
	var req EvaluationHook
	if !decode(w, r, &req) {
		return
	}
	ev := req.Evaluation
	if ev.SubjectID == "" {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationFailed, "evaluation.subject_id is required")
		return
	}
	if ev.EvaluatedAt.IsZero() {
		ev.EvaluatedAt = h.now()
	}
	if req.RecorderID != "" {
		ev.RecorderID = req.RecorderID
	}

	subject, ok := h.subject(w, r, ev.SubjectID)
	if !ok {
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	// Out-of-range scores are left to the rules to report and are not stored.
	var persistErr string
	if err := ev.Validate(); err == nil {
		if err := h.samples.SaveEvaluation(ctx, &ev); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("subject_id", ev.SubjectID).Msg("failed to store evaluation")
			persistErr = "store evaluation: " + err.Error()
		}
	}

	report := h.pipeline.OnEvaluationSaved(ctx, ev, *subject, req.RecorderID)
	if persistErr != "" {
		report.Errors = append(report.Errors, persistErr)
	}
	respond.OK(w, r, report)
}

// Weight handles POST /api/v1/hooks/weights.
func (h *Handler) Weight(w http.ResponseWriter, r *http.Request) {
	var req WeightHook
	if !decode(w, r, &req) {
		return
	}
	sample := req.Sample
	if sample.SubjectID == "" {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationFailed, "sample.subject_id is required")
		return
	}
	if sample.Metric == "" {
		sample.Metric = models.MetricWeight
	}
	if sample.Metric != models.MetricWeight {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationFailed, "sample.metric must be weight")
		return
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = h.now()
	}
	if req.RecorderID != "" {
		sample.RecorderID = req.RecorderID
	}

	subject, ok := h.subject(w, r, sample.SubjectID)
	if !ok {
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	// A value the rules will reject is not stored either.
	var persistErr string
	if err := sample.Validate(); err == nil {
		if err := h.samples.SaveSample(ctx, &sample); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("subject_id", sample.SubjectID).Msg("failed to store weight")
			persistErr = "store weight: " + err.Error()
		}
	}

	report := h.pipeline.OnWeightRecorded(ctx, sample, *subject, req.RecorderID)
	if persistErr != "" {
		report.Errors = append(report.Errors, persistErr)
	}
	respond.OK(w, r, report)
}

func (h *Handler) subject(w http.ResponseWriter, r *http.Request, id string) (*models.Subject, bool) {
	subject, err := h.subjects.FetchSubject(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, r, http.StatusNotFound, respond.CodeNotFound, "subject not found")
		return nil, false
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("subject_id", id).Msg("failed to fetch subject")
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeInternalError, "failed to fetch subject")
		return nil, false
	}
	return subject, true
}

func (h *Handler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, h.timeout)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeBadRequest, "invalid request body")
		return false
	}
	return true
}
