// Package subjects serves read-only subject views for dashboards.
package subjects

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/api/respond"
	"github.com/good-yellow-bee/pawwatch/internal/engine"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

// TrendSource computes metric trends for a subject.
type TrendSource interface {
	Trends(ctx context.Context, subjectID string) (engine.SubjectTrends, error)
}

// Handler handles subject endpoints.
type Handler struct {
	subjects storage.SubjectRepository
	trends   TrendSource
}

// NewHandler creates a new subjects handler.
func NewHandler(subjects storage.SubjectRepository, trends TrendSource) *Handler {
	return &Handler{subjects: subjects, trends: trends}
}

// Trends handles GET /api/v1/subjects/{id}/trends.
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := zerolog.Ctx(r.Context())

	if _, err := h.subjects.FetchSubject(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, respond.CodeNotFound, "subject not found")
			return
		}
		log.Error().Err(err).Str("subject_id", id).Msg("failed to fetch subject")
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeInternalError, "failed to fetch subject")
		return
	}

	trends, err := h.trends.Trends(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("subject_id", id).Msg("failed to compute trends")
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeInternalError, "failed to compute trends")
		return
	}
	respond.OK(w, r, trends)
}
