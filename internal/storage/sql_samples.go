package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqlSampleRepo struct {
	db *sqlDB
}

const insertSample = `
	INSERT INTO metric_samples (id, subject_id, metric, value, recorded_ns, origin, recorder_id, recorder_role)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING
`

func sampleArgs(s *models.MetricSample) []any {
	return []any{
		s.ID, s.SubjectID, string(s.Metric), s.Value, toNanos(s.RecordedAt),
		string(s.Origin), nullString(s.RecorderID), nullString(string(s.RecorderRole)),
	}
}

func (r *sqlSampleRepo) SaveSample(ctx context.Context, s *models.MetricSample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, err := r.db.exec(ctx, "save_sample", insertSample, sampleArgs(s)...); err != nil {
		return fmt.Errorf("save sample: %w", err)
	}
	return nil
}

func (r *sqlSampleRepo) SaveEvaluation(ctx context.Context, ev *models.BehaviorEvaluation) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	observations, err := json.Marshal(nonNil(ev.Observations))
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}

	defer observe("save_evaluation", time.Now())
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evaluation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO behavior_evaluations (id, subject_id, energy, sociability, obedience, anxiety,
			observations_json, origin, recorder_id, recorder_role, evaluated_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`),
		ev.ID, ev.SubjectID, ev.Energy, ev.Sociability, ev.Obedience, ev.Anxiety,
		string(observations), string(ev.Origin), nullString(ev.RecorderID),
		nullString(string(ev.RecorderRole)), toNanos(ev.EvaluatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already stored; its samples went in with it.
		return nil
	}

	for _, s := range ev.Samples() {
		s.ID = ev.ID + ":" + string(s.Metric)
		if _, err := tx.ExecContext(ctx, r.db.rebind(insertSample), sampleArgs(&s)...); err != nil {
			return fmt.Errorf("insert %s sample: %w", s.Metric, err)
		}
	}
	return tx.Commit()
}

func (r *sqlSampleRepo) FetchRecentSamples(ctx context.Context, subjectID string, metric models.Metric, limit int) ([]models.MetricSample, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, subject_id, metric, value, recorded_ns, origin, recorder_id, recorder_role
		FROM metric_samples WHERE subject_id = ? AND metric = ?
		ORDER BY recorded_ns DESC, id DESC LIMIT ?
	`
	rows, err := r.db.query(ctx, "fetch_recent_samples", query, subjectID, string(metric), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent samples: %w", err)
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var s models.MetricSample
		var m, origin string
		var recorderID, recorderRole sql.NullString
		var recorded int64
		if err := rows.Scan(&s.ID, &s.SubjectID, &m, &s.Value, &recorded, &origin, &recorderID, &recorderRole); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Metric = models.Metric(m)
		s.Origin = models.Location(origin)
		s.RecordedAt = fromNanos(recorded)
		s.RecorderID = recorderID.String
		s.RecorderRole = models.Role(recorderRole.String)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
