package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqlDedupRepo struct {
	db *sqlDB
}

func (r *sqlDedupRepo) FetchDedupRecord(ctx context.Context, subjectID string, kind models.AlertKind) (*models.DedupRecord, error) {
	var last int64
	err := r.db.queryRow(ctx, "fetch_dedup",
		"SELECT last_sent_ns FROM dedup_records WHERE subject_id = ? AND kind = ?",
		subjectID, string(kind),
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch dedup record: %w", err)
	}
	return &models.DedupRecord{SubjectID: subjectID, Kind: kind, LastSent: fromNanos(last)}, nil
}

func (r *sqlDedupRepo) SaveDedupRecord(ctx context.Context, rec models.DedupRecord) error {
	query := `
		INSERT INTO dedup_records (subject_id, kind, last_sent_ns) VALUES (?, ?, ?)
		ON CONFLICT (subject_id, kind) DO UPDATE SET last_sent_ns = excluded.last_sent_ns
	`
	if _, err := r.db.exec(ctx, "save_dedup", query, rec.SubjectID, string(rec.Kind), toNanos(rec.LastSent)); err != nil {
		return fmt.Errorf("save dedup record: %w", err)
	}
	return nil
}

func (r *sqlDedupRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.exec(ctx, "prune_dedup", "DELETE FROM dedup_records WHERE last_sent_ns < ?", toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("delete dedup records: %w", err)
	}
	return result.RowsAffected()
}
