package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqlSubjectRepo struct {
	db *sqlDB
}

const subjectColumns = "id, name, size_class, owner_id, locations_json, teacher_ids_json, created_ns"

func (r *sqlSubjectRepo) SaveSubject(ctx context.Context, s *models.Subject) error {
	locations, err := json.Marshal(nonNil(s.Locations))
	if err != nil {
		return fmt.Errorf("marshal locations: %w", err)
	}
	teachers, err := json.Marshal(nonNil(s.TeacherIDs))
	if err != nil {
		return fmt.Errorf("marshal teacher ids: %w", err)
	}

	query := `
		INSERT INTO subjects (` + subjectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			size_class = excluded.size_class,
			owner_id = excluded.owner_id,
			locations_json = excluded.locations_json,
			teacher_ids_json = excluded.teacher_ids_json
	`
	_, err = r.db.exec(ctx, "save_subject", query,
		s.ID, s.Name, string(s.SizeClass), s.OwnerID,
		string(locations), string(teachers), toNanos(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

func (r *sqlSubjectRepo) FetchSubject(ctx context.Context, id string) (*models.Subject, error) {
	row := r.db.queryRow(ctx, "fetch_subject", "SELECT "+subjectColumns+" FROM subjects WHERE id = ?", id)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subject: %w", err)
	}
	return s, nil
}

func (r *sqlSubjectRepo) List(ctx context.Context) ([]*models.Subject, error) {
	rows, err := r.db.query(ctx, "list_subjects", "SELECT "+subjectColumns+" FROM subjects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*models.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubject(row scanner) (*models.Subject, error) {
	s := &models.Subject{}
	var size, locations, teachers string
	var created int64
	if err := row.Scan(&s.ID, &s.Name, &size, &s.OwnerID, &locations, &teachers, &created); err != nil {
		return nil, err
	}
	s.SizeClass = models.ParseSizeClass(size)
	s.CreatedAt = fromNanos(created)
	if err := json.Unmarshal([]byte(locations), &s.Locations); err != nil {
		return nil, fmt.Errorf("unmarshal locations: %w", err)
	}
	if err := json.Unmarshal([]byte(teachers), &s.TeacherIDs); err != nil {
		return nil, fmt.Errorf("unmarshal teacher ids: %w", err)
	}
	return s, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
