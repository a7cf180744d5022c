package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/metrics"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// sqlDB wraps a connection pool so repositories can write "?" placeholders
// for both drivers.
type sqlDB struct {
	*sql.DB
	dialect dialect
}

// rebind rewrites "?" placeholders to "$n" for postgres.
func (d *sqlDB) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *sqlDB) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	defer observe(op, time.Now())
	res, err := d.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		metrics.StorageErrors.WithLabelValues(op).Inc()
	}
	return res, err
}

func (d *sqlDB) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	defer observe(op, time.Now())
	rows, err := d.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		metrics.StorageErrors.WithLabelValues(op).Inc()
	}
	return rows, err
}

func (d *sqlDB) queryRow(ctx context.Context, op, query string, args ...any) *sql.Row {
	defer observe(op, time.Now())
	return d.QueryRowContext(ctx, d.rebind(query), args...)
}

func observe(op string, start time.Time) {
	metrics.StorageQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// sqlStore holds the repositories shared by the SQLite and Postgres backends.
type sqlStore struct {
	db *sqlDB

	users         *sqlUserRepo
	subjects      *sqlSubjectRepo
	samples       *sqlSampleRepo
	dedup         *sqlDedupRepo
	notifications *sqlNotificationRepo
}

func (s *sqlStore) init(db *sql.DB, d dialect) {
	s.db = &sqlDB{DB: db, dialect: d}
	s.users = &sqlUserRepo{db: s.db}
	s.subjects = &sqlSubjectRepo{db: s.db}
	s.samples = &sqlSampleRepo{db: s.db}
	s.dedup = &sqlDedupRepo{db: s.db}
	s.notifications = &sqlNotificationRepo{db: s.db}
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *sqlStore) DB() *sql.DB {
	if s.db == nil {
		return nil
	}
	return s.db.DB
}

// Migrate runs database migrations.
func (s *sqlStore) Migrate() error {
	return runMigrations(s.db)
}

// Users returns the user repository.
func (s *sqlStore) Users() UserRepository { return s.users }

// Subjects returns the subject repository.
func (s *sqlStore) Subjects() SubjectRepository { return s.subjects }

// Samples returns the sample repository.
func (s *sqlStore) Samples() SampleRepository { return s.samples }

// Dedup returns the cooldown marker repository.
func (s *sqlStore) Dedup() DedupRepository { return s.dedup }

// Notifications returns the notification repository.
func (s *sqlStore) Notifications() NotificationRepository { return s.notifications }

// Timestamps are stored as unix nanoseconds so ordering is exact on both drivers.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
