package storage

import (
	"fmt"
	"strings"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order. The DDL sticks to types
// both SQLite and Postgres accept; *_ns columns hold unix nanoseconds.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'parent'
			);

			CREATE TABLE IF NOT EXISTS subjects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				size_class TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				locations_json TEXT NOT NULL DEFAULT '[]',
				teacher_ids_json TEXT NOT NULL DEFAULT '[]',
				created_ns BIGINT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS metric_samples (
				id TEXT PRIMARY KEY,
				subject_id TEXT NOT NULL,
				metric TEXT NOT NULL,
				value DOUBLE PRECISION NOT NULL,
				recorded_ns BIGINT NOT NULL,
				origin TEXT NOT NULL,
				recorder_id TEXT,
				recorder_role TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_samples_subject_metric
				ON metric_samples(subject_id, metric, recorded_ns);

			CREATE TABLE IF NOT EXISTS dedup_records (
				subject_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				last_sent_ns BIGINT NOT NULL,
				PRIMARY KEY (subject_id, kind)
			);

			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				recipient_id TEXT NOT NULL,
				recipient_role TEXT NOT NULL,
				subject_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				severity TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				read_ns BIGINT,
				created_ns BIGINT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_notifications_recipient
				ON notifications(recipient_id, created_ns);
		`,
	},
	{
		Version: 2,
		Name:    "behavior_evaluations",
		Up: `
			CREATE TABLE IF NOT EXISTS behavior_evaluations (
				id TEXT PRIMARY KEY,
				subject_id TEXT NOT NULL,
				energy DOUBLE PRECISION NOT NULL,
				sociability DOUBLE PRECISION NOT NULL,
				obedience DOUBLE PRECISION NOT NULL,
				anxiety DOUBLE PRECISION NOT NULL,
				observations_json TEXT NOT NULL DEFAULT '[]',
				origin TEXT NOT NULL,
				recorder_id TEXT,
				recorder_role TEXT,
				evaluated_ns BIGINT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_evaluations_subject
				ON behavior_evaluations(subject_id, evaluated_ns);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sqlDB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_ns BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		for _, stmt := range splitStatements(m.Up) {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
			}
		}

		_, err = tx.Exec(
			db.rebind("INSERT INTO schema_migrations (version, name, applied_ns) VALUES (?, ?, ?)"),
			m.Version, m.Name, time.Now().UnixNano(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
