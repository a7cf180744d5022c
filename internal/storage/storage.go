// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// ErrNotFound is returned when a subject, user or notification does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Users() UserRepository
	Subjects() SubjectRepository
	Samples() SampleRepository
	Dedup() DedupRepository
	Notifications() NotificationRepository
}

// UserRepository defines operations on the people who receive notifications.
type UserRepository interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	ListAdmins(ctx context.Context) ([]*models.User, error)
}

// SubjectRepository defines operations on dogs.
type SubjectRepository interface {
	SaveSubject(ctx context.Context, subject *models.Subject) error
	FetchSubject(ctx context.Context, id string) (*models.Subject, error)
	List(ctx context.Context) ([]*models.Subject, error)
}

// SampleRepository stores metric samples and behavior evaluations.
type SampleRepository interface {
	// SaveSample stores one sample. A sample whose ID already exists is ignored.
	SaveSample(ctx context.Context, sample *models.MetricSample) error
	// SaveEvaluation stores the evaluation and its four samples together.
	SaveEvaluation(ctx context.Context, ev *models.BehaviorEvaluation) error
	// FetchRecentSamples returns up to limit samples, newest first.
	FetchRecentSamples(ctx context.Context, subjectID string, metric models.Metric, limit int) ([]models.MetricSample, error)
}

// DedupRepository persists cooldown markers.
type DedupRepository interface {
	// FetchDedupRecord returns nil, nil when no marker exists.
	FetchDedupRecord(ctx context.Context, subjectID string, kind models.AlertKind) (*models.DedupRecord, error)
	SaveDedupRecord(ctx context.Context, rec models.DedupRecord) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// NotificationFilter narrows ListByRecipient.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository defines operations on delivered notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, f NotificationFilter) ([]*models.Notification, int64, error)
	// MarkRead sets the read flag. It returns ErrNotFound when the
	// notification does not exist or belongs to someone else.
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

const defaultListLimit = 50

func (f NotificationFilter) normalized() NotificationFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
