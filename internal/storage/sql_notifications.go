package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqlNotificationRepo struct {
	db *sqlDB
}

func (r *sqlNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, recipient_role, subject_id, kind, severity,
			title, message, is_read, read_ns, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var readNS sql.NullInt64
	if n.ReadAt != nil {
		readNS = sql.NullInt64{Int64: toNanos(*n.ReadAt), Valid: true}
	}
	_, err := r.db.exec(ctx, "create_notification", query,
		n.ID, n.RecipientID, string(n.RecipientRole), n.SubjectID, string(n.Kind), string(n.Severity),
		n.Title, n.Message, n.Read, readNS, toNanos(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *sqlNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, f NotificationFilter) ([]*models.Notification, int64, error) {
	f = f.normalized()
	where := "WHERE recipient_id = ?"
	if f.UnreadOnly {
		where += " AND is_read = FALSE"
	}

	var total int64
	err := r.db.queryRow(ctx, "count_notifications", "SELECT COUNT(*) FROM notifications "+where, recipientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `
		SELECT id, recipient_id, recipient_role, subject_id, kind, severity, title, message,
			is_read, read_ns, created_ns
		FROM notifications ` + where + ` ORDER BY created_ns DESC, id LIMIT ? OFFSET ?
	`
	rows, err := r.db.query(ctx, "list_notifications", query, recipientID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var role, kind, severity string
		var readNS sql.NullInt64
		var created int64
		err := rows.Scan(&n.ID, &n.RecipientID, &role, &n.SubjectID, &kind, &severity,
			&n.Title, &n.Message, &n.Read, &readNS, &created)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		n.RecipientRole = models.Role(role)
		n.Kind = models.AlertKind(kind)
		n.Severity = models.Severity(severity)
		n.CreatedAt = fromNanos(created)
		if readNS.Valid {
			at := fromNanos(readNS.Int64)
			n.ReadAt = &at
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (r *sqlNotificationRepo) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	// Keeps the first read time when called twice.
	query := `
		UPDATE notifications SET is_read = TRUE, read_ns = COALESCE(read_ns, ?)
		WHERE id = ? AND recipient_id = ?
	`
	result, err := r.db.exec(ctx, "mark_read", query, toNanos(at), id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqlNotificationRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.exec(ctx, "prune_notifications", "DELETE FROM notifications WHERE created_ns < ?", toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return result.RowsAffected()
}
