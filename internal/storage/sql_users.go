package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqlUserRepo struct {
	db *sqlDB
}

func (r *sqlUserRepo) SaveUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, role) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, role = excluded.role
	`
	if _, err := r.db.exec(ctx, "save_user", query, user.ID, user.Name, string(user.Role)); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *sqlUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	var role string
	err := r.db.queryRow(ctx, "get_user", "SELECT id, name, role FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Name, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	user.Role = models.ParseRole(role)
	return user, nil
}

func (r *sqlUserRepo) List(ctx context.Context) ([]*models.User, error) {
	return r.list(ctx, "list_users", "SELECT id, name, role FROM users ORDER BY name")
}

func (r *sqlUserRepo) ListAdmins(ctx context.Context) ([]*models.User, error) {
	return r.list(ctx, "list_admins", "SELECT id, name, role FROM users WHERE role = ? ORDER BY id", string(models.RoleAdmin))
}

func (r *sqlUserRepo) list(ctx context.Context, op, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.query(ctx, op, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		var role string
		if err := rows.Scan(&user.ID, &user.Name, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Role = models.ParseRole(role)
		users = append(users, user)
	}
	return users, rows.Err()
}
