package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/payment-approval/internal/auth"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetCredentials(ctx context.Context, email string) (*auth.Credentials, error) {
	var creds auth.Credentials
	query := `SELECT id, email, password_hash, is_active FROM users WHERE email = ?`

	row := r.db.WithContext(ctx).Raw(query, email).Row()
	if err := row.Scan(&creds.UserID, &creds.Email, &creds.PasswordHash, &creds.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	return &creds, nil
}

func (r *Repository) GetUserWithCapabilities(ctx context.Context, userID int64) (*auth.User, error) {
	var u auth.User
	db := r.db.WithContext(ctx)

	query := `SELECT id, email, name FROM users WHERE id = ? AND is_active = ?`
	row := db.Raw(query, userID, true).Row()
	if err := row.Scan(&u.ID, &u.Email, &u.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	permQuery := `SELECT p.name
	             FROM permissions p
	             JOIN user_permissions up ON p.id = up.permission_id
	             WHERE up.user_id = ?
	             ORDER BY p.name`

	rows, err := db.Raw(permQuery, userID).Rows()
	if err != nil {
		return nil, fmt.Errorf("query capabilities: %w", err)
	}
	defer rows.Close()

	u.Capabilities = []permission.Capability{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if c := permission.Capability(name); c.Valid() {
			u.Capabilities = append(u.Capabilities, c)
		}
	}
	return &u, rows.Err()
}
