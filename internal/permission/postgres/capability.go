package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/payment-approval/internal/permission"
)

// CapabilityRepository resolves capabilities from the users/permissions tables.
type CapabilityRepository struct {
	db *sqlx.DB
}

func NewCapabilityRepository(db *sqlx.DB) *CapabilityRepository {
	return &CapabilityRepository{db: db}
}

func (r *CapabilityRepository) HasCapability(ctx context.Context, actorID int64, capability permission.Capability) (bool, error) {
	if !capability.Valid() {
		return false, permission.ErrUnknownCapability
	}

	query := r.db.Rebind(`SELECT COUNT(1)
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		JOIN users u ON u.id = up.user_id
		WHERE up.user_id = ? AND p.name = ? AND u.is_active = ?`)

	var count int
	if err := r.db.GetContext(ctx, &count, query, actorID, string(capability), true); err != nil {
		return false, fmt.Errorf("capability lookup for actor %d: %w", actorID, err)
	}
	return count > 0, nil
}

// Capabilities lists every capability granted to an active actor.
func (r *CapabilityRepository) Capabilities(ctx context.Context, actorID int64) ([]permission.Capability, error) {
	query := r.db.Rebind(`SELECT p.name
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		JOIN users u ON u.id = up.user_id
		WHERE up.user_id = ? AND u.is_active = ?
		ORDER BY p.name`)

	var names []string
	if err := r.db.SelectContext(ctx, &names, query, actorID, true); err != nil {
		return nil, fmt.Errorf("list capabilities for actor %d: %w", actorID, err)
	}

	caps := make([]permission.Capability, 0, len(names))
	for _, n := range names {
		caps = append(caps, permission.Capability(n))
	}
	return caps, nil
}
