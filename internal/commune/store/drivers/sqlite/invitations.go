package sqlite

import (
	"context"
	"strings"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

type invitationsRepo struct {
	db dbtx
}

func (r *invitationsRepo) CreateInvitation(ctx context.Context, inv domain.Invitation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations (id, broadcast_user, receiving_user, created_at)
		VALUES (?, ?, ?, ?)`,
		inv.ID, inv.BroadcastUser, inv.ReceivingUser, inv.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *invitationsRepo) GetByReceivingUser(ctx context.Context, userID string) (domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.QueryRowContext(ctx, `
		SELECT id, broadcast_user, receiving_user, created_at
		FROM invitations WHERE receiving_user = ?`, userID).
		Scan(&inv.ID, &inv.BroadcastUser, &inv.ReceivingUser, &inv.CreatedAt)
	if err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}
	return inv, nil
}

func (r *invitationsRepo) ReassignUser(ctx context.Context, fromID, toID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET broadcast_user = ? WHERE broadcast_user = ?`, toID, fromID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET receiving_user = ? WHERE receiving_user = ?`, toID, fromID)
	return err
}
