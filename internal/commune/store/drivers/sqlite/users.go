package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, global_id, invitation_phrase, invitations, city, current_city,
	merged_with, emails, services, profile,
	is_access_denied, is_uninvited, is_incomplete_profile, is_hidden,
	is_deleted, is_admin, is_ambassador,
	access_at, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                        domain.User
		emails, services, profil string
		accessAt, deletedAt      sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.GlobalID, &u.InvitationPhrase, &u.Invitations, &u.City, &u.CurrentCity,
		&u.MergedWith, &emails, &services, &profil,
		&u.IsAccessDenied, &u.IsUninvited, &u.IsIncompleteProfile, &u.IsHidden,
		&u.IsDeleted, &u.IsAdmin, &u.IsAmbassador,
		&accessAt, &deletedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	if u.Emails, err = unmarshalEmails(emails); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: decode emails for user %s: %w", u.ID, err)
	}
	if u.Services, err = unmarshalServices(services); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: decode services for user %s: %w", u.ID, err)
	}
	if u.Profile, err = unmarshalProfile(profil); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: decode profile for user %s: %w", u.ID, err)
	}
	u.AccessAt = mapNullTimePtr(accessAt)
	u.DeletedAt = mapNullTimePtr(deletedAt)

	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByInvitationPhrase(ctx context.Context, phrase int64) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE invitation_phrase = ?`, phrase)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByServiceID(ctx context.Context, service, serviceUserID string) (domain.User, error) {
	// Provider names are registry keys (github, facebook, ...), never user
	// input, so embedding them in the JSON path is safe.
	path := fmt.Sprintf(`$."%s".id`, service)
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE json_extract(services, ?) = ?`,
		path, serviceUserID)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) FindByEmailAddresses(ctx context.Context, addresses []string, excludeID string) (domain.User, error) {
	if len(addresses) == 0 {
		return domain.User{}, store.ErrNotFound
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(addresses)), ",")
	args := make([]any, 0, len(addresses)+1)
	args = append(args, excludeID)
	for _, a := range addresses {
		args = append(args, a)
	}

	query := `SELECT ` + userColumns + ` FROM users u
		WHERE u.id != ?
		  AND u.merged_with = ''
		  AND EXISTS (
			SELECT 1 FROM json_each(u.emails) e
			WHERE json_extract(e.value, '$.address') IN (` + placeholders + `)
		  )
		ORDER BY u.created_at ASC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, args...)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	emails, err := marshalJSON(u.Emails, "[]")
	if err != nil {
		return err
	}
	services, err := marshalJSON(u.Services, "{}")
	if err != nil {
		return err
	}
	profile, err := marshalJSON(u.Profile, "{}")
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, global_id, invitation_phrase, invitations, city, current_city,
			merged_with, emails, services, profile,
			is_access_denied, is_uninvited, is_incomplete_profile, is_hidden,
			is_deleted, is_admin, is_ambassador,
			access_at, deleted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.GlobalID, u.InvitationPhrase, u.Invitations, u.City, u.CurrentCity,
		u.MergedWith, emails, services, profile,
		u.IsAccessDenied, u.IsUninvited, u.IsIncompleteProfile, u.IsHidden,
		u.IsDeleted, u.IsAdmin, u.IsAmbassador,
		mapOptionalTime(u.AccessAt), mapOptionalTime(u.DeletedAt), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	emails, err := marshalJSON(u.Emails, "[]")
	if err != nil {
		return err
	}
	services, err := marshalJSON(u.Services, "{}")
	if err != nil {
		return err
	}
	profile, err := marshalJSON(u.Profile, "{}")
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			global_id = ?, invitation_phrase = ?, invitations = ?, city = ?, current_city = ?,
			merged_with = ?, emails = ?, services = ?, profile = ?,
			is_access_denied = ?, is_uninvited = ?, is_incomplete_profile = ?, is_hidden = ?,
			is_deleted = ?, is_admin = ?, is_ambassador = ?,
			access_at = ?, deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		u.GlobalID, u.InvitationPhrase, u.Invitations, u.City, u.CurrentCity,
		u.MergedWith, emails, services, profile,
		u.IsAccessDenied, u.IsUninvited, u.IsIncompleteProfile, u.IsHidden,
		u.IsDeleted, u.IsAdmin, u.IsAmbassador,
		mapOptionalTime(u.AccessAt), mapOptionalTime(u.DeletedAt),
		u.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DecrementInvitations(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET invitations = invitations - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND invitations > 0`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) SetMergedWith(ctx context.Context, userID, survivorID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET merged_with = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		survivorID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) ReassignMergedWith(ctx context.Context, fromID, toID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET merged_with = ?, updated_at = CURRENT_TIMESTAMP WHERE merged_with = ?`,
		toID, fromID)
	return err
}

func (r *usersRepo) MaxGlobalID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(global_id) FROM users`).Scan(&maxID)
	if err != nil {
		return 0, err
	}
	return maxID.Int64, nil
}

func (r *usersRepo) CountByCity(ctx context.Context, city string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE city = ? AND merged_with = ''`, city).Scan(&n)
	return n, err
}

func (r *usersRepo) ListBySocialPicture(ctx context.Context, service string) ([]domain.User, error) {
	path := fmt.Sprintf(`$.socialPicture."%s"`, service)
	return r.list(ctx, `SELECT `+userColumns+` FROM users
		WHERE merged_with = '' AND is_deleted = 0
		  AND json_extract(profile, ?) IS NOT NULL`, path)
}

func (r *usersRepo) ListNotifiable(ctx context.Context, city string) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users
		WHERE merged_with = '' AND is_deleted = 0
		  AND (is_admin = 1 OR (is_ambassador = 1 AND city = ?))`, city)
}

// ListAll returns every non-tombstone user, deleted ones included, so
// data migrations can reach them.
func (r *usersRepo) ListAll(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users
		WHERE merged_with = ''
		ORDER BY created_at ASC`)
}

func (r *usersRepo) list(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
