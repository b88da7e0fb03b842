package store

import (
	"context"
	"errors"

	"github.com/communehq/commune/internal/commune/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for
// now) implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Users() Users
	Invitations() Invitations
	Migrations() Migrations
	EmailTemplates() EmailTemplates

	// ApplySchema applies pending schema (DDL) migrations. Data migrations
	// are a separate, domain-level concern run by the migration service.
	ApplySchema() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction; fn returning an error rolls
	// back, nil commits. Preferred over Tx for straight-line operations.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByInvitationPhrase looks up the owner of an invite phrase.
	GetUserByInvitationPhrase(ctx context.Context, phrase int64) (domain.User, error)

	// GetUserByServiceID finds the account a provider identity is linked to.
	GetUserByServiceID(ctx context.Context, service, serviceUserID string) (domain.User, error)

	// FindByEmailAddresses returns the first user (excluding excludeID)
	// holding any of the given addresses, verified or not.
	FindByEmailAddresses(ctx context.Context, addresses []string, excludeID string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser overwrites the stored record wholesale, document-style,
	// and bumps updated_at. The id and created_at columns never change.
	UpdateUser(ctx context.Context, u domain.User) error

	// DecrementInvitations atomically spends one invite credit. Returns
	// ErrNotFound when the user does not exist or has no credit left, so
	// concurrent redemptions cannot overspend.
	DecrementInvitations(ctx context.Context, id string) error

	// SetMergedWith tombstones a user, pointing it at its survivor.
	SetMergedWith(ctx context.Context, userID, survivorID string) error

	// ReassignMergedWith collapses reference chains: every record whose
	// merged_with pointed at fromID now points at toID.
	ReassignMergedWith(ctx context.Context, fromID, toID string) error

	// MaxGlobalID returns the highest assigned global id, 0 when empty.
	MaxGlobalID(ctx context.Context) (int64, error)

	// CountByCity counts non-tombstone users attached to a city.
	CountByCity(ctx context.Context, city string) (int64, error)

	// ListBySocialPicture returns active users that carry a socialPicture
	// attribution for the given provider. Used by the picture refresher.
	ListBySocialPicture(ctx context.Context, service string) ([]domain.User, error)

	// ListNotifiable returns active ambassadors and admins for a city,
	// city-less admins included.
	ListNotifiable(ctx context.Context, city string) ([]domain.User, error)

	// ListAll returns every non-tombstone user, deleted ones included.
	// Intended for admin sweeps and data migrations, not request paths.
	ListAll(ctx context.Context) ([]domain.User, error)
}

type Invitations interface {
	// CreateInvitation records a successful redemption. Violating the
	// one-redemption-per-receiver rule returns ErrAlreadyExists.
	CreateInvitation(ctx context.Context, inv domain.Invitation) error

	// GetByReceivingUser returns the redemption row for a user, if any.
	GetByReceivingUser(ctx context.Context, userID string) (domain.Invitation, error)

	// ReassignUser rewrites both broadcast_user and receiving_user columns
	// from one user id to another. Used during account merges.
	ReassignUser(ctx context.Context, fromID, toID string) error
}

type Migrations interface {
	// GetMigrationByName returns the persisted marker for a migration.
	GetMigrationByName(ctx context.Context, name string) (domain.DataMigration, error)

	// CreateMigration inserts an inProgress marker stamped with now.
	CreateMigration(ctx context.Context, m domain.DataMigration) error

	// MarkMigrationDone flips the marker to done and re-stamps it.
	MarkMigrationDone(ctx context.Context, name string) error
}

type EmailTemplates interface {
	CreateEmailTemplate(ctx context.Context, t domain.EmailTemplate) error
	GetEmailTemplateByIdentifier(ctx context.Context, identifier string) (domain.EmailTemplate, error)
	ListEmailTemplates(ctx context.Context) ([]domain.EmailTemplate, error)

	// UpdateEmailTemplate updates subject, body and groups. The identifier
	// is immutable once set.
	UpdateEmailTemplate(ctx context.Context, t domain.EmailTemplate) error
	DeleteEmailTemplate(ctx context.Context, id string) error
}
