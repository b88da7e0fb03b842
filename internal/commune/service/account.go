package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/mail"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/pkg/idx"
	"github.com/communehq/commune/pkg/lockx"
	"github.com/communehq/commune/pkg/slogx"
)

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownService = errors.New("unknown service")
	ErrDuplicateEmail = errors.New("duplicate email conflict")
	ErrLastService    = errors.New("cannot unlink the only remaining service")
)

// AccountService owns the login lifecycle: account creation on first
// external sign-in, linking further services, identity reconciliation and
// merging, and soft account removal.
type AccountService struct {
	Store     store.Store
	Providers *provider.Registry
	Geocoder  *provider.Geocoder
	Locks     *lockx.KeyedMutex
	Mailer    *mail.Notifier

	// Env toggles the development bootstrap where every new account is
	// invited and made admin.
	Env string

	// DefaultInvitations is the invite credit granted to new accounts.
	DefaultInvitations int64

	// AutoInviteLimit and AutoInviteGrant control the founding-member
	// rule: the first AutoInviteLimit accounts of a city skip the
	// invitation gate and receive a larger credit.
	AutoInviteLimit int64
	AutoInviteGrant int64
}

// Login signs a user in with a fresh token from an external service. It
// either returns the existing account behind that service identity or
// creates a new one, reconciling against accounts sharing a verified
// email address.
func (s *AccountService) Login(ctx context.Context, serviceName string, token *oauth2.Token) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Resolve the adapter and fetch the external account.
	adapter, err := s.Providers.Lookup(serviceName)
	if err != nil {
		return domain.User{}, ErrUnknownService
	}
	ext, err := adapter.Fetch(ctx, token)
	if err != nil {
		log.Error("external account fetch failed",
			slog.String("service", serviceName),
			slog.Any("error", err),
		)
		return domain.User{}, err
	}

	// 2. Serialize everything touching this external identity. A
	// duplicate-tab retry of the same callback must not race the first.
	lockKey := serviceName + ":" + ext.ServiceUserID
	s.Locks.Lock(lockKey)
	defer s.Locks.Unlock(lockKey)

	cred := domain.Credential{
		ID:          ext.ServiceUserID,
		AccessToken: token.AccessToken,
		Email:       ext.Email,
		Raw:         ext.Raw,
	}

	// 3. Returning user: refresh credentials and fill profile gaps.
	user, err := s.Store.Users().GetUserByServiceID(ctx, serviceName, ext.ServiceUserID)
	switch {
	case err == nil:
		user, err = s.resolveMerged(ctx, user)
		if err != nil {
			return domain.User{}, err
		}
		user.Services[serviceName] = cred
		s.applyExternalProfile(ctx, &user, serviceName, ext)
		user.UpdatedAt = time.Now().UTC()
		if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
			return domain.User{}, err
		}
		return user, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, err
	}

	// 4. First sign-in with this identity: build a candidate account.
	return s.createAccount(ctx, serviceName, cred, ext)
}

// createAccount materialises a new account for an external identity, or
// merges the candidate into an existing account sharing a verified
// email address.
func (s *AccountService) createAccount(ctx context.Context, serviceName string, cred domain.Credential, ext provider.Profile) (domain.User, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	candidate := domain.User{
		ID:        idx.New().String(),
		Services:  map[string]domain.Credential{serviceName: cred},
		Profile:   domain.Profile{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ext.Email != "" {
		candidate.Emails = []domain.Email{{Address: ext.Email, Verified: ext.EmailVerified}}
	}

	// Profile enrichment is best effort. A provider hiccup must never
	// block account creation.
	s.applyExternalProfile(ctx, &candidate, serviceName, ext)

	// 1. Claim the next global sequence id. Even a candidate that ends up
	// merged away needs one, the columns are unique across tombstones.
	maxID, err := s.Store.Users().MaxGlobalID(ctx)
	if err != nil {
		return domain.User{}, err
	}
	candidate.GlobalID = maxID + 1
	candidate.InvitationPhrase = domain.InvitationPhraseFor(candidate.GlobalID)

	// 2. The candidate starts blocked on every gate until earned
	// otherwise. Gating it before reconciliation matters twice over: a
	// merge must not lift gates the existing account still holds, and a
	// merge failing halfway must not leave an ungated stray behind.
	candidate.IsUninvited = true
	candidate.IsAccessDenied = true
	candidate.IsIncompleteProfile = true
	candidate.IsHidden = true
	candidate.Invitations = s.DefaultInvitations

	// Development bootstrap so local setups are usable immediately.
	if s.Env == "dev" || s.Env == "local" {
		candidate.IsAdmin = true
		candidate.IsUninvited = false
	}

	// 3. Reconcile against accounts sharing one of the candidate's
	// addresses. An unverified collision surfaces to the caller.
	existing, err := s.FindExistingUser(ctx, candidate)
	if err != nil {
		return domain.User{}, err
	}
	if existing != nil {
		log.Info("new identity matches existing account, merging",
			slog.String("service", serviceName),
			slog.String("existing_id", existing.ID),
		)
		if err := s.Store.Users().CreateUser(ctx, candidate); err != nil {
			return domain.User{}, err
		}
		return s.MergeUsers(ctx, *existing, candidate)
	}

	// 4. Fresh account.
	if err := s.Store.Users().CreateUser(ctx, candidate); err != nil {
		return domain.User{}, err
	}

	log.Info("account created",
		slog.String("user_id", candidate.ID),
		slog.String("service", serviceName),
		slog.Int64("global_id", candidate.GlobalID),
	)

	s.notifyNewUser(ctx, candidate)
	return candidate, nil
}

// LinkService attaches a further external identity to an account. If the
// identity or one of its addresses already belongs to another account,
// the two accounts are merged.
func (s *AccountService) LinkService(ctx context.Context, userID, serviceName string, token *oauth2.Token) (domain.User, error) {
	log := slogx.FromContext(ctx)

	adapter, err := s.Providers.Lookup(serviceName)
	if err != nil {
		return domain.User{}, ErrUnknownService
	}
	ext, err := adapter.Fetch(ctx, token)
	if err != nil {
		return domain.User{}, err
	}

	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	// 1. Another account may already own this external identity.
	other, err := s.Store.Users().GetUserByServiceID(ctx, serviceName, ext.ServiceUserID)
	if err == nil && other.ID != user.ID {
		other, err = s.resolveMerged(ctx, other)
		if err != nil {
			return domain.User{}, err
		}
		if other.ID != user.ID {
			log.Info("service already linked elsewhere, merging accounts",
				slog.String("service", serviceName),
				slog.String("other_id", other.ID),
			)
			user, err = s.MergeUsers(ctx, user, other)
			if err != nil {
				return domain.User{}, err
			}
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	// 2. Attach the credential and fold in the external profile.
	user.Services[serviceName] = domain.Credential{
		ID:          ext.ServiceUserID,
		AccessToken: token.AccessToken,
		Email:       ext.Email,
		Raw:         ext.Raw,
	}
	s.applyExternalProfile(ctx, &user, serviceName, ext)
	user.UpdatedAt = time.Now().UTC()
	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}

	// 3. One of the new addresses may belong to yet another account.
	existing, err := s.FindExistingUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	if existing != nil {
		return s.MergeUsers(ctx, user, *existing)
	}
	return user, nil
}

// UnlinkService detaches an external identity. The last remaining
// service cannot be removed, the account would become unreachable.
func (s *AccountService) UnlinkService(ctx context.Context, userID, serviceName string) (domain.User, error) {
	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if _, ok := user.Services[serviceName]; !ok {
		return domain.User{}, ErrUnknownService
	}
	if len(user.Services) == 1 {
		return domain.User{}, ErrLastService
	}

	delete(user.Services, serviceName)
	if user.Profile.Social != nil {
		delete(user.Profile.Social, serviceName)
	}
	pruneOrphanEmails(&user)
	user.UpdatedAt = time.Now().UTC()
	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// pruneOrphanEmails drops unverified addresses no remaining service or
// the profile references. Verified addresses are kept, the user earned
// those.
func pruneOrphanEmails(user *domain.User) {
	referenced := func(address string) bool {
		if address == user.Profile.Email {
			return true
		}
		for _, cred := range user.Services {
			if cred.Email == address {
				return true
			}
		}
		return false
	}

	kept := user.Emails[:0]
	for _, e := range user.Emails {
		if e.Verified || referenced(e.Address) {
			kept = append(kept, e)
		}
	}
	user.Emails = kept
}

// AttachCity assigns the account's home city. The city is immutable once
// set. Founding members of a city skip the invitation gate.
func (s *AccountService) AttachCity(ctx context.Context, userID, cityKey string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	if !domain.IsCity(cityKey) {
		return domain.User{}, ErrUnknownCity
	}

	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.City != "" {
		user.CurrentCity = cityKey
		user.UpdatedAt = time.Now().UTC()
		if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
			return domain.User{}, err
		}
		return user, nil
	}

	user.City = cityKey
	user.CurrentCity = cityKey

	count, err := s.Store.Users().CountByCity(ctx, cityKey)
	if err != nil {
		return domain.User{}, err
	}
	if count < s.AutoInviteLimit && user.IsUninvited {
		user.IsUninvited = false
		user.Invitations = max(user.Invitations, s.AutoInviteGrant)
		log.Info("founding member auto-invited",
			slog.String("user_id", user.ID),
			slog.String("city", cityKey),
		)
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// DeleteAccount soft-deletes an account. The record stays as a tombstone
// for reference integrity, stripped of identifying material.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user.IsHidden = true
	user.IsDeleted = true
	user.DeletedAt = &now
	user.Emails = nil
	user.Services = map[string]domain.Credential{}
	user.UpdatedAt = now
	return s.Store.Users().UpdateUser(ctx, user)
}

// GetUser loads an account, following merge tombstones to the survivor.
func (s *AccountService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.getActiveUser(ctx, userID)
}

func (s *AccountService) getActiveUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnknownUser
		}
		return domain.User{}, err
	}
	return s.resolveMerged(ctx, user)
}

// resolveMerged follows the mergedWith chain to the final survivor.
// Chains are collapsed on merge, the loop guards against records written
// before that rule existed.
func (s *AccountService) resolveMerged(ctx context.Context, user domain.User) (domain.User, error) {
	for hops := 0; user.IsTombstone(); hops++ {
		if hops >= 8 {
			return domain.User{}, errors.New("merge reference chain too deep")
		}
		next, err := s.Store.Users().GetUserByID(ctx, user.MergedWith)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.User{}, ErrUnknownUser
			}
			return domain.User{}, err
		}
		user = next
	}
	return user, nil
}

// notifyNewUser tells the city's ambassadors and the admins about a
// fresh signup. Fire and forget, a mail failure never blocks signup.
func (s *AccountService) notifyNewUser(ctx context.Context, user domain.User) {
	if s.Mailer == nil {
		return
	}
	log := slogx.FromContext(ctx)

	recipients, err := s.Store.Users().ListNotifiable(ctx, user.City)
	if err != nil {
		log.Warn("listing signup notification recipients failed", slog.Any("error", err))
		return
	}

	templates, err := s.Store.EmailTemplates().ListEmailTemplates(ctx)
	if err != nil {
		log.Warn("loading notification templates failed", slog.Any("error", err))
	}

	go s.Mailer.NotifyNewUser(context.WithoutCancel(ctx), recipients, user, templates)
}
