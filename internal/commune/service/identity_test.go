package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/communehq/commune/internal/commune/domain"
)

func TestFindExistingUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns nil when the candidate has no emails", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		match, err := svc.FindExistingUser(ctx, domain.User{ID: "candidate"})
		require.NoError(t, err)
		require.Nil(t, match)
	})

	t.Run("returns nil when nobody shares an address", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		seedUser(t, st, func(u *domain.User) {
			u.Emails = []domain.Email{{Address: "other@x.com", Verified: true}}
		})

		match, err := svc.FindExistingUser(ctx, domain.User{
			ID:     "candidate",
			Emails: []domain.Email{{Address: "a@x.com"}},
		})
		require.NoError(t, err)
		require.Nil(t, match)
	})

	t.Run("matches an account holding the address verified", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		existing := seedUser(t, st, func(u *domain.User) {
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
		})

		match, err := svc.FindExistingUser(ctx, domain.User{
			ID:     "candidate",
			Emails: []domain.Email{{Address: "a@x.com"}},
		})
		require.NoError(t, err)
		require.NotNil(t, match)
		require.Equal(t, existing.ID, match.ID)
	})

	t.Run("unverified collision fails instead of matching", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		seedUser(t, st, func(u *domain.User) {
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: false}}
		})

		_, err := svc.FindExistingUser(ctx, domain.User{
			ID:     "candidate",
			Emails: []domain.Email{{Address: "a@x.com"}},
		})
		require.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("excludes the candidate's own record", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		self := seedUser(t, st, func(u *domain.User) {
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
		})

		match, err := svc.FindExistingUser(ctx, self)
		require.NoError(t, err)
		require.Nil(t, match)
	})

	t.Run("tombstones are never matched", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		zombie := seedUser(t, st, func(u *domain.User) {
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
		})
		survivor := seedUser(t, st, nil)
		require.NoError(t, st.Users().SetMergedWith(ctx, zombie.ID, survivor.ID))

		match, err := svc.FindExistingUser(ctx, domain.User{
			ID:     "candidate",
			Emails: []domain.Email{{Address: "a@x.com"}},
		})
		require.NoError(t, err)
		require.Nil(t, match)
	})
}
