package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/communehq/commune/internal/commune/domain"
)

func TestGateCascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fullProfile := func(u *domain.User) {
		u.City = "utrecht"
		u.Profile = domain.Profile{Name: "Alice", Email: "a@x.com"}
		u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
		u.IsUninvited = true
		u.IsIncompleteProfile = false
		u.IsAccessDenied = true
		u.IsHidden = true
	}

	t.Run("access cannot clear while still uninvited", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, fullProfile)

		_, err := svc.GrantAccess(ctx, user)
		require.ErrorIs(t, err, ErrNotInvited)

		// Nothing changed in the store.
		got, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, got.IsAccessDenied)
		require.True(t, got.IsUninvited)
		require.Nil(t, got.AccessAt)
	})

	t.Run("access requires a complete profile", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			fullProfile(u)
			u.IsUninvited = false
			u.IsIncompleteProfile = true
		})

		_, err := svc.GrantAccess(ctx, user)
		require.ErrorIs(t, err, ErrProfileIncomplete)
	})

	t.Run("access requires a verified email matching the profile", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			fullProfile(u)
			u.IsUninvited = false
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: false}}
		})

		_, err := svc.GrantAccess(ctx, user)
		require.ErrorIs(t, err, ErrEmailNotVerified)
	})

	t.Run("access clears and stamps accessAt exactly once", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			fullProfile(u)
			u.IsUninvited = false
		})

		granted, err := svc.GrantAccess(ctx, user)
		require.NoError(t, err)
		require.False(t, granted.IsAccessDenied)
		require.NotNil(t, granted.AccessAt)

		first := *granted.AccessAt

		// Re-arming and clearing again must not move the stamp.
		granted.IsAccessDenied = true
		granted, err = svc.GrantAccess(ctx, granted)
		require.NoError(t, err)
		require.NotNil(t, granted.AccessAt)
		require.True(t, granted.AccessAt.Equal(first))
	})

	t.Run("visibility requires access first", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			fullProfile(u)
			u.IsUninvited = false
		})

		_, err := svc.GrantVisibility(ctx, user)
		require.ErrorIs(t, err, ErrNoPermission)
	})

	t.Run("admins stay hidden even after access", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			fullProfile(u)
			u.IsUninvited = false
			u.IsAccessDenied = false
			u.IsAdmin = true
		})

		got, err := svc.GrantVisibility(ctx, user)
		require.NoError(t, err)
		require.True(t, got.IsHidden)
	})

	t.Run("complete profile clears the gate and cascades", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			fullProfile(u)
			u.IsUninvited = false
			u.IsIncompleteProfile = true
		})

		got, err := svc.CompleteProfile(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, got.IsIncompleteProfile)
		require.False(t, got.IsAccessDenied)
		require.False(t, got.IsHidden)
		require.False(t, got.Blocked())
	})

	t.Run("complete profile rejects missing name or email", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			u.IsIncompleteProfile = true
			u.Profile = domain.Profile{Name: "Alice"}
		})

		_, err := svc.CompleteProfile(ctx, user.ID)
		require.ErrorIs(t, err, ErrProfileIncomplete)
	})
}

func TestRedeemInvitation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("redemption spends one credit and clears the gate", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		broadcaster := seedUser(t, st, func(u *domain.User) {
			u.Invitations = 2
		})
		receiver := seedUser(t, st, func(u *domain.User) {
			u.IsUninvited = true
			u.IsAccessDenied = true
		})

		got, err := svc.RedeemInvitation(ctx, broadcaster.InvitationPhrase, receiver.ID)
		require.NoError(t, err)
		require.False(t, got.IsUninvited)

		b, err := st.Users().GetUserByID(ctx, broadcaster.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, b.Invitations)

		inv, err := st.Invitations().GetByReceivingUser(ctx, receiver.ID)
		require.NoError(t, err)
		require.Equal(t, broadcaster.ID, inv.BroadcastUser)
	})

	t.Run("a merged-away phrase credits the surviving account", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		survivor := seedUser(t, st, func(u *domain.User) { u.Invitations = 5 })
		zombie := seedUser(t, st, func(u *domain.User) {
			u.Invitations = 2
			u.MergedWith = survivor.ID
		})
		receiver := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })

		got, err := svc.RedeemInvitation(ctx, zombie.InvitationPhrase, receiver.ID)
		require.NoError(t, err)
		require.False(t, got.IsUninvited)

		inv, err := st.Invitations().GetByReceivingUser(ctx, receiver.ID)
		require.NoError(t, err)
		require.Equal(t, survivor.ID, inv.BroadcastUser)

		b, err := st.Users().GetUserByID(ctx, survivor.ID)
		require.NoError(t, err)
		require.EqualValues(t, 4, b.Invitations)

		// The tombstone itself stays untouched.
		z, err := st.Users().GetUserByID(ctx, zombie.ID)
		require.NoError(t, err)
		require.EqualValues(t, 2, z.Invitations)
	})

	t.Run("racing redemptions cannot overspend credit", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		broadcaster := seedUser(t, st, func(u *domain.User) { u.Invitations = 2 })
		receivers := []domain.User{
			seedUser(t, st, func(u *domain.User) { u.IsUninvited = true }),
			seedUser(t, st, func(u *domain.User) { u.IsUninvited = true }),
			seedUser(t, st, func(u *domain.User) { u.IsUninvited = true }),
		}

		errs := make(chan error, len(receivers))
		var wg sync.WaitGroup
		for _, r := range receivers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.RedeemInvitation(ctx, broadcaster.InvitationPhrase, r.ID)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		failed := 0
		for err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ErrInvitationLimitReached)
				failed++
			}
		}
		require.Equal(t, 1, failed)

		got, err := st.Users().GetUserByID(ctx, broadcaster.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, got.Invitations)
	})

	t.Run("a user can redeem only once", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		broadcaster := seedUser(t, st, func(u *domain.User) { u.Invitations = 5 })
		receiver := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })

		_, err := svc.RedeemInvitation(ctx, broadcaster.InvitationPhrase, receiver.ID)
		require.NoError(t, err)

		_, err = svc.RedeemInvitation(ctx, broadcaster.InvitationPhrase, receiver.ID)
		require.ErrorIs(t, err, ErrAlreadyInvited)
	})

	t.Run("exhausted credit is rejected without mutation", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		broadcaster := seedUser(t, st, func(u *domain.User) { u.Invitations = 0 })
		receiver := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })

		_, err := svc.RedeemInvitation(ctx, broadcaster.InvitationPhrase, receiver.ID)
		require.ErrorIs(t, err, ErrInvitationLimitReached)

		got, err := st.Users().GetUserByID(ctx, receiver.ID)
		require.NoError(t, err)
		require.True(t, got.IsUninvited)
	})

	t.Run("own phrase cannot be redeemed", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		user := seedUser(t, st, func(u *domain.User) {
			u.Invitations = 5
			u.IsUninvited = true
		})

		_, err := svc.RedeemInvitation(ctx, user.InvitationPhrase, user.ID)
		require.ErrorIs(t, err, ErrInvalidPhrase)
	})

	t.Run("unknown phrase is rejected", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		receiver := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })

		_, err := svc.RedeemInvitation(ctx, 999999, receiver.ID)
		require.ErrorIs(t, err, ErrInvalidPhrase)
	})
}

func TestForceInvitation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAccessService(st)

	user := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })

	got, err := svc.ForceInvitation(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.IsUninvited)

	// No credit was spent anywhere and no invitation row exists.
	_, err = st.Invitations().GetByReceivingUser(ctx, user.ID)
	require.Error(t, err)
}

func TestAddInvites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("per city grants touch only that city", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		inCity := seedUser(t, st, func(u *domain.User) { u.City = "lyon" })
		elsewhere := seedUser(t, st, func(u *domain.User) { u.City = "utrecht" })

		require.NoError(t, svc.AddInvitesToCity(ctx, "lyon", 4))

		got, err := st.Users().GetUserByID(ctx, inCity.ID)
		require.NoError(t, err)
		require.EqualValues(t, 4, got.Invitations)

		got, err = st.Users().GetUserByID(ctx, elsewhere.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, got.Invitations)
	})

	t.Run("unknown city is rejected", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccessService(st)

		require.ErrorIs(t, svc.AddInvitesToCity(ctx, "atlantis", 1), ErrUnknownCity)
	})
}
