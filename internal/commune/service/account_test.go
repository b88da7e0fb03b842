package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/provider"
)

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	token := &oauth2.Token{AccessToken: "tok"}

	t.Run("first sign-in creates a fully gated account", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name: "github",
			profile: provider.Profile{
				ServiceUserID: "42",
				Email:         "a@x.com",
				EmailVerified: true,
				Name:          "Alice",
				Picture:       "https://avatars.example/42",
				Link:          "https://github.com/alice",
			},
		})

		user, err := svc.Login(ctx, "github", token)
		require.NoError(t, err)

		require.True(t, user.IsUninvited)
		require.True(t, user.IsAccessDenied)
		require.True(t, user.IsIncompleteProfile)
		require.True(t, user.IsHidden)
		require.EqualValues(t, 3, user.Invitations)
		require.EqualValues(t, 1, user.GlobalID)
		require.EqualValues(t, domain.InvitationPhraseFor(1), user.InvitationPhrase)

		require.Equal(t, "42", user.Services["github"].ID)
		require.Equal(t, "Alice", user.Profile.Name)
		require.Equal(t, "https://github.com/alice", user.Profile.Social["github"])
		require.Equal(t, []domain.Email{{Address: "a@x.com", Verified: true}}, user.Emails)
	})

	t.Run("global ids keep counting up", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st,
			&fakeAdapter{name: "github", profile: provider.Profile{ServiceUserID: "1"}},
			&fakeAdapter{name: "twitter", profile: provider.Profile{ServiceUserID: "2"}},
		)

		first, err := svc.Login(ctx, "github", token)
		require.NoError(t, err)
		second, err := svc.Login(ctx, "twitter", token)
		require.NoError(t, err)

		require.EqualValues(t, 1, first.GlobalID)
		require.EqualValues(t, 2, second.GlobalID)
	})

	t.Run("returning identity signs into the same account", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name:    "github",
			profile: provider.Profile{ServiceUserID: "42", Name: "Alice"},
		})

		first, err := svc.Login(ctx, "github", token)
		require.NoError(t, err)
		again, err := svc.Login(ctx, "github", token)
		require.NoError(t, err)
		require.Equal(t, first.ID, again.ID)

		// Still only one account.
		users, err := st.Users().ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
	})

	t.Run("matching verified email merges into the existing account", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name: "twitter",
			profile: provider.Profile{
				ServiceUserID: "7",
				Email:         "a@x.com",
				EmailVerified: true,
			},
		})

		existing := seedUser(t, st, func(u *domain.User) {
			u.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
			u.Services = map[string]domain.Credential{"github": {ID: "42"}}
		})

		user, err := svc.Login(ctx, "twitter", token)
		require.NoError(t, err)
		require.Equal(t, existing.ID, user.ID)
		require.Equal(t, "7", user.Services["twitter"].ID)
		require.Equal(t, "42", user.Services["github"].ID)
	})

	t.Run("merging does not lift the existing account's gates", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name: "twitter",
			profile: provider.Profile{
				ServiceUserID: "7",
				Email:         "a@x.com",
				EmailVerified: true,
			},
		})

		existing := seedUser(t, st, func(u *domain.User) {
			u.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
			u.Services = map[string]domain.Credential{"github": {ID: "42"}}
			u.IsUninvited = true
			u.IsAccessDenied = true
			u.IsHidden = true
			u.Invitations = 1
		})

		user, err := svc.Login(ctx, "twitter", token)
		require.NoError(t, err)
		require.Equal(t, existing.ID, user.ID)
		require.True(t, user.IsUninvited)
		require.True(t, user.IsAccessDenied)
		require.True(t, user.IsHidden)

		// Credit takes the larger of the two, here the signup default.
		require.EqualValues(t, 3, user.Invitations)
	})

	t.Run("unverified email collision refuses the signup", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name: "twitter",
			profile: provider.Profile{
				ServiceUserID: "7",
				Email:         "a@x.com",
			},
		})

		seedUser(t, st, func(u *domain.User) {
			u.Emails = []domain.Email{{Address: "a@x.com", Verified: false}}
		})

		_, err := svc.Login(ctx, "twitter", token)
		require.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("unknown service is rejected", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		_, err := svc.Login(ctx, "myspace", token)
		require.ErrorIs(t, err, ErrUnknownService)
	})

	t.Run("dev and local environments bootstrap admin accounts", func(t *testing.T) {
		for _, env := range []string{"dev", "local"} {
			st := newTestStore(t)
			svc := newAccountService(st, &fakeAdapter{
				name:    "github",
				profile: provider.Profile{ServiceUserID: "42"},
			})
			svc.Env = env

			user, err := svc.Login(ctx, "github", token)
			require.NoError(t, err)
			require.True(t, user.IsAdmin, env)
			require.False(t, user.IsUninvited, env)
		}
	})
}

func TestLinkService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	token := &oauth2.Token{AccessToken: "tok"}

	t.Run("attaches a new identity to the account", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name: "twitter",
			profile: provider.Profile{
				ServiceUserID: "7",
				Name:          "Alice T",
				Link:          "http://twitter.com/alice",
			},
		})

		user := seedUser(t, st, func(u *domain.User) {
			u.Services = map[string]domain.Credential{"github": {ID: "42"}}
		})

		got, err := svc.LinkService(ctx, user.ID, "twitter", token)
		require.NoError(t, err)
		require.Equal(t, "7", got.Services["twitter"].ID)
		require.Equal(t, "http://twitter.com/alice", got.Profile.Social["twitter"])
	})

	t.Run("identity owned by another account triggers a merge", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st, &fakeAdapter{
			name:    "twitter",
			profile: provider.Profile{ServiceUserID: "7"},
		})

		older := seedUser(t, st, func(u *domain.User) {
			u.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			u.Services = map[string]domain.Credential{"twitter": {ID: "7"}}
		})
		newer := seedUser(t, st, func(u *domain.User) {
			u.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
			u.Services = map[string]domain.Credential{"github": {ID: "42"}}
		})

		got, err := svc.LinkService(ctx, newer.ID, "twitter", token)
		require.NoError(t, err)
		require.Equal(t, older.ID, got.ID)
		require.Equal(t, "7", got.Services["twitter"].ID)
		require.Equal(t, "42", got.Services["github"].ID)

		zombie, err := st.Users().GetUserByID(ctx, newer.ID)
		require.NoError(t, err)
		require.Equal(t, older.ID, zombie.MergedWith)
	})
}

func TestUnlinkService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("removes the credential and its social link", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		user := seedUser(t, st, func(u *domain.User) {
			u.Services = map[string]domain.Credential{
				"github":  {ID: "42"},
				"twitter": {ID: "7"},
			}
			u.Profile.Social = map[string]string{
				"github":  "https://github.com/alice",
				"twitter": "http://twitter.com/alice",
			}
		})

		got, err := svc.UnlinkService(ctx, user.ID, "twitter")
		require.NoError(t, err)
		require.NotContains(t, got.Services, "twitter")
		require.NotContains(t, got.Profile.Social, "twitter")
		require.Contains(t, got.Services, "github")
	})

	t.Run("orphaned unverified addresses are pruned", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		user := seedUser(t, st, func(u *domain.User) {
			u.Services = map[string]domain.Credential{
				"github":  {ID: "42", Email: "a@x.com"},
				"twitter": {ID: "7", Email: "t@x.com"},
			}
			u.Profile.Email = "a@x.com"
			u.Emails = []domain.Email{
				{Address: "a@x.com", Verified: true},
				{Address: "t@x.com", Verified: false},
				{Address: "old@x.com", Verified: true},
			}
		})

		got, err := svc.UnlinkService(ctx, user.ID, "twitter")
		require.NoError(t, err)
		// The twitter address goes, verified addresses stay.
		require.Equal(t, []domain.Email{
			{Address: "a@x.com", Verified: true},
			{Address: "old@x.com", Verified: true},
		}, got.Emails)
	})

	t.Run("the last service cannot be unlinked", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		user := seedUser(t, st, func(u *domain.User) {
			u.Services = map[string]domain.Credential{"github": {ID: "42"}}
		})

		_, err := svc.UnlinkService(ctx, user.ID, "github")
		require.ErrorIs(t, err, ErrLastService)
	})
}

func TestAttachCity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("founding members skip the invitation gate", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st) // AutoInviteLimit 2, grant 10

		first := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })
		got, err := svc.AttachCity(ctx, first.ID, "lyon")
		require.NoError(t, err)
		require.False(t, got.IsUninvited)
		require.EqualValues(t, 10, got.Invitations)
	})

	t.Run("later members keep the gate", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		seedUser(t, st, func(u *domain.User) { u.City = "lyon" })
		seedUser(t, st, func(u *domain.User) { u.City = "lyon" })
		late := seedUser(t, st, func(u *domain.User) { u.IsUninvited = true })

		got, err := svc.AttachCity(ctx, late.ID, "lyon")
		require.NoError(t, err)
		require.True(t, got.IsUninvited)
	})

	t.Run("home city is immutable, current city still moves", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		user := seedUser(t, st, func(u *domain.User) { u.City = "lyon" })

		got, err := svc.AttachCity(ctx, user.ID, "utrecht")
		require.NoError(t, err)
		require.Equal(t, "lyon", got.City)
		require.Equal(t, "utrecht", got.CurrentCity)
	})

	t.Run("unknown city is rejected", func(t *testing.T) {
		st := newTestStore(t)
		svc := newAccountService(st)

		user := seedUser(t, st, nil)
		_, err := svc.AttachCity(ctx, user.ID, "atlantis")
		require.ErrorIs(t, err, ErrUnknownCity)
	})
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := newAccountService(st)

	user := seedUser(t, st, func(u *domain.User) {
		u.Emails = []domain.Email{{Address: "a@x.com", Verified: true}}
		u.Services = map[string]domain.Credential{"github": {ID: "42", AccessToken: "secret"}}
	})

	require.NoError(t, svc.DeleteAccount(ctx, user.ID))

	got, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
	require.True(t, got.IsHidden)
	require.NotNil(t, got.DeletedAt)
	require.Empty(t, got.Emails)
	require.Empty(t, got.Services)
}
