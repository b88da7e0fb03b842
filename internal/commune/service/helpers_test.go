package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/internal/commune/store/drivers/sqlite"
	"github.com/communehq/commune/pkg/idx"
	"github.com/communehq/commune/pkg/lockx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplySchema())
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// fakeAdapter stands in for an external login service.
type fakeAdapter struct {
	name    string
	profile provider.Profile
	err     error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{RedirectURL: redirectURL}
}

func (f *fakeAdapter) Fetch(ctx context.Context, token *oauth2.Token) (provider.Profile, error) {
	if f.err != nil {
		return provider.Profile{}, f.err
	}
	return f.profile, nil
}

func newAccountService(st store.Store, adapters ...provider.Adapter) *AccountService {
	return &AccountService{
		Store:              st,
		Providers:          provider.NewRegistry(adapters...),
		Locks:              lockx.New(),
		Env:                "test",
		DefaultInvitations: 3,
		AutoInviteLimit:    2,
		AutoInviteGrant:    10,
	}
}

func newAccessService(st store.Store) *AccessService {
	return &AccessService{Store: st, Locks: lockx.New()}
}

// seedUser writes a user with sensible defaults, applying overrides
// before the insert.
func seedUser(t *testing.T, st store.Store, overrides func(*domain.User)) domain.User {
	t.Helper()

	ctx := context.Background()
	maxID, err := st.Users().MaxGlobalID(ctx)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	u := domain.User{
		ID:               idx.New().String(),
		GlobalID:         maxID + 1,
		InvitationPhrase: domain.InvitationPhraseFor(maxID + 1),
		Services:         map[string]domain.Credential{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if overrides != nil {
		overrides(&u)
	}
	require.NoError(t, st.Users().CreateUser(ctx, u))
	return u
}
