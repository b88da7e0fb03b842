package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

func TestWithTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commit persists the work", func(t *testing.T) {
		st := newTestStore(t)

		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.Users().CreateUser(ctx, testUser("u1", 1))
		})
		require.NoError(t, err)

		_, err = st.Users().GetUserByID(ctx, "u1")
		require.NoError(t, err)
	})

	t.Run("an error rolls everything back", func(t *testing.T) {
		st := newTestStore(t)

		boom := errors.New("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().CreateUser(ctx, testUser("u1", 1)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.Users().GetUserByID(ctx, "u1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestInvitationsRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	for i, id := range []string{"broadcaster", "survivor", "receiver"} {
		require.NoError(t, st.Users().CreateUser(ctx, testUser(id, int64(i+1))))
	}

	inv := domain.Invitation{
		ID:            "inv-1",
		BroadcastUser: "broadcaster",
		ReceivingUser: "receiver",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.Invitations().CreateInvitation(ctx, inv))

	t.Run("one redemption per receiver", func(t *testing.T) {
		dup := inv
		dup.ID = "inv-2"
		require.ErrorIs(t, st.Invitations().CreateInvitation(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("lookup by receiver", func(t *testing.T) {
		got, err := st.Invitations().GetByReceivingUser(ctx, "receiver")
		require.NoError(t, err)
		require.Equal(t, "broadcaster", got.BroadcastUser)

		_, err = st.Invitations().GetByReceivingUser(ctx, "nobody")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("reassign rewrites both sides", func(t *testing.T) {
		require.NoError(t, st.Invitations().ReassignUser(ctx, "broadcaster", "survivor"))

		got, err := st.Invitations().GetByReceivingUser(ctx, "receiver")
		require.NoError(t, err)
		require.Equal(t, "survivor", got.BroadcastUser)
	})
}

func TestEmailTemplatesRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	tpl := domain.EmailTemplate{
		ID:         "tpl-1",
		Identifier: "welcome",
		Subject:    "Welcome!",
		Body:       "Hello {{NAME}}",
		Groups:     []string{"signup"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, st.EmailTemplates().CreateEmailTemplate(ctx, tpl))

	t.Run("identifier is unique", func(t *testing.T) {
		dup := tpl
		dup.ID = "tpl-2"
		require.ErrorIs(t, st.EmailTemplates().CreateEmailTemplate(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("round trip", func(t *testing.T) {
		got, err := st.EmailTemplates().GetEmailTemplateByIdentifier(ctx, "welcome")
		require.NoError(t, err)
		require.Equal(t, tpl.Body, got.Body)
		require.Equal(t, tpl.Groups, got.Groups)
	})

	t.Run("update touches subject, body and groups", func(t *testing.T) {
		tpl.Subject = "Hi!"
		tpl.Groups = []string{"signup", "onboarding"}
		require.NoError(t, st.EmailTemplates().UpdateEmailTemplate(ctx, tpl))

		got, err := st.EmailTemplates().GetEmailTemplateByIdentifier(ctx, "welcome")
		require.NoError(t, err)
		require.Equal(t, "Hi!", got.Subject)
		require.Equal(t, []string{"signup", "onboarding"}, got.Groups)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		require.NoError(t, st.EmailTemplates().DeleteEmailTemplate(ctx, "tpl-1"))
		_, err := st.EmailTemplates().GetEmailTemplateByIdentifier(ctx, "welcome")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, st.EmailTemplates().DeleteEmailTemplate(ctx, "tpl-1"), store.ErrNotFound)
	})
}
