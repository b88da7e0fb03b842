package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvitationPhraseFor(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 77, InvitationPhraseFor(0))
	require.EqualValues(t, 79, InvitationPhraseFor(1))
	require.EqualValues(t, 277, InvitationPhraseFor(100))
}

func TestUserGates(t *testing.T) {
	t.Parallel()

	u := User{}
	require.False(t, u.Blocked())
	require.False(t, u.IsTombstone())

	u.IsHidden = true
	require.True(t, u.Blocked())

	u.MergedWith = "other"
	require.True(t, u.IsTombstone())
}

func TestUserEmails(t *testing.T) {
	t.Parallel()

	u := User{Emails: []Email{
		{Address: "a@x.com", Verified: true},
		{Address: "b@x.com"},
	}}

	require.Equal(t, []string{"a@x.com", "b@x.com"}, u.EmailAddresses())
	require.True(t, u.HasEmail("b@x.com"))
	require.False(t, u.HasEmail("c@x.com"))
	require.True(t, u.HasVerifiedEmail("a@x.com"))
	require.False(t, u.HasVerifiedEmail("b@x.com"))
}
