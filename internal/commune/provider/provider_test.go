package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(NewGitHub(Credentials{}), NewTwitter(Credentials{}))

	adapter, err := reg.Lookup("github")
	require.NoError(t, err)
	require.Equal(t, "github", adapter.Name())

	_, err = reg.Lookup("myspace")
	require.ErrorIs(t, err, ErrUnknownProvider)

	require.ElementsMatch(t, []string{"github", "twitter"}, reg.Names())
}

func TestTwitterPictureSuffix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{
			"https://pbs.twimg.com/profile_images/1/me_normal.jpg",
			"https://pbs.twimg.com/profile_images/1/me.jpg",
		},
		{
			"https://pbs.twimg.com/profile_images/1/me_normal.jpeg",
			"https://pbs.twimg.com/profile_images/1/me.jpeg",
		},
		{
			// Only the trailing size suffix is touched.
			"https://pbs.twimg.com/me_normal_normal.png",
			"https://pbs.twimg.com/me_normal.png",
		},
		{
			"https://pbs.twimg.com/profile_images/1/me.jpg",
			"https://pbs.twimg.com/profile_images/1/me.jpg",
		},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, normalSuffix.ReplaceAllString(tc.in, "$1"), tc.in)
	}
}
