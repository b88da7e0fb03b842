package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCityFromHost(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host string
		want string
	}{
		{"utrecht.example.io", "utrecht"},
		{"utrecht.example.io:8080", "utrecht"},
		{"lyon.localhost:3000", "lyon"},
		{"www.example.io", ""},
		{"example.io", ""},
		{"localhost", ""},
		{"utrecht", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CityFromHost(tc.host), tc.host)
	}
}

func TestCityLookups(t *testing.T) {
	t.Parallel()

	require.True(t, IsCity("utrecht"))
	require.False(t, IsCity("atlantis"))

	c, ok := CityByKey("lyon")
	require.True(t, ok)
	require.Equal(t, "Lyon", c.Name)

	_, ok = CityByKey("atlantis")
	require.False(t, ok)
}
