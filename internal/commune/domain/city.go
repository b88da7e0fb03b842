package domain

import (
	"net"
	"strings"
)

// City is one community the service hosts. Each city is served from its
// own subdomain (e.g. utrecht.example.io).
type City struct {
	Key  string
	Name string
}

// Cities is the set of communities currently open for signup.
var Cities = []City{
	{Key: "lyon", Name: "Lyon"},
	{Key: "utrecht", Name: "Utrecht"},
	{Key: "enschede", Name: "Enschede"},
	{Key: "amsterdam", Name: "Amsterdam"},
}

// IsCity reports whether key names a known city.
func IsCity(key string) bool {
	for _, c := range Cities {
		if c.Key == key {
			return true
		}
	}
	return false
}

// CityByKey returns the city record for key, if known.
func CityByKey(key string) (City, bool) {
	for _, c := range Cities {
		if c.Key == key {
			return c, true
		}
	}
	return City{}, false
}

// CityFromHost extracts the city key from a request host like
// "utrecht.example.io:8080". Returns "" when the leftmost label is not a
// known city.
func CityFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	label, _, ok := strings.Cut(host, ".")
	if !ok {
		return ""
	}
	if IsCity(label) {
		return label
	}
	return ""
}
