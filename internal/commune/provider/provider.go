// Package provider integrates the external login services. Each adapter
// owns its OAuth flow configuration and the mapping from the service's
// account payload into the normalised Profile shape.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = errors.New("provider: unknown provider")
	ErrFetchFailed     = errors.New("provider: fetching account failed")
)

// Profile is the normalised view of an external account, independent of
// which service it came from.
type Profile struct {
	// ServiceUserID is the stable account id at the external service.
	ServiceUserID string

	Email         string
	EmailVerified bool

	Name     string
	Picture  string
	Link     string
	Company  string
	Homepage string
	Location string

	// Raw holds the service payload as received, kept for auditing and
	// later re-normalisation.
	Raw map[string]any
}

// Adapter is implemented once per external login service.
type Adapter interface {
	// Name is the registry key, e.g. "github".
	Name() string

	// OAuthConfig returns the authorization-code flow configuration with
	// the given callback URL.
	OAuthConfig(redirectURL string) *oauth2.Config

	// Fetch retrieves the external account behind the token and
	// normalises it.
	Fetch(ctx context.Context, token *oauth2.Token) (Profile, error)
}

// Credentials configures one adapter.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Registry resolves adapters by name. It is immutable after construction.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}

// Names lists the registered adapter names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	return out
}

// newClient builds the outbound HTTP client the adapters share.
func newClient() *resty.Client {
	return resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
}
