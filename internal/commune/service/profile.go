package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/provider"
	"github.com/communehq/commune/pkg/slogx"
)

// ExtendProfile re-fetches the external account behind one of the user's
// linked services and folds it into the profile. Existing profile values
// are never overwritten, only gaps are filled.
func (s *AccountService) ExtendProfile(ctx context.Context, userID, serviceName string) (domain.User, error) {
	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	adapter, err := s.Providers.Lookup(serviceName)
	if err != nil {
		return domain.User{}, ErrUnknownService
	}
	cred, ok := user.Services[serviceName]
	if !ok || cred.AccessToken == "" {
		return domain.User{}, ErrUnknownService
	}

	ext, err := adapter.Fetch(ctx, &oauth2.Token{AccessToken: cred.AccessToken})
	if err != nil {
		return domain.User{}, err
	}

	s.applyExternalProfile(ctx, &user, serviceName, ext)
	user.UpdatedAt = time.Now().UTC()
	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// UpdateProfile applies user-submitted profile edits. Only non-empty
// fields are taken over. A new profile email is tracked in the email
// list unverified, changing it therefore re-arms the verification gate
// for users who have not yet gained access.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, edit domain.Profile) (domain.User, error) {
	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	p := &user.Profile
	if edit.Name != "" {
		p.Name = edit.Name
	}
	if edit.Email != "" {
		p.Email = edit.Email
		if !user.HasEmail(edit.Email) {
			user.Emails = append(user.Emails, domain.Email{Address: edit.Email})
		}
	}
	if edit.Picture != "" {
		p.Picture = edit.Picture
	}
	if edit.Company != "" {
		p.Company = edit.Company
	}
	if edit.Homepage != "" {
		p.Homepage = edit.Homepage
	}
	if edit.Location != "" {
		p.Location = edit.Location
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// applyExternalProfile merges a normalised external account into the
// user's profile in place.
//
// Policy: fill gaps only. A field the user already has keeps its value.
// The exception is the picture, which follows the attribution rule
// below so a refreshed avatar propagates without clobbering a picture
// the user deliberately took from a different service.
func (s *AccountService) applyExternalProfile(ctx context.Context, user *domain.User, serviceName string, ext provider.Profile) {
	log := slogx.FromContext(ctx)
	p := &user.Profile

	// 1. Fill plain fields that are currently empty. Empty external
	// values are dropped entirely.
	if p.Name == "" {
		p.Name = ext.Name
	}
	if p.Email == "" {
		p.Email = ext.Email
	}
	if p.Company == "" {
		p.Company = ext.Company
	}
	if p.Homepage == "" {
		p.Homepage = ext.Homepage
	}
	if p.Location == "" {
		p.Location = ext.Location
	}

	// 2. Record per-service attribution.
	if ext.Link != "" {
		if p.Social == nil {
			p.Social = map[string]string{}
		}
		p.Social[serviceName] = ext.Link
	}
	if ext.Picture != "" {
		previous := p.SocialPicture[serviceName]
		if p.SocialPicture == nil {
			p.SocialPicture = map[string]string{}
		}
		p.SocialPicture[serviceName] = ext.Picture

		// Take the new picture over only when the user has none, or when
		// their current one is the stale picture of this same service.
		if p.Picture == "" || p.Picture == previous {
			p.Picture = ext.Picture
		}
	}

	// 3. Track the external address for future identity matching. An
	// address picked up after account creation stays unverified until
	// proven, regardless of what the service claims.
	if ext.Email != "" && !user.HasEmail(ext.Email) {
		user.Emails = append(user.Emails, domain.Email{Address: ext.Email, Verified: false})
	}

	// 4. Guess a current city from the free-form location, best effort.
	if user.CurrentCity == "" && ext.Location != "" && s.Geocoder != nil {
		if key := s.Geocoder.GuessCity(ctx, ext.Location); key != "" {
			user.CurrentCity = key
			log.Debug("current city guessed from profile location",
				slog.String("user_id", user.ID),
				slog.String("city", key),
			)
		}
	}
}
