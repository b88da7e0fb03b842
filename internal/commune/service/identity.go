package service

import (
	"context"
	"errors"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

// FindExistingUser looks for another account sharing one of the
// candidate's email addresses. It returns nil when no account matches.
//
// A match through an address the other account holds unverified is a
// conflict, not a match: an unverified email must never silently claim
// an identity. That case fails with ErrDuplicateEmail.
func (s *AccountService) FindExistingUser(ctx context.Context, candidate domain.User) (*domain.User, error) {
	addresses := candidate.EmailAddresses()
	if len(addresses) == 0 {
		return nil, nil
	}

	match, err := s.Store.Users().FindByEmailAddresses(ctx, addresses, candidate.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	for _, e := range match.Emails {
		if e.Verified {
			continue
		}
		for _, addr := range addresses {
			if e.Address == addr {
				return nil, ErrDuplicateEmail
			}
		}
	}

	return &match, nil
}
