package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/pkg/idx"
	"github.com/communehq/commune/pkg/slogx"
)

var (
	ErrAlreadyInvited         = errors.New("already invited")
	ErrInvitationLimitReached = errors.New("invitation limit reached")
	ErrInvalidPhrase          = errors.New("invalid invitation phrase")
)

// RedeemInvitation clears the invitation gate for the receiving user by
// spending one invite credit of the user owning the phrase. A user can
// redeem only once, and cannot redeem their own phrase.
func (s *AccessService) RedeemInvitation(ctx context.Context, phrase int64, userID string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	receiver, err := s.getUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	// 1. Validate preconditions before touching anything.
	if !receiver.IsUninvited {
		return domain.User{}, ErrAlreadyInvited
	}

	broadcaster, err := s.Store.Users().GetUserByInvitationPhrase(ctx, phrase)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidPhrase
		}
		return domain.User{}, err
	}
	// A phrase keeps working after its owner was merged away, the credit
	// and the redemption row belong to the surviving account. Tombstones
	// are never mutated.
	broadcaster, err = s.resolveSurvivor(ctx, broadcaster)
	if err != nil {
		return domain.User{}, err
	}
	if broadcaster.ID == receiver.ID {
		return domain.User{}, ErrInvalidPhrase
	}
	if broadcaster.Invitations <= 0 {
		return domain.User{}, ErrInvitationLimitReached
	}

	// 2. Record the redemption, spend the credit and clear the gate in
	// one transaction. The unique receiver constraint backstops a
	// concurrent double redeem, and the guarded decrement makes two
	// receivers racing for the broadcaster's last credit lose cleanly.
	now := time.Now().UTC()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.Invitations().CreateInvitation(ctx, domain.Invitation{
			ID:            idx.New().String(),
			BroadcastUser: broadcaster.ID,
			ReceivingUser: receiver.ID,
			CreatedAt:     now,
		})
		if err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrAlreadyInvited
			}
			return err
		}

		if err := tx.Users().DecrementInvitations(ctx, broadcaster.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvitationLimitReached
			}
			return err
		}

		receiver.IsUninvited = false
		receiver.UpdatedAt = now
		return tx.Users().UpdateUser(ctx, receiver)
	})
	if err != nil {
		return domain.User{}, err
	}

	log.Info("invitation redeemed",
		slog.String("receiver_id", receiver.ID),
		slog.String("broadcaster_id", broadcaster.ID),
	)

	// 3. Advance the remaining gates as far as they will go.
	return s.advance(ctx, receiver), nil
}

// AddInvitesToUser grants extra invite credit to one account.
func (s *AccessService) AddInvitesToUser(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	user.Invitations += amount
	user.UpdatedAt = time.Now().UTC()
	return s.Store.Users().UpdateUser(ctx, user)
}

// AddInvitesToCity grants extra invite credit to every active account of
// a city. An empty city grants to everyone.
func (s *AccessService) AddInvitesToCity(ctx context.Context, city string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if city != "" && !domain.IsCity(city) {
		return ErrUnknownCity
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		users, err := tx.Users().ListAll(ctx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, u := range users {
			if u.IsTombstone() || u.IsDeleted {
				continue
			}
			if city != "" && u.City != city {
				continue
			}
			u.Invitations += amount
			u.UpdatedAt = now
			if err := tx.Users().UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}
