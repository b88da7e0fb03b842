package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
	"github.com/communehq/commune/pkg/slogx"
)

// MergeUsers combines two accounts into one survivor. The account with
// the earlier createdAt survives regardless of argument order, the other
// becomes a tombstone pointing at the survivor.
//
// The whole rewrite runs in one transaction: survivor update, tombstone
// marker, invitation reassignment and merge-chain collapse land together
// or not at all.
func (s *AccountService) MergeUsers(ctx context.Context, a, b domain.User) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Tie-break by creation time, id as a deterministic fallback.
	survivor, zombie := a, b
	if b.CreatedAt.Before(a.CreatedAt) || (b.CreatedAt.Equal(a.CreatedAt) && b.ID < a.ID) {
		survivor, zombie = b, a
	}

	merged := mergeUserData(survivor, zombie)
	merged.UpdatedAt = time.Now().UTC()

	// 2. Apply atomically.
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdateUser(ctx, merged); err != nil {
			return err
		}
		if err := tx.Users().SetMergedWith(ctx, zombie.ID, survivor.ID); err != nil {
			return err
		}
		if err := tx.Invitations().ReassignUser(ctx, zombie.ID, survivor.ID); err != nil {
			return err
		}
		// Collapse chains: anything that pointed at the zombie now
		// points at the final survivor.
		return tx.Users().ReassignMergedWith(ctx, zombie.ID, survivor.ID)
	})
	if err != nil {
		return domain.User{}, err
	}

	log.Info("accounts merged",
		slog.String("survivor_id", survivor.ID),
		slog.String("zombie_id", zombie.ID),
	)
	return merged, nil
}

// mergeUserData computes the merged record. The survivor's explicit
// values win on conflict, gaps are filled from the zombie. Gating flags
// follow asymmetric rules rather than a blind override:
//
//   - restrictive gates (access denied, incomplete profile, uninvited,
//     hidden, deleted) stay set only when BOTH accounts hold them, a
//     requirement either account already satisfied stays satisfied
//   - privileges (admin, ambassador) stick when EITHER account holds
//     them
//
// Invite credit takes the maximum of the two, never the sum, so repeated
// merges cannot inflate it.
func mergeUserData(survivor, zombie domain.User) domain.User {
	merged := survivor

	// Emails: survivor's list first, then the zombie's unseen addresses.
	for _, e := range zombie.Emails {
		if !merged.HasEmail(e.Address) {
			merged.Emails = append(merged.Emails, e)
		}
	}

	// Services: fill in identities the survivor lacks.
	if merged.Services == nil {
		merged.Services = map[string]domain.Credential{}
	}
	for name, cred := range zombie.Services {
		if _, ok := merged.Services[name]; !ok {
			merged.Services[name] = cred
		}
	}

	merged.Profile = mergeProfile(survivor.Profile, zombie.Profile)

	merged.Invitations = max(survivor.Invitations, zombie.Invitations)

	merged.IsAccessDenied = survivor.IsAccessDenied && zombie.IsAccessDenied
	merged.IsIncompleteProfile = survivor.IsIncompleteProfile && zombie.IsIncompleteProfile
	merged.IsUninvited = survivor.IsUninvited && zombie.IsUninvited
	merged.IsHidden = survivor.IsHidden && zombie.IsHidden
	merged.IsDeleted = survivor.IsDeleted && zombie.IsDeleted
	merged.IsAdmin = survivor.IsAdmin || zombie.IsAdmin
	merged.IsAmbassador = survivor.IsAmbassador || zombie.IsAmbassador

	if merged.City == "" {
		merged.City = zombie.City
	}
	if merged.CurrentCity == "" {
		merged.CurrentCity = zombie.CurrentCity
	}
	if merged.AccessAt == nil {
		merged.AccessAt = zombie.AccessAt
	}

	return merged
}

// mergeProfile fills survivor profile gaps from the zombie. Attribution
// maps merge per key with the survivor winning.
func mergeProfile(survivor, zombie domain.Profile) domain.Profile {
	merged := survivor

	if merged.Name == "" {
		merged.Name = zombie.Name
	}
	if merged.Email == "" {
		merged.Email = zombie.Email
	}
	if merged.Picture == "" {
		merged.Picture = zombie.Picture
	}
	if merged.Company == "" {
		merged.Company = zombie.Company
	}
	if merged.Homepage == "" {
		merged.Homepage = zombie.Homepage
	}
	if merged.Location == "" {
		merged.Location = zombie.Location
	}

	merged.Social = mergeStringMap(survivor.Social, zombie.Social)
	merged.SocialPicture = mergeStringMap(survivor.SocialPicture, zombie.SocialPicture)

	return merged
}

func mergeStringMap(survivor, zombie map[string]string) map[string]string {
	if len(zombie) == 0 {
		return survivor
	}
	merged := make(map[string]string, len(survivor)+len(zombie))
	for k, v := range zombie {
		merged[k] = v
	}
	for k, v := range survivor {
		merged[k] = v
	}
	return merged
}
