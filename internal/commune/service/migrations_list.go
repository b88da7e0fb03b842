package service

import (
	"context"
	"time"

	"github.com/communehq/commune/internal/commune/domain"
	"github.com/communehq/commune/internal/commune/store"
)

// DefaultMigrations is the ordered list of data migrations applied at
// startup. Append only, never reorder or rename entries that have
// shipped.
var DefaultMigrations = []DataMigration{
	{Name: "backfill global ids", Run: migrateBackfillGlobalIDs},
	{Name: "dedupe email addresses", Run: migrateDedupeEmails},
	{Name: "flag incomplete profiles", Run: migrateFlagIncompleteProfiles},
	{Name: "hide deleted accounts", Run: migrateHideDeletedAccounts},
}

// migrateBackfillGlobalIDs assigns a global sequence id and invitation
// phrase to accounts created before those fields existed.
func migrateBackfillGlobalIDs(ctx context.Context, s store.Store) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		users, err := tx.Users().ListAll(ctx)
		if err != nil {
			return err
		}
		next, err := tx.Users().MaxGlobalID(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.GlobalID != 0 {
				continue
			}
			next++
			u.GlobalID = next
			u.InvitationPhrase = domain.InvitationPhraseFor(next)
			u.UpdatedAt = time.Now().UTC()
			if err := tx.Users().UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// migrateDedupeEmails collapses duplicate addresses within a single
// account, keeping the first occurrence. A verified duplicate upgrades
// the kept entry.
func migrateDedupeEmails(ctx context.Context, s store.Store) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		users, err := tx.Users().ListAll(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			seen := make(map[string]int, len(u.Emails))
			deduped := u.Emails[:0]
			changed := false
			for _, e := range u.Emails {
				if i, ok := seen[e.Address]; ok {
					if e.Verified {
						deduped[i].Verified = true
					}
					changed = true
					continue
				}
				seen[e.Address] = len(deduped)
				deduped = append(deduped, e)
			}
			if !changed {
				continue
			}
			u.Emails = deduped
			u.UpdatedAt = time.Now().UTC()
			if err := tx.Users().UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// migrateFlagIncompleteProfiles raises the incomplete-profile gate on
// accounts that predate it and still miss a name or email.
func migrateFlagIncompleteProfiles(ctx context.Context, s store.Store) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		users, err := tx.Users().ListAll(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			incomplete := u.Profile.Name == "" || u.Profile.Email == ""
			if u.IsIncompleteProfile == incomplete {
				continue
			}
			if !incomplete {
				continue
			}
			u.IsIncompleteProfile = true
			u.UpdatedAt = time.Now().UTC()
			if err := tx.Users().UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// migrateHideDeletedAccounts ensures every soft-deleted account is also
// hidden, older delete paths missed the flag.
func migrateHideDeletedAccounts(ctx context.Context, s store.Store) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		users, err := tx.Users().ListAll(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			if !u.IsDeleted || u.IsHidden {
				continue
			}
			u.IsHidden = true
			u.UpdatedAt = time.Now().UTC()
			if err := tx.Users().UpdateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}
