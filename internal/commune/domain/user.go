package domain

import "time"

// Email is a single address on a user's account. Only verified addresses
// participate in identity matching and access checks.
type Email struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

// Credential is the stored OAuth material and raw payload for one linked
// provider. Raw keeps whatever the provider returned last so support staff
// can inspect it; the normalized fields live in Profile.
type Credential struct {
	ID                string         `json:"id"`
	AccessToken       string         `json:"accessToken"`
	AccessTokenSecret string         `json:"accessTokenSecret,omitempty"`
	Email             string         `json:"email,omitempty"`
	Raw               map[string]any `json:"raw,omitempty"`
}

// Profile holds the normalized, user-facing identity fields. Social and
// SocialPicture record which provider contributed a link or picture.
type Profile struct {
	Name          string            `json:"name,omitempty"`
	Email         string            `json:"email,omitempty"`
	Picture       string            `json:"picture,omitempty"`
	Company       string            `json:"company,omitempty"`
	Homepage      string            `json:"homepage,omitempty"`
	Location      string            `json:"location,omitempty"`
	Social        map[string]string `json:"social,omitempty"`
	SocialPicture map[string]string `json:"socialPicture,omitempty"`
}

type User struct {
	ID string

	// GlobalID is a monotonically assigned sequence number; the invitation
	// phrase is derived from it and must stay stable for the account's life.
	GlobalID         int64
	InvitationPhrase int64

	// Invitations is the remaining invite credit. Never negative.
	Invitations int64

	// City is immutable once set. CurrentCity tracks where the user last
	// signed in.
	City        string
	CurrentCity string

	// MergedWith marks this record as a tombstone pointing at the surviving
	// account. Tombstones are never login targets.
	MergedWith string

	Emails   []Email
	Services map[string]Credential
	Profile  Profile

	IsAccessDenied      bool
	IsUninvited         bool
	IsIncompleteProfile bool
	IsHidden            bool
	IsDeleted           bool
	IsAdmin             bool
	IsAmbassador        bool

	// AccessAt is stamped the first time access is granted and never changes
	// afterwards.
	AccessAt  *time.Time
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTombstone reports whether this record has been merged away.
func (u *User) IsTombstone() bool { return u.MergedWith != "" }

// Blocked reports the composite gate state: any gate on means the user is
// not yet a visible, active member.
func (u *User) Blocked() bool {
	return u.IsAccessDenied || u.IsUninvited || u.IsIncompleteProfile || u.IsHidden
}

// EmailAddresses returns all addresses on the account, verified or not.
func (u *User) EmailAddresses() []string {
	out := make([]string, 0, len(u.Emails))
	for _, e := range u.Emails {
		out = append(out, e.Address)
	}
	return out
}

// HasEmail reports whether address is present on the account.
func (u *User) HasEmail(address string) bool {
	for _, e := range u.Emails {
		if e.Address == address {
			return true
		}
	}
	return false
}

// HasVerifiedEmail reports whether address is present and verified.
func (u *User) HasVerifiedEmail(address string) bool {
	for _, e := range u.Emails {
		if e.Address == address && e.Verified {
			return true
		}
	}
	return false
}

// InvitationPhraseFor derives the invite phrase from a global sequence id.
// The offset keeps phrases from colliding with small ids users might guess.
func InvitationPhraseFor(globalID int64) int64 { return globalID*2 + 77 }
