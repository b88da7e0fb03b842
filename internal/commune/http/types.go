package http

import (
	"time"

	"github.com/communehq/commune/internal/commune/domain"
)

type userResponse struct {
	ID               string            `json:"id"`
	GlobalID         int64             `json:"global_id"`
	InvitationPhrase int64             `json:"invitation_phrase"`
	Invitations      int64             `json:"invitations"`
	City             string            `json:"city,omitempty"`
	CurrentCity      string            `json:"current_city,omitempty"`
	Emails           []emailResponse   `json:"emails"`
	Services         []string          `json:"services"`
	Profile          domain.Profile    `json:"profile"`
	Blocked          bool              `json:"blocked"`
	IsUninvited      bool              `json:"is_uninvited"`
	IsIncomplete     bool              `json:"is_incomplete_profile"`
	IsAccessDenied   bool              `json:"is_access_denied"`
	IsHidden         bool              `json:"is_hidden"`
	IsAdmin          bool              `json:"is_admin,omitempty"`
	IsAmbassador     bool              `json:"is_ambassador,omitempty"`
	AccessAt         *time.Time        `json:"access_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type emailResponse struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

func toUserResponse(u domain.User) userResponse {
	resp := userResponse{
		ID:               u.ID,
		GlobalID:         u.GlobalID,
		InvitationPhrase: u.InvitationPhrase,
		Invitations:      u.Invitations,
		City:             u.City,
		CurrentCity:      u.CurrentCity,
		Profile:          u.Profile,
		Blocked:          u.Blocked(),
		IsUninvited:      u.IsUninvited,
		IsIncomplete:     u.IsIncompleteProfile,
		IsAccessDenied:   u.IsAccessDenied,
		IsHidden:         u.IsHidden,
		IsAdmin:          u.IsAdmin,
		IsAmbassador:     u.IsAmbassador,
		AccessAt:         u.AccessAt,
		CreatedAt:        u.CreatedAt,
	}
	for _, e := range u.Emails {
		resp.Emails = append(resp.Emails, emailResponse{Address: e.Address, Verified: e.Verified})
	}
	for name := range u.Services {
		resp.Services = append(resp.Services, name)
	}
	return resp
}

type templateRequest struct {
	Identifier string   `json:"identifier"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Groups     []string `json:"groups"`
}
