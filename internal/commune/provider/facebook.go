package provider

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const facebookGraph = "https://graph.facebook.com"

type Facebook struct {
	creds  Credentials
	client *resty.Client
}

func NewFacebook(creds Credentials) *Facebook {
	return &Facebook{creds: creds, client: newClient()}
}

func (f *Facebook) Name() string { return "facebook" }

func (f *Facebook) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.creds.ClientID,
		ClientSecret: f.creds.ClientSecret,
		Endpoint:     facebook.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{"email", "public_profile"},
	}
}

type facebookUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Link    string `json:"link"`
	Website string `json:"website"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Work []struct {
		Employer struct {
			Name string `json:"name"`
		} `json:"employer"`
	} `json:"work"`
	Picture struct {
		Data struct {
			IsSilhouette bool `json:"is_silhouette"`
		} `json:"data"`
	} `json:"picture"`
}

func (f *Facebook) Fetch(ctx context.Context, token *oauth2.Token) (Profile, error) {
	var user facebookUser
	resp, err := f.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetQueryParam("fields", "id,name,email,link,website,location,work,picture").
		SetResult(&user).
		Get(facebookGraph + "/me")
	if err != nil {
		return Profile{}, fmt.Errorf("%w: facebook me: %v", ErrFetchFailed, err)
	}
	if resp.IsError() {
		return Profile{}, fmt.Errorf("%w: facebook me: status %d", ErrFetchFailed, resp.StatusCode())
	}

	p := Profile{
		ServiceUserID: user.ID,
		Email:         user.Email,
		EmailVerified: user.Email != "", // Facebook only exposes confirmed addresses
		Name:          user.Name,
		Link:          user.Link,
		Homepage:      user.Website,
		Location:      user.Location.Name,
		Raw: map[string]any{
			"id":      user.ID,
			"name":    user.Name,
			"email":   user.Email,
			"link":    user.Link,
			"website": user.Website,
		},
	}

	// Placeholder silhouettes carry no signal, so only real pictures are
	// taken over.
	if !user.Picture.Data.IsSilhouette {
		p.Picture = facebookGraph + "/" + user.ID + "/picture?type=large"
	}
	if len(user.Work) > 0 {
		p.Company = user.Work[0].Employer.Name
	}

	return p, nil
}
