package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPI = "https://api.github.com"

type GitHub struct {
	creds  Credentials
	client *resty.Client
}

func NewGitHub(creds Credentials) *GitHub {
	return &GitHub{creds: creds, client: newClient()}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.creds.ClientID,
		ClientSecret: g.creds.ClientSecret,
		Endpoint:     github.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{"user:email"},
	}
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Company   string `json:"company"`
	Blog      string `json:"blog"`
	Location  string `json:"location"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Fetch(ctx context.Context, token *oauth2.Token) (Profile, error) {
	var user githubUser
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetHeader("Accept", "application/vnd.github+json").
		SetResult(&user).
		Get(githubAPI + "/user")
	if err != nil {
		return Profile{}, fmt.Errorf("%w: github user: %v", ErrFetchFailed, err)
	}
	if resp.IsError() {
		return Profile{}, fmt.Errorf("%w: github user: status %d", ErrFetchFailed, resp.StatusCode())
	}

	p := Profile{
		ServiceUserID: fmt.Sprintf("%d", user.ID),
		Email:         user.Email,
		Name:          user.Name,
		Picture:       user.AvatarURL,
		Link:          user.HTMLURL,
		Company:       user.Company,
		Homepage:      user.Blog,
		Location:      user.Location,
		Raw: map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"email":      user.Email,
			"avatar_url": user.AvatarURL,
			"html_url":   user.HTMLURL,
			"company":    user.Company,
			"blog":       user.Blog,
			"location":   user.Location,
		},
	}
	if p.Name == "" {
		p.Name = user.Login
	}

	// The public profile email is often unset or a noreply alias, so the
	// primary address comes from the email listing when available.
	if email, verified := g.primaryEmail(ctx, token.AccessToken); email != "" {
		p.Email = email
		p.EmailVerified = verified
	}
	if strings.HasSuffix(p.Email, "@users.noreply.github.com") {
		p.Email = ""
		p.EmailVerified = false
	}

	return p, nil
}

func (g *GitHub) primaryEmail(ctx context.Context, accessToken string) (string, bool) {
	var emails []githubEmail
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Accept", "application/vnd.github+json").
		SetResult(&emails).
		Get(githubAPI + "/user/emails")
	if err != nil || resp.IsError() {
		return "", false
	}

	for _, e := range emails {
		if e.Primary && !strings.HasSuffix(e.Email, "@users.noreply.github.com") {
			return e.Email, e.Verified
		}
	}
	for _, e := range emails {
		if !strings.HasSuffix(e.Email, "@users.noreply.github.com") {
			return e.Email, e.Verified
		}
	}
	return "", false
}
