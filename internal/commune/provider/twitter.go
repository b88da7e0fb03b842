package provider

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const twitterAPI = "https://api.twitter.com"

// normalSuffix matches the size suffix Twitter appends to profile image
// urls. Stripping it yields the original resolution.
var normalSuffix = regexp.MustCompile(`_normal(\.\w{0,4})$`)

type Twitter struct {
	creds  Credentials
	client *resty.Client
}

func NewTwitter(creds Credentials) *Twitter {
	return &Twitter{creds: creds, client: newClient()}
}

func (t *Twitter) Name() string { return "twitter" }

func (t *Twitter) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     t.creds.ClientID,
		ClientSecret: t.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://twitter.com/i/oauth2/authorize",
			TokenURL: twitterAPI + "/2/oauth2/token",
		},
		RedirectURL: redirectURL,
		Scopes:      []string{"users.read", "tweet.read"},
	}
}

type twitterUser struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
		Location        string `json:"location"`
		URL             string `json:"url"`
		Entities        struct {
			URL struct {
				URLs []struct {
					ExpandedURL string `json:"expanded_url"`
				} `json:"urls"`
			} `json:"url"`
		} `json:"entities"`
	} `json:"data"`
}

// Fetch normalises the Twitter account. Twitter never exposes an email
// address or employer, so those fields stay empty.
func (t *Twitter) Fetch(ctx context.Context, token *oauth2.Token) (Profile, error) {
	var user twitterUser
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetQueryParam("user.fields", "profile_image_url,location,url,entities").
		SetResult(&user).
		Get(twitterAPI + "/2/users/me")
	if err != nil {
		return Profile{}, fmt.Errorf("%w: twitter me: %v", ErrFetchFailed, err)
	}
	if resp.IsError() {
		return Profile{}, fmt.Errorf("%w: twitter me: status %d", ErrFetchFailed, resp.StatusCode())
	}

	d := user.Data
	p := Profile{
		ServiceUserID: d.ID,
		Name:          d.Name,
		Picture:       normalSuffix.ReplaceAllString(d.ProfileImageURL, "$1"),
		Link:          "http://twitter.com/" + d.Username,
		Location:      d.Location,
		Homepage:      d.URL,
		Raw: map[string]any{
			"id":                d.ID,
			"name":              d.Name,
			"username":          d.Username,
			"profile_image_url": d.ProfileImageURL,
			"location":          d.Location,
			"url":               d.URL,
		},
	}
	if urls := d.Entities.URL.URLs; len(urls) > 0 && urls[0].ExpandedURL != "" {
		p.Homepage = urls[0].ExpandedURL
	}

	return p, nil
}
