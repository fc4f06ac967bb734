// Package discord wraps the two external Discord surfaces: the OAuth code
// exchange / profile fetch used for login, and the bot notification channel.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/crewdeck/crewdeck/internal/config"
)

// Profile is the caller's Discord profile as returned by /users/@me.
type Profile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email"`
}

// AvatarURL builds the CDN URL for the profile's avatar, or "" when the
// profile has none.
func (p Profile) AvatarURL() string {
	if p.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", p.ID, p.Avatar)
}

// Client performs the OAuth code exchange and profile fetch. Both are treated
// as fallible black boxes; failures map to an anonymous-state redirect at the
// handler.
type Client struct {
	oauth      oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewClient creates a Discord OAuth client from config. Endpoint URLs are
// overridable for tests.
func NewClient(cfg config.DiscordConfig) *Client {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = config.DefaultDiscordAuth
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = config.DefaultDiscordToken
	}
	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = config.DefaultDiscordAPI
	}
	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		apiBaseURL: apiBaseURL,
		httpClient: http.DefaultClient,
	}
}

// AuthCodeURL builds the provider authorization URL for the given CSRF state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades the authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return token, nil
}

// FetchProfile fetches the caller's profile with the bearer token.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/users/@me", nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("profile fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Profile{}, fmt.Errorf("profile read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile fetch: status %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return Profile{}, fmt.Errorf("profile parse: %w", err)
	}
	if profile.ID == "" {
		return Profile{}, fmt.Errorf("profile parse: empty id")
	}
	return profile, nil
}
