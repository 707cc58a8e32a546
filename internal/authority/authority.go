package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Identity is the account proven by the external identity authority.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Client completes the authorization-code handshake with the identity
// authority on behalf of the completion channel.
type Client interface {
	AuthCodeURL(state string) string
	ResolveIdentity(ctx context.Context, code string) (Identity, error)
}

// OAuthClient implements Client using the standard authorization-code flow.
type OAuthClient struct {
	config  *oauth2.Config
	userURL string
}

// NewOAuthClient builds an authority client for the given OAuth2 endpoints.
// userURL is the resource that returns the authenticated account.
func NewOAuthClient(clientID, clientSecret, redirectURL, authURL, tokenURL, userURL string) *OAuthClient {
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		userURL: userURL,
	}
}

// AuthCodeURL returns the authority URL the browser is redirected to. The
// state parameter carries the correlation token through the round trip.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// ResolveIdentity exchanges the authorization code and fetches the account
// that completed the handshake.
func (c *OAuthClient) ResolveIdentity(ctx context.Context, code string) (Identity, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	client := c.config.Client(ctx, token)
	resp, err := client.Get(c.userURL)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("fetch identity: unexpected status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if identity.ID == "" {
		return Identity{}, fmt.Errorf("authority returned empty account id")
	}
	return identity, nil
}

// StaticClient simulates a successful authority handshake. Useful for
// tests and development mode.
type StaticClient struct {
	BaseURL  string
	Identity Identity
	Err      error
}

// AuthCodeURL returns a synthetic authorize URL carrying the state.
func (s StaticClient) AuthCodeURL(state string) string {
	base := s.BaseURL
	if base == "" {
		base = "https://authority.invalid/authorize"
	}
	return base + "?state=" + state
}

// ResolveIdentity returns the configured identity.
func (s StaticClient) ResolveIdentity(_ context.Context, _ string) (Identity, error) {
	if s.Err != nil {
		return Identity{}, s.Err
	}
	return s.Identity, nil
}
