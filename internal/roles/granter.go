package roles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrRoleUnresolved means the verified role is not configured or does
	// not exist; granting must fail closed in that case.
	ErrRoleUnresolved = errors.New("verified role is not resolved")

	// ErrAccountNotFound means the platform does not know the account or
	// the account is not a member of the guild.
	ErrAccountNotFound = errors.New("account not found")
)

// Granter applies the verified privilege marker to an account. Granting an
// already privileged account is a success, not an error.
type Granter interface {
	Grant(ctx context.Context, guildID, accountID string) error
}

// RESTGranter grants roles through the chat platform REST API. The role
// membership PUT is idempotent on the platform side, which satisfies the
// already-granted-is-success contract for free.
type RESTGranter struct {
	baseURL string
	token   string
	roleID  string
	client  *http.Client
}

// NewRESTGranter builds a platform-API granter. roleID is the privilege
// marker to apply; an empty roleID makes every grant fail closed.
func NewRESTGranter(baseURL, token, roleID string) *RESTGranter {
	return &RESTGranter{
		baseURL: baseURL,
		token:   token,
		roleID:  roleID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Grant adds the verified role to the account in the given guild.
func (g *RESTGranter) Grant(ctx context.Context, guildID, accountID string) error {
	if g.roleID == "" {
		return ErrRoleUnresolved
	}

	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", g.baseURL, guildID, accountID, g.roleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return fmt.Errorf("build grant request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrAccountNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("grant role: status %d: %s", resp.StatusCode, string(body))
	}
}

// StaticGranter records grants in memory. Useful for tests and
// development mode.
type StaticGranter struct {
	Err error

	mu      sync.Mutex
	granted map[string]int
}

// NewStaticGranter builds an always-succeeding granter.
func NewStaticGranter() *StaticGranter {
	return &StaticGranter{granted: make(map[string]int)}
}

// Grant records the grant, or fails with the configured error.
func (s *StaticGranter) Grant(_ context.Context, guildID, accountID string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[guildID+":"+accountID]++
	return nil
}

// Grants returns how many times the account was granted in the guild.
func (s *StaticGranter) Grants(guildID, accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted[guildID+":"+accountID]
}
