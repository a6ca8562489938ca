// Package github is the outbound edge of the service: everything that talks
// to GitHub — the OAuth authorize/token endpoints and the REST API — lives
// behind the narrow Client interface defined here.
//
// WHY SO NARROW AN INTERFACE?
// The rest of the codebase needs precisely four capabilities from GitHub —
// build an authorize URL, trade a code for a token, fetch the profile the
// token belongs to, and list the token's repositories — plus one predicate
// saying whether credentials were configured at all. Keeping the interface
// that narrow means:
//   - service tests substitute a ten-line fake instead of an HTTP server
//   - timeout/retry policy is a constructor concern, invisible to call sites
//   - no other GitHub surface can creep in without showing up in a diff here
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/sakif/github-link/internal/apperror"
)

// repositoryPageSize is how many repositories one listing fetches.
// There is no pagination beyond the first page — the API deliberately
// truncates at 50, most-recently-updated first.
const repositoryPageSize = 50

// outboundTimeout bounds every call to GitHub. Without it, a hung upstream
// connection holds the caller's request open until the OS gives up.
const outboundTimeout = 15 * time.Second

// Profile is the portion of the GitHub /user API response we care about.
// GitHub returns a much larger object — we only unmarshal the fields we need.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type Profile struct {
	Login   string `json:"login"`    // GitHub username, e.g. "octocat"
	ID      int64  `json:"id"`       // GitHub's numeric user ID — stable, never changes
	HTMLURL string `json:"html_url"` // Profile page URL
}

// Repository is the raw (snake_case) shape of one entry in GitHub's
// /user/repos response, reduced to the fields the API exposes downstream.
type Repository struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	Private         bool   `json:"private"`
	HTMLURL         string `json:"html_url"`
	Language        string `json:"language"`
	UpdatedAt       string `json:"updated_at"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
}

// Client is the capability set the link service needs from GitHub.
type Client interface {
	// Configured reports whether OAuth credentials were supplied. The
	// authorize flow refuses to start without them.
	Configured() bool

	// AuthCodeURL builds the GitHub authorization URL carrying the given
	// state. Pure URL construction, no network.
	AuthCodeURL(state string) string

	// ExchangeCode trades an authorization code for an access token.
	// Returns apperror.ErrUpstreamAuth (wrapped) when GitHub rejects the
	// code or returns no token; any other error is a transport failure.
	ExchangeCode(ctx context.Context, code string) (string, error)

	// FetchProfile returns the profile the token authenticates as.
	// Returns apperror.ErrUpstream (wrapped) when GitHub answers but the
	// answer is unusable; a transport failure comes back unwrapped.
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)

	// ListRepositories returns up to repositoryPageSize repositories for
	// the token, most-recently-updated first. A 401 from GitHub maps to
	// apperror.ErrUpstreamAuth — the stored token is dead and the user
	// must re-link.
	ListRepositories(ctx context.Context, accessToken string) ([]Repository, error)
}

// Config carries the OAuth app credentials plus endpoint overrides.
// The zero values of AuthURL/TokenURL/APIBaseURL mean "real GitHub";
// tests point them at an httptest.Server.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// HTTPClient is the production Client backed by golang.org/x/oauth2 for the
// code exchange and a plain *http.Client (with a hard timeout) for the REST
// calls.
type HTTPClient struct {
	oauth   *oauth2.Config
	http    *http.Client
	apiBase string
}

// compile-time check that *HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// NewClient creates an HTTPClient from the given config.
//
// The scope requested is "repo": the repository listing must see private
// repositories too, and GitHub gates those behind the full repo scope.
func NewClient(cfg Config) *HTTPClient {
	endpoint := githuboauth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}

	return &HTTPClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"repo"},
			Endpoint:     endpoint,
		},
		http:    &http.Client{Timeout: outboundTimeout},
		apiBase: apiBase,
	}
}

func (c *HTTPClient) Configured() bool {
	return c.oauth.ClientID != ""
}

func (c *HTTPClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode performs the server-to-server half of the authorization code
// flow: POST to GitHub's token endpoint with the code and our client secret.
//
// ERROR SPLIT:
// The oauth2 library returns *RetrieveError whenever GitHub itself answered —
// a non-2xx status or a 200 carrying an "error" field (GitHub does both,
// depending on the failure). A 2xx with no access_token at all is the third
// GitHub-answered shape, which the library reports as a plain error rather
// than a RetrieveError; it gets matched by message. All three mean GitHub
// rejected the exchange, so they map to ErrUpstreamAuth. Anything else (DNS,
// timeout, connection refused) never reached GitHub and stays a plain
// transport error.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	// The oauth2 package picks its HTTP client out of the context; injecting
	// ours applies the outbound timeout to the exchange as well.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", fmt.Errorf("%w: %v", apperror.UpstreamAuth("GitHub rejected the authorization code"), err)
		}
		if strings.Contains(err.Error(), "missing access_token") {
			return "", fmt.Errorf("%w: %v", apperror.UpstreamAuth("GitHub token response contained no access token"), err)
		}
		return "", fmt.Errorf("github: exchanging code: %w", err)
	}

	return token.AccessToken, nil
}

// FetchProfile calls GET /user with the freshly-exchanged token.
func (c *HTTPClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	resp, err := c.get(ctx, "/user", accessToken)
	if err != nil {
		return nil, fmt.Errorf("github: calling /user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Upstream(fmt.Sprintf("GitHub /user returned status %d", resp.StatusCode))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, apperror.Upstream("GitHub /user response is not valid JSON")
	}

	// A profile without a login is unusable — login is the linkage's
	// canonical marker.
	if profile.Login == "" {
		return nil, apperror.Upstream("GitHub /user response has no login")
	}

	return &profile, nil
}

// ListRepositories calls GET /user/repos for the stored token.
func (c *HTTPClient) ListRepositories(ctx context.Context, accessToken string) ([]Repository, error) {
	path := fmt.Sprintf("/user/repos?per_page=%d&sort=updated", repositoryPageSize)
	resp, err := c.get(ctx, path, accessToken)
	if err != nil {
		return nil, fmt.Errorf("github: calling /user/repos: %w", err)
	}
	defer resp.Body.Close()

	// 401 means the stored token is no longer valid (revoked, expired,
	// scopes changed). Distinct from other failures because the fix is on
	// the user: re-link the account.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apperror.UpstreamAuth("GitHub rejected the stored access token")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Upstream(fmt.Sprintf("GitHub /user/repos returned status %d", resp.StatusCode))
	}

	var repos []Repository
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, apperror.Upstream("GitHub /user/repos response is not valid JSON")
	}

	return repos, nil
}

// get issues an authenticated GET against the REST API base.
func (c *HTTPClient) get(ctx context.Context, path, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	return c.http.Do(req)
}
