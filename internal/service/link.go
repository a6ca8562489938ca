// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// LinkService is the heart of this app: it owns the GitHub account-linking
// lifecycle (Unlinked → Linked → Unlinked) and every rule around it. It
// talks to GitHub only through the narrow github.Client interface and to
// storage only through repository.UserRepository, so its tests run on a
// ten-line fake of each.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/github-link/internal/apperror"
	"github.com/sakif/github-link/internal/github"
	"github.com/sakif/github-link/internal/model"
	"github.com/sakif/github-link/internal/repository"
)

// Reason codes for callback outcomes. The callback route communicates
// failure to the frontend exclusively through a redirect carrying one of
// these in its query string — it never renders an error body, because the
// "caller" at that point is a browser halfway through a redirect dance.
const (
	ReasonOAuthDenied   = "oauth_denied"
	ReasonMissingParams = "missing_params"
	ReasonInvalidState  = "invalid_state"
	ReasonTokenExchange = "token_exchange_failed"
	ReasonProfileFetch  = "profile_fetch_failed"
	ReasonUserNotFound  = "user_not_found"
	ReasonServerError   = "server_error"
)

// LinkError is a callback failure tagged with its redirect reason.
//
// CompleteAuthorization walks five fallible steps; each failure branch wraps
// its cause in a LinkError carrying exactly one reason code. The handler
// only ever looks at the Reason — the cause exists for the log line.
type LinkError struct {
	Reason string
	Err    error
}

func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("link failed (%s)", e.Reason)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// CallbackReason extracts the redirect reason from a CompleteAuthorization
// error. Anything that isn't a LinkError is a bug or an unanticipated
// failure — those collapse to server_error rather than leaking.
func CallbackReason(err error) string {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Reason
	}
	return ReasonServerError
}

// LinkStatus is the non-sensitive view of a user's linkage returned by
// Status. The username is a pointer so an unlinked account serialises as
// JSON null, not "".
type LinkStatus struct {
	Connected      bool       `json:"connected"`
	GitHubUsername *string    `json:"githubUsername"`
	ConnectedAt    *time.Time `json:"connectedAt"`
}

// LinkService orchestrates the GitHub account-linking flow.
type LinkService struct {
	users  repository.UserRepository
	gh     github.Client
	logger *slog.Logger
}

// NewLinkService creates a LinkService. The github.Client decides whether
// this is production (HTTPClient) or a test (fake) — the service can't tell.
func NewLinkService(users repository.UserRepository, gh github.Client, logger *slog.Logger) *LinkService {
	return &LinkService{
		users:  users,
		gh:     gh,
		logger: logger,
	}
}

// BeginAuthorization builds the GitHub authorize URL for the given user.
//
// The state parameter encodes {userId} so the unauthenticated callback can
// find its way back to this account. Nothing is stored — the state IS the
// session. No side effects: if the user abandons the GitHub page, no record
// anywhere remembers the attempt.
//
// Fails with apperror.ErrConfiguration when no OAuth client id was supplied;
// the route surfaces that as a 500, not a redirect, since sending the
// browser to GitHub with an empty client_id would strand the user on a
// GitHub error page.
func (s *LinkService) BeginAuthorization(ctx context.Context, userID string) (string, error) {
	if !s.gh.Configured() {
		return "", apperror.Configuration("GitHub OAuth is not configured")
	}

	state := github.EncodeState(userID)
	redirectURL := s.gh.AuthCodeURL(state)

	s.logger.Info("github authorization started", slog.String("userID", userID))
	return redirectURL, nil
}

// CompleteAuthorization finishes the OAuth flow after GitHub redirects back.
//
// The inputs arrive unauthenticated — only the state payload ties the
// request to an account. The steps run strictly in order and each failure
// maps to exactly one reason code:
//
//	errorParam present        → oauth_denied     (user clicked "cancel" on GitHub)
//	code or state missing     → missing_params
//	state undecodable         → invalid_state
//	GitHub rejects the code   → token_exchange_failed
//	profile unusable          → profile_fetch_failed
//	state names a ghost user  → user_not_found
//	anything else             → server_error     (transport, store write, ...)
//
// On success the four linkage fields are overwritten in one write — a
// re-link replaces the previous linkage wholesale. Every failure path
// returns BEFORE the write, so a failed callback leaves the user exactly as
// it found them.
func (s *LinkService) CompleteAuthorization(ctx context.Context, code, state, errorParam string) (*model.User, error) {
	if errorParam != "" {
		return nil, &LinkError{Reason: ReasonOAuthDenied, Err: fmt.Errorf("github returned error %q", errorParam)}
	}
	if code == "" || state == "" {
		return nil, &LinkError{Reason: ReasonMissingParams}
	}

	userID, err := github.DecodeState(state)
	if err != nil {
		return nil, &LinkError{Reason: ReasonInvalidState, Err: err}
	}

	accessToken, err := s.gh.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperror.ErrUpstreamAuth) {
			return nil, &LinkError{Reason: ReasonTokenExchange, Err: err}
		}
		return nil, &LinkError{Reason: ReasonServerError, Err: err}
	}

	profile, err := s.gh.FetchProfile(ctx, accessToken)
	if err != nil {
		if errors.Is(err, apperror.ErrUpstream) || errors.Is(err, apperror.ErrUpstreamAuth) {
			return nil, &LinkError{Reason: ReasonProfileFetch, Err: err}
		}
		return nil, &LinkError{Reason: ReasonServerError, Err: err}
	}

	// Resolve the account named by the state BEFORE writing anything.
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, &LinkError{Reason: ReasonUserNotFound, Err: err}
		}
		return nil, &LinkError{Reason: ReasonServerError, Err: err}
	}

	link := &model.GitHubLink{
		AccessToken: accessToken,
		Username:    profile.Login,
		GitHubID:    profile.ID,
		ProfileURL:  profile.HTMLURL,
		ConnectedAt: time.Now().UTC(),
	}
	if err := s.users.SaveGitHubLink(ctx, userID, link); err != nil {
		return nil, &LinkError{Reason: ReasonServerError, Err: err}
	}

	s.logger.Info("github account linked",
		slog.String("userID", userID),
		slog.String("githubUsername", profile.Login),
	)

	fresh, err := s.users.GetByID(ctx, userID)
	if err != nil {
		// The write landed; only the read-back failed. The linkage exists,
		// so this is still a success — fall back to the values just written
		// rather than sending a linked user to the error page.
		s.logger.Warn("read-back after link failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		user.GitHubUsername = link.Username
		user.GitHubID = link.GitHubID
		user.GitHubProfileURL = link.ProfileURL
		user.GitHubConnectedAt = &link.ConnectedAt
		return user, nil
	}
	return fresh, nil
}

// Status reports the caller's linkage without touching the token: the read
// goes through the default projection, so the token never even enters memory
// here.
func (s *LinkService) Status(ctx context.Context, userID string) (*LinkStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", userID, err)
	}

	status := &LinkStatus{
		Connected:   user.Linked(),
		ConnectedAt: user.GitHubConnectedAt,
	}
	if user.Linked() {
		name := user.GitHubUsername
		status.GitHubUsername = &name
	}
	return status, nil
}

// Disconnect severs the linkage. Idempotent: the repository rewrites the
// unlinked zero values whether or not a link existed, so disconnecting twice
// is indistinguishable from disconnecting once.
func (s *LinkService) Disconnect(ctx context.Context, userID string) error {
	if err := s.users.ClearGitHubLink(ctx, userID); err != nil {
		return fmt.Errorf("clearing github link for user %s: %w", userID, err)
	}

	s.logger.Info("github account disconnected", slog.String("userID", userID))
	return nil
}

// ListRepositories returns the caller's repositories, newest activity first,
// capped at one page of 50.
//
// This is the one read that needs the stored token, so it uses the explicit
// sensitive projection. A user with no token fails fast with NotLinked —
// before any outbound call — so "not linked" is a crisp 400, never a
// confusing empty list or a GitHub 401.
func (s *LinkService) ListRepositories(ctx context.Context, userID string) ([]model.RepositorySummary, error) {
	user, err := s.users.GetByIDWithToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", userID, err)
	}

	if user.GitHubAccessToken == "" {
		return nil, apperror.NotLinked()
	}

	repos, err := s.gh.ListRepositories(ctx, user.GitHubAccessToken)
	if err != nil {
		// ErrUpstreamAuth (dead token → 401, re-link) and ErrUpstream
		// (other GitHub failure → 500) pass through for the handler to map.
		return nil, fmt.Errorf("listing repositories for user %s: %w", userID, err)
	}

	summaries := make([]model.RepositorySummary, 0, len(repos))
	for _, r := range repos {
		summaries = append(summaries, model.RepositorySummary{
			ID:              r.ID,
			Name:            r.Name,
			FullName:        r.FullName,
			Description:     r.Description,
			Private:         r.Private,
			HTMLURL:         r.HTMLURL,
			Language:        r.Language,
			UpdatedAt:       r.UpdatedAt,
			StargazersCount: r.StargazersCount,
			ForksCount:      r.ForksCount,
		})
	}

	return summaries, nil
}
