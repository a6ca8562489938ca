package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/sakif/github-link/internal/apperror"
	"github.com/sakif/github-link/internal/github"
	"github.com/sakif/github-link/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// Using a fake (not a mock framework) keeps tests dependency-free and easy
// to read — you can see exactly what the fake does.
type fakeUserRepo struct {
	users  map[string]*model.User // keyed by internal ID
	nextID int
	// set to a non-nil error to simulate a database failure; getByIDErrFrom
	// delays the GetByID failure until the Nth call (zero fails every call)
	saveLinkErr    error
	getByIDErr     error
	getByIDErrFrom int
	getByIDCalls   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

// addUser seeds an account and returns its id.
func (f *fakeUserRepo) addUser(email string) string {
	f.nextID++
	id := fmt.Sprintf("user-%d", f.nextID)
	f.users[id] = &model.User{
		ID:        id,
		Email:     email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return id
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	f.getByIDCalls++
	if f.getByIDErr != nil && f.getByIDCalls >= f.getByIDErrFrom {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	// Default projection: copy WITHOUT the access token
	copied := *u
	copied.GitHubAccessToken = ""
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			copied.GitHubAccessToken = ""
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByIDWithToken(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) SaveGitHubLink(ctx context.Context, userID string, link *model.GitHubLink) error {
	if f.saveLinkErr != nil {
		return f.saveLinkErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.GitHubAccessToken = link.AccessToken
	u.GitHubUsername = link.Username
	u.GitHubID = link.GitHubID
	u.GitHubProfileURL = link.ProfileURL
	connectedAt := link.ConnectedAt
	u.GitHubConnectedAt = &connectedAt
	return nil
}

func (f *fakeUserRepo) ClearGitHubLink(ctx context.Context, userID string) error {
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.GitHubAccessToken = ""
	u.GitHubUsername = ""
	u.GitHubID = 0
	u.GitHubProfileURL = ""
	u.GitHubConnectedAt = nil
	return nil
}

// fakeGitHub is an in-memory github.Client. Each field programs one method.
type fakeGitHub struct {
	configured bool

	exchangeToken string
	exchangeErr   error

	profile    *github.Profile
	profileErr error

	repos    []github.Repository
	reposErr error

	// listCalls counts outbound repository listings, so tests can assert
	// "no outbound call was made".
	listCalls int
}

func (f *fakeGitHub) Configured() bool { return f.configured }

func (f *fakeGitHub) AuthCodeURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) ExchangeCode(ctx context.Context, code string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return f.exchangeToken, nil
}

func (f *fakeGitHub) FetchProfile(ctx context.Context, accessToken string) (*github.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeGitHub) ListRepositories(ctx context.Context, accessToken string) ([]github.Repository, error) {
	f.listCalls++
	if f.reposErr != nil {
		return nil, f.reposErr
	}
	return f.repos, nil
}

// newTestLinkService wires a LinkService with happy-path fakes; individual
// tests override fields to force each failure branch.
func newTestLinkService(t *testing.T) (*LinkService, *fakeUserRepo, *fakeGitHub) {
	t.Helper()
	repo := newFakeUserRepo()
	gh := &fakeGitHub{
		configured:    true,
		exchangeToken: "tok",
		profile:       &github.Profile{Login: "octo", ID: 1, HTMLURL: "https://github.com/octo"},
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewLinkService(repo, gh, logger), repo, gh
}

// =========================================================================
// BeginAuthorization TESTS
// =========================================================================

func TestBeginAuthorization_StateRoundTrip(t *testing.T) {
	svc, repo, _ := newTestLinkService(t)
	userID := repo.addUser("a@example.com")

	redirectURL, err := svc.BeginAuthorization(context.Background(), userID)
	if err != nil {
		t.Fatalf("BeginAuthorization() error = %v", err)
	}

	// Pull the state back out of the URL and decode it: it must name the
	// exact user who started the flow.
	u, err := url.Parse(redirectURL)
	if err != nil {
		t.Fatalf("parsing redirect URL: %v", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatal("redirect URL carries no state parameter")
	}

	got, err := github.DecodeState(state)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if got != userID {
		t.Errorf("decoded state userID = %q, want %q", got, userID)
	}
}

func TestBeginAuthorization_Unconfigured(t *testing.T) {
	svc, repo, gh := newTestLinkService(t)
	gh.configured = false
	userID := repo.addUser("a@example.com")

	_, err := svc.BeginAuthorization(context.Background(), userID)
	if !errors.Is(err, apperror.ErrConfiguration) {
		t.Errorf("BeginAuthorization() error = %v, want ErrConfiguration", err)
	}
}

// =========================================================================
// CompleteAuthorization TESTS — one test per reason code
// =========================================================================

func validState(userID string) string {
	return github.EncodeState(userID)
}

func TestCompleteAuthorization_Success(t *testing.T) {
	svc, repo, _ := newTestLinkService(t)
	userID := repo.addUser("a@example.com")

	user, err := svc.CompleteAuthorization(context.Background(), "abc", validState(userID), "")
	if err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}

	if user.GitHubUsername != "octo" {
		t.Errorf("GitHubUsername = %q, want %q", user.GitHubUsername, "octo")
	}
	if user.GitHubID != 1 {
		t.Errorf("GitHubID = %d, want 1", user.GitHubID)
	}
	if user.GitHubProfileURL != "https://github.com/octo" {
		t.Errorf("GitHubProfileURL = %q", user.GitHubProfileURL)
	}
	if user.GitHubConnectedAt == nil {
		t.Error("GitHubConnectedAt should be set after a successful link")
	}

	// The stored record carries the token (sensitive projection)…
	stored, _ := repo.GetByIDWithToken(context.Background(), userID)
	if stored.GitHubAccessToken != "tok" {
		t.Errorf("stored access token = %q, want %q", stored.GitHubAccessToken, "tok")
	}
	// …but the returned user (default projection) does not.
	if user.GitHubAccessToken != "" {
		t.Error("CompleteAuthorization() must not return the access token")
	}
}

func TestCompleteAuthorization_Relink_Overwrites(t *testing.T) {
	svc, repo, gh := newTestLinkService(t)
	userID := repo.addUser("a@example.com")

	if _, err := svc.CompleteAuthorization(context.Background(), "abc", validState(userID), ""); err != nil {
		t.Fatalf("first link error = %v", err)
	}

	// Second link as a different GitHub identity: every field replaced.
	gh.exchangeToken = "tok-2"
	gh.profile = &github.Profile{Login: "hexo", ID: 2, HTMLURL: "https://github.com/hexo"}

	user, err := svc.CompleteAuthorization(context.Background(), "def", validState(userID), "")
	if err != nil {
		t.Fatalf("re-link error = %v", err)
	}
	if user.GitHubUsername != "hexo" || user.GitHubID != 2 {
		t.Errorf("re-link kept old identity: %+v", user)
	}
	stored, _ := repo.GetByIDWithToken(context.Background(), userID)
	if stored.GitHubAccessToken != "tok-2" {
		t.Errorf("re-link kept old token: %q", stored.GitHubAccessToken)
	}
}

func TestCompleteAuthorization_ReadBackFailureStillSucceeds(t *testing.T) {
	svc, repo, _ := newTestLinkService(t)
	userID := repo.addUser("a@example.com")

	// The state-resolving GetByID (call 1) succeeds; the read-back after the
	// write (call 2) hits a database failure. The linkage landed, so the
	// caller must still get a success — built from the values just written.
	repo.getByIDErr = errors.New("database gone away")
	repo.getByIDErrFrom = 2

	user, err := svc.CompleteAuthorization(context.Background(), "abc", validState(userID), "")
	if err != nil {
		t.Fatalf("CompleteAuthorization() error = %v, want success despite read-back failure", err)
	}
	if user.GitHubUsername != "octo" || user.GitHubID != 1 {
		t.Errorf("fallback user missing linkage fields: %+v", user)
	}
	if user.GitHubConnectedAt == nil {
		t.Error("fallback user has no GitHubConnectedAt")
	}

	stored, _ := repo.GetByIDWithToken(context.Background(), userID)
	if stored.GitHubAccessToken != "tok" {
		t.Errorf("stored access token = %q, want %q", stored.GitHubAccessToken, "tok")
	}
}

func TestCompleteAuthorization_FailureReasons(t *testing.T) {
	// Every failure branch, each producing exactly its own reason code.
	// configure mutates the happy-path fakes to force one branch.
	tests := []struct {
		name       string
		code       string
		state      string
		errorParam string
		configure  func(repo *fakeUserRepo, gh *fakeGitHub, userID string) // may be nil
		wantReason string
	}{
		{
			name:       "user denied on GitHub",
			code:       "abc",
			state:      "anything",
			errorParam: "access_denied",
			wantReason: ReasonOAuthDenied,
		},
		{
			name:       "missing code",
			code:       "",
			state:      "anything",
			wantReason: ReasonMissingParams,
		},
		{
			name:       "missing state",
			code:       "abc",
			state:      "",
			wantReason: ReasonMissingParams,
		},
		{
			name:       "undecodable state",
			code:       "abc",
			state:      "%%%not-base64%%%",
			wantReason: ReasonInvalidState,
		},
		{
			name:  "github rejects the code",
			code:  "bad",
			state: "VALID",
			configure: func(_ *fakeUserRepo, gh *fakeGitHub, _ string) {
				gh.exchangeErr = apperror.UpstreamAuth("bad code")
			},
			wantReason: ReasonTokenExchange,
		},
		{
			name:  "transport failure during exchange",
			code:  "abc",
			state: "VALID",
			configure: func(_ *fakeUserRepo, gh *fakeGitHub, _ string) {
				gh.exchangeErr = errors.New("dial tcp: connection refused")
			},
			wantReason: ReasonServerError,
		},
		{
			name:  "profile has no login",
			code:  "abc",
			state: "VALID",
			configure: func(_ *fakeUserRepo, gh *fakeGitHub, _ string) {
				gh.profileErr = apperror.Upstream("no login in response")
			},
			wantReason: ReasonProfileFetch,
		},
		{
			name:  "state names a missing user",
			code:  "abc",
			state: github.EncodeState("ghost-user"),
			wantReason: ReasonUserNotFound,
		},
		{
			name:  "store write fails",
			code:  "abc",
			state: "VALID",
			configure: func(repo *fakeUserRepo, _ *fakeGitHub, _ string) {
				repo.saveLinkErr = errors.New("disk full")
			},
			wantReason: ReasonServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, gh := newTestLinkService(t)
			userID := repo.addUser("a@example.com")

			state := tt.state
			if state == "VALID" {
				state = validState(userID)
			}
			if tt.configure != nil {
				tt.configure(repo, gh, userID)
			}

			_, err := svc.CompleteAuthorization(context.Background(), tt.code, state, tt.errorParam)
			if err == nil {
				t.Fatal("CompleteAuthorization() should have failed")
			}
			if got := CallbackReason(err); got != tt.wantReason {
				t.Errorf("CallbackReason() = %q, want %q", got, tt.wantReason)
			}

			// No failure path may leave a partial linkage behind.
			if u, ok := repo.users[userID]; ok && tt.wantReason != ReasonServerError {
				if u.GitHubUsername != "" || u.GitHubAccessToken != "" {
					t.Errorf("failed callback wrote linkage fields: %+v", u)
				}
			}
		})
	}
}

// =========================================================================
// Status / Disconnect LIFECYCLE TESTS
// =========================================================================

func TestLinkLifecycle(t *testing.T) {
	svc, repo, _ := newTestLinkService(t)
	userID := repo.addUser("a@example.com")
	ctx := context.Background()

	// Fresh account: unlinked.
	status, err := svc.Status(ctx, userID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Connected {
		t.Error("fresh account reports connected")
	}
	if status.GitHubUsername != nil {
		t.Errorf("fresh account username = %v, want nil", *status.GitHubUsername)
	}

	// Link.
	if _, err := svc.CompleteAuthorization(ctx, "abc", validState(userID), ""); err != nil {
		t.Fatalf("CompleteAuthorization() error = %v", err)
	}

	status, err = svc.Status(ctx, userID)
	if err != nil {
		t.Fatalf("Status() after link error = %v", err)
	}
	if !status.Connected {
		t.Error("linked account reports not connected")
	}
	if status.GitHubUsername == nil || *status.GitHubUsername != "octo" {
		t.Errorf("linked username = %v, want octo", status.GitHubUsername)
	}
	if status.ConnectedAt == nil {
		t.Error("linked account has no connectedAt")
	}

	// Disconnect.
	if err := svc.Disconnect(ctx, userID); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	status, _ = svc.Status(ctx, userID)
	if status.Connected {
		t.Error("disconnected account still reports connected")
	}
	if status.GitHubUsername != nil {
		t.Error("disconnected account still reports a username")
	}
	if status.ConnectedAt != nil {
		t.Error("disconnected account still reports connectedAt")
	}

	// Disconnect again: idempotent, no error.
	if err := svc.Disconnect(ctx, userID); err != nil {
		t.Errorf("second Disconnect() error = %v, want nil", err)
	}
}

// =========================================================================
// ListRepositories TESTS
// =========================================================================

func TestListRepositories_NotLinked(t *testing.T) {
	svc, repo, gh := newTestLinkService(t)
	userID := repo.addUser("a@example.com")

	_, err := svc.ListRepositories(context.Background(), userID)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ListRepositories() on unlinked user error = %v, want ErrValidation", err)
	}

	// The guard must fire BEFORE any outbound call.
	if gh.listCalls != 0 {
		t.Errorf("outbound calls = %d, want 0", gh.listCalls)
	}
}

func TestListRepositories_MapsEveryEntry(t *testing.T) {
	svc, repo, gh := newTestLinkService(t)
	userID := repo.addUser("a@example.com")
	ctx := context.Background()

	if _, err := svc.CompleteAuthorization(ctx, "abc", validState(userID), ""); err != nil {
		t.Fatalf("link error = %v", err)
	}

	gh.repos = []github.Repository{
		{
			ID: 10, Name: "alpha", FullName: "octo/alpha", Description: "first",
			Private: false, HTMLURL: "https://github.com/octo/alpha", Language: "Go",
			UpdatedAt: "2026-08-01T00:00:00Z", StargazersCount: 7, ForksCount: 2,
		},
		{ID: 11, Name: "beta", FullName: "octo/beta", Private: true},
		{ID: 12, Name: "gamma", FullName: "octo/gamma"},
	}

	repos, err := svc.ListRepositories(ctx, userID)
	if err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("len = %d, want 3 (one summary per raw entry)", len(repos))
	}

	want := model.RepositorySummary{
		ID: 10, Name: "alpha", FullName: "octo/alpha", Description: "first",
		Private: false, HTMLURL: "https://github.com/octo/alpha", Language: "Go",
		UpdatedAt: "2026-08-01T00:00:00Z", StargazersCount: 7, ForksCount: 2,
	}
	if repos[0] != want {
		t.Errorf("repos[0] = %+v, want %+v", repos[0], want)
	}
	if !repos[1].Private {
		t.Error("repos[1].Private lost in mapping")
	}
}

func TestListRepositories_TokenRejected(t *testing.T) {
	svc, repo, gh := newTestLinkService(t)
	userID := repo.addUser("a@example.com")
	ctx := context.Background()

	if _, err := svc.CompleteAuthorization(ctx, "abc", validState(userID), ""); err != nil {
		t.Fatalf("link error = %v", err)
	}

	gh.reposErr = apperror.UpstreamAuth("token revoked")

	_, err := svc.ListRepositories(ctx, userID)
	if !errors.Is(err, apperror.ErrUpstreamAuth) {
		t.Errorf("ListRepositories() error = %v, want ErrUpstreamAuth", err)
	}
}
