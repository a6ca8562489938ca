package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/github-link/internal/auth"
	"github.com/sakif/github-link/internal/service"
)

// GitHubHandler exposes the account-linking flow over HTTP.
//
// ROUTES:
//   - GET  /api/github/auth         → redirect the browser to GitHub (auth via ?token=)
//   - GET  /api/github/callback     → GitHub redirects here; always 302 to the frontend
//   - GET  /api/github/status       → linkage status (bearer auth)
//   - POST /api/github/disconnect   → sever the linkage (bearer auth)
//   - GET  /api/github/repositories → list the user's repos (bearer auth)
//
// TWO ERROR SURFACES:
// The callback is in the middle of a browser redirect chain, so BOTH its
// outcomes are redirects — success to FrontendSuccessURL, failure to
// FrontendErrorURL?reason=<code>. Every other route speaks JSON and fails
// through writeError.
type GitHubHandler struct {
	links              *service.LinkService
	frontendSuccessURL string
	frontendErrorURL   string
	logger             *slog.Logger
}

// NewGitHubHandler creates a GitHubHandler. The two frontend URLs are fixed
// destinations from config — the callback never redirects anywhere else, so
// an attacker-controlled state can't turn it into an open redirect.
func NewGitHubHandler(
	links *service.LinkService,
	frontendSuccessURL, frontendErrorURL string,
	logger *slog.Logger,
) *GitHubHandler {
	return &GitHubHandler{
		links:              links,
		frontendSuccessURL: frontendSuccessURL,
		frontendErrorURL:   frontendErrorURL,
		logger:             logger,
	}
}

// HandleAuthorize starts the OAuth flow.
//
// HTTP: GET /api/github/auth?token=<jwt>
//
// The RequireQueryAuth middleware has already validated the token (the one
// route where it travels as a query parameter — the frontend hands the URL
// to the browser, which can't set headers). 401s never reach this handler;
// the only failure left is missing OAuth configuration, which is a 500.
func (h *GitHubHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen behind RequireQueryAuth, but be safe.
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	redirectURL, err := h.links.BeginAuthorization(r.Context(), userID)
	if err != nil {
		h.logger.Error("begin authorization failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleCallback completes the OAuth flow.
//
// HTTP: GET /api/github/callback?code=xxx&state=yyy[&error=zzz]
//
// This request comes from GitHub via the user's browser, unauthenticated;
// the state parameter is the only link back to the initiating account. The
// service does all the work — this handler's entire job is turning the
// outcome into the right redirect. It never writes JSON and never returns
// an error status: a browser stuck on a bare 500 page mid-OAuth is a dead
// end, a redirect with a reason code is something the frontend can explain.
func (h *GitHubHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	user, err := h.links.CompleteAuthorization(r.Context(), q.Get("code"), q.Get("state"), q.Get("error"))
	if err != nil {
		reason := service.CallbackReason(err)
		h.logger.Warn("github callback failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, h.errorRedirect(reason), http.StatusFound)
		return
	}

	h.logger.Info("github callback succeeded",
		slog.String("userID", user.ID),
		slog.String("githubUsername", user.GitHubUsername),
	)
	http.Redirect(w, r, h.frontendSuccessURL, http.StatusFound)
}

// HandleStatus reports the caller's linkage.
//
// HTTP: GET /api/github/status
// Auth: Required (RequireAuth middleware sets userID in context)
//
// Response: {"success":true,"connected":bool,"githubUsername":...,"connectedAt":...}
// The access token is excluded by the service's projection — it cannot
// appear here no matter what fields get added to the status later.
func (h *GitHubHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	status, err := h.links.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("status lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"connected":      status.Connected,
		"githubUsername": status.GitHubUsername,
		"connectedAt":    status.ConnectedAt,
	})
}

// HandleDisconnect severs the caller's linkage.
//
// HTTP: POST /api/github/disconnect
// Auth: Required
//
// WHY POST AND NOT GET?
// Disconnecting is a state-changing operation. GET would be vulnerable to
// CSRF and to browsers pre-fetching the URL. POST ensures intentional action.
func (h *GitHubHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.links.Disconnect(r.Context(), userID); err != nil {
		h.logger.Error("disconnect failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "GitHub account disconnected",
	})
}

// HandleRepositories lists the caller's GitHub repositories.
//
// HTTP: GET /api/github/repositories
// Auth: Required
//
// Failure modes, in order of distance from the caller:
//   - 400 validation_error    → no linkage, nothing to list (no outbound call made)
//   - 401 github_auth_failed  → GitHub rejected the stored token; re-link
//   - 500 upstream_error      → GitHub broke some other way
func (h *GitHubHandler) HandleRepositories(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	repos, err := h.links.ListRepositories(r.Context(), userID)
	if err != nil {
		h.logger.Error("repository listing failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"repositories": repos,
	})
}

// errorRedirect appends reason=<code> to the configured frontend error URL,
// preserving any query string already on it.
func (h *GitHubHandler) errorRedirect(reason string) string {
	u, err := url.Parse(h.frontendErrorURL)
	if err != nil {
		// Config is broken; fall back to naive concatenation rather than
		// dropping the reason.
		return h.frontendErrorURL + "?reason=" + url.QueryEscape(reason)
	}
	q := u.Query()
	q.Set("reason", reason)
	u.RawQuery = q.Encode()
	return u.String()
}
