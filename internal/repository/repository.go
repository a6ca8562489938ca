package repository

import (
	"context"

	"github.com/sakif/github-link/internal/model"
)

// UserRepository is the persistence contract for user accounts and their
// GitHub linkage.
//
// PROJECTION RULE:
// The GitHub access token is a credential, so the default read (GetByID)
// never loads it — the column simply isn't in the SELECT. Code that
// genuinely needs the token (the repository-listing flow) must ask for it
// explicitly via GetByIDWithToken. That makes every token read grep-able.
//
// LINKAGE RULE:
// SaveGitHubLink and ClearGitHubLink each write all linkage columns in one
// statement. Callers can't produce a half-linked record.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// GetByIDWithToken is the explicit sensitive projection: the returned
	// user includes GitHubAccessToken.
	GetByIDWithToken(ctx context.Context, id string) (*model.User, error)

	// SaveGitHubLink overwrites the user's linkage with the given values.
	// Re-linking replaces, never merges.
	SaveGitHubLink(ctx context.Context, userID string, link *model.GitHubLink) error

	// ClearGitHubLink resets every linkage column. Clearing an already
	// unlinked user is a no-op, not an error.
	ClearGitHubLink(ctx context.Context, userID string) error
}
