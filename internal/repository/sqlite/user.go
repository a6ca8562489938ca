package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/github-link/internal/apperror"
	"github.com/sakif/github-link/internal/model"
	"github.com/sakif/github-link/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// defaultColumns is the non-sensitive projection: every user column EXCEPT
// github_access_token. GetByID and GetByEmail read this set; only
// GetByIDWithToken adds the token column. Keeping the list in one place
// means a future column can't accidentally join the default projection in
// one query but not another.
const defaultColumns = `id, email, password_hash, github_username, github_id,
	github_profile_url, github_connected_at, created_at, updated_at`

// Create inserts a new user account.
//
// The ID is generated here (rs/xid: sortable, URL-safe, no coordination
// needed) so callers never supply one. A UNIQUE violation on email comes
// back as apperror.ErrConflict — registration surfaces it as 409.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		// modernc's driver reports constraint violations by message, not a
		// typed error, so we match on the constraint text.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID using the default (token-free)
// projection. Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+defaultColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (default projection). Used by login.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+defaultColumns+` FROM users WHERE email = ?`, email)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

// GetByIDWithToken is the explicit sensitive projection: the default columns
// plus github_access_token. The repository-listing flow is its only caller.
func (db *DB) GetByIDWithToken(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT github_access_token, `+defaultColumns+` FROM users WHERE id = ?`, id)

	var u model.User
	var connectedAt sql.NullTime
	err := row.Scan(
		&u.GitHubAccessToken,
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.GitHubUsername,
		&u.GitHubID,
		&u.GitHubProfileURL,
		&connectedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s with token: %w", id, err)
	}
	if connectedAt.Valid {
		u.GitHubConnectedAt = &connectedAt.Time
	}
	return &u, nil
}

// SaveGitHubLink overwrites the user's GitHub linkage in a single UPDATE.
//
// ONE STATEMENT, ON PURPOSE:
// The linkage columns must be all-set or all-clear — the invariant the rest
// of the system relies on (Linked() checks only the username). A single
// UPDATE is atomic in SQLite, so a crash or a concurrent disconnect can
// never leave a token without a username or vice versa. Re-linking simply
// runs the same statement with new values: overwrite, never merge.
func (db *DB) SaveGitHubLink(ctx context.Context, userID string, link *model.GitHubLink) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			github_access_token = ?,
			github_username     = ?,
			github_id           = ?,
			github_profile_url  = ?,
			github_connected_at = ?,
			updated_at          = ?
		 WHERE id = ?`,
		link.AccessToken,
		link.Username,
		link.GitHubID,
		link.ProfileURL,
		link.ConnectedAt,
		time.Now().UTC(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving github link for user %s: %w", userID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// ClearGitHubLink resets every linkage column to the unlinked state.
// Running it on an already-unlinked user rewrites the same zero values —
// idempotent by construction.
func (db *DB) ClearGitHubLink(ctx context.Context, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			github_access_token = '',
			github_username     = '',
			github_id           = 0,
			github_profile_url  = '',
			github_connected_at = NULL,
			updated_at          = ?
		 WHERE id = ?`,
		time.Now().UTC(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clearing github link for user %s: %w", userID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// scanUser reads one default-projection row into a model.User.
// sql.Row and sql.Rows both satisfy this tiny scanner interface, so the
// helper serves single- and multi-row queries alike.
func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var u model.User
	var connectedAt sql.NullTime

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.GitHubUsername,
		&u.GitHubID,
		&u.GitHubProfileURL,
		&connectedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if connectedAt.Valid {
		u.GitHubConnectedAt = &connectedAt.Time
	}
	return &u, nil
}
