// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered user account plus its optional GitHub linkage.
//
// The account itself is identified by email + password (see internal/auth).
// The GitHub* fields form the linkage: they are all populated together when
// the OAuth callback succeeds, and all cleared together on disconnect. A
// partially-populated linkage never exists — the repository writes all the
// linkage columns in a single UPDATE.
//
// WHY `json:"-"` ON GitHubAccessToken?
// The access token is a bearer credential: anyone holding it can call the
// GitHub API as the user. It must never appear in an API response, so we
// exclude it from JSON marshalling entirely. The SQLite repository applies
// the same rule at the SQL level: the default SELECT omits the column, and
// only GetByIDWithToken reads it back.
//
// WHY GitHubID int64?
// GitHub user IDs are integers (e.g. 1234567). Using int64 avoids overflow
// for large GitHub account numbers. Zero means "not linked".
//
// WHY GitHubConnectedAt *time.Time (a pointer)?
// Unlike the string fields, time.Time has no natural "absent" zero value that
// survives a database round trip cleanly. A nil pointer maps to SQL NULL and
// to JSON null — exactly the two states we need to distinguish.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`

	GitHubAccessToken string     `json:"-"`
	GitHubUsername    string     `json:"githubUsername,omitempty"`
	GitHubID          int64      `json:"githubId,omitempty"`
	GitHubProfileURL  string     `json:"githubProfileUrl,omitempty"`
	GitHubConnectedAt *time.Time `json:"githubConnectedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Linked reports whether the user currently has a GitHub account attached.
// The username is the canonical marker: it is set iff a link succeeded.
func (u *User) Linked() bool {
	return u.GitHubUsername != ""
}

// GitHubLink bundles the linkage fields written by a successful OAuth
// callback. Passing them as one value (rather than five parameters) keeps the
// all-or-nothing invariant visible at every call site.
type GitHubLink struct {
	AccessToken string
	Username    string
	GitHubID    int64
	ProfileURL  string
	ConnectedAt time.Time
}

// RepositorySummary is the reduced view of a GitHub repository returned by
// the repository-listing endpoint. GitHub's raw response carries dozens of
// fields; clients of this API get exactly these ten.
//
// The JSON tags are camelCase (our API convention) while GitHub's own
// response is snake_case — the renaming happens in the service layer.
type RepositorySummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"fullName"`
	Description     string `json:"description"`
	Private         bool   `json:"private"`
	HTMLURL         string `json:"htmlUrl"`
	Language        string `json:"language"`
	UpdatedAt       string `json:"updatedAt"`
	StargazersCount int    `json:"stargazersCount"`
	ForksCount      int    `json:"forksCount"`
}
