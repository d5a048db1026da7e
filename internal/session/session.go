// Package session owns the client's authentication state: the current user and
// token pair, their persistence, and silent refresh before expiry.
package session

import "commenthub/pkg/models"

// State is the logical phase of a session, derived from its flags
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "anonymous"
	}
}

// Session is the in-memory authentication state. Only Manager mutates it;
// everyone else gets copies from Snapshot or OnChange.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	IsLoading    bool
	LastError    string
}

// IsAuthenticated holds when both a user and an access token are present
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
