package session

import (
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/models"
)

type Status string

const (
	// StatusLoading means nothing is known yet: never fetched, cleared, or
	// the first fetch is still running.
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	// StatusError means the check failed after its retries for a reason other
	// than a rejected session.
	StatusError Status = "error"
)

// State is a snapshot of the session. User is set only when authenticated
// and is a copy owned by the caller.
type State struct {
	Status    Status
	User      *models.User
	Err       error
	UpdatedAt time.Time
}

func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

func (s State) Loading() bool {
	return s.Status == StatusLoading
}

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}
