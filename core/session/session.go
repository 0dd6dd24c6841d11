// Package session holds the identity of the current actor.
//
// A Session is created in the Loading state, resolved with Refresh once the
// auth layer knows who is calling, and torn down with SignOut.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/user"
)

type State int

const (
	Loading State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// ProfileResolver loads the profile record of an authenticated user id.
type ProfileResolver interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type Session struct {
	mu       sync.RWMutex
	resolver ProfileResolver
	state    State
	usr      user.User
	profile  user.Profile
}

func New(resolver ProfileResolver) *Session {
	return &Session{resolver: resolver, state: Loading}
}

// Refresh resolves the profile of userID.
// An empty userID, or a profile that no longer exists, leaves the session Anonymous.
func (s *Session) Refresh(ctx context.Context, userID string) error {
	if userID == "" {
		s.SignOut()
		return nil
	}

	usr, err := s.resolver.GetByID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			s.SignOut()
			return nil
		}
		return errors.Wrap(err, "resolving profile")
	}
	profile, err := usr.Profile()
	if err != nil {
		return errors.Wrap(err, "resolving profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.usr = usr
	s.profile = profile
	s.state = Authenticated
	return nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usr = user.User{}
	s.profile = nil
	s.state = Anonymous
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usr.ID
}

func (s *Session) User() user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usr
}

// Profile is nil unless the session is Authenticated.
func (s *Session) Profile() user.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Session) Role() user.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usr.Role
}

func (s *Session) IsAuthenticated() bool { return s.State() == Authenticated }

func (s *Session) IsStudent() bool {
	_, ok := s.Profile().(user.StudentProfile)
	return ok
}

func (s *Session) IsTeacher() bool {
	_, ok := s.Profile().(user.TeacherProfile)
	return ok
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's Session, or an Anonymous one when none was set.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return &Session{state: Anonymous}
}
