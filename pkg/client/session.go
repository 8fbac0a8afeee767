package client

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// AuthState is the sign-in state of a Session. The zero value is signed
// out.
type AuthState struct {
	User      *types.User
	Token     string
	ExpiresAt time.Time
}

// SignedIn reports whether the state carries a token
func (a AuthState) SignedIn() bool {
	return a.Token != ""
}

// Session tracks who is signed in on a Client and tells watchers about
// every change. Login and Logout update the client's bearer token; an
// expiring token signs the session out on its own.
type Session struct {
	client *Client
	clock  clockwork.Clock

	mu       sync.Mutex
	state    AuthState
	expiry   clockwork.Timer
	watchers map[chan AuthState]struct{}
}

// NewSession creates a signed-out session for c. A nil clock uses the real
// clock.
func NewSession(c *Client, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{
		client:   c,
		clock:    clock,
		watchers: make(map[chan AuthState]struct{}),
	}
}

// State returns the current state
func (s *Session) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Login signs in with username and password
func (s *Session) Login(ctx context.Context, username, password string) (AuthState, error) {
	session, err := s.client.Login(ctx, username, password)
	if err != nil {
		return s.State(), err
	}
	return s.signIn(session), nil
}

// Register creates an account and signs in when the server returns a
// token. Official accounts stay signed out until approved.
func (s *Session) Register(ctx context.Context, req auth.RegisterRequest) (AuthState, *types.User, error) {
	session, err := s.client.Register(ctx, req)
	if err != nil {
		return s.State(), nil, err
	}
	if session.Token == "" {
		return s.State(), session.User, nil
	}
	return s.signIn(session), session.User, nil
}

// Logout signs out. It is a no-op when already signed out.
func (s *Session) Logout() {
	s.set(AuthState{})
}

// Watch returns a channel that yields the current state and then every
// change. A watcher that falls behind only sees the latest state. The
// channel is closed when ctx is done.
func (s *Session) Watch(ctx context.Context) <-chan AuthState {
	ch := make(chan AuthState, 1)

	s.mu.Lock()
	ch <- s.state
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Session) signIn(session *auth.Session) AuthState {
	state := AuthState{
		User:      session.User,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	}
	return s.set(state)
}

func (s *Session) set(state AuthState) AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(state)
}

// setLocked installs state, arms the expiry timer and notifies watchers. It
// returns the state actually installed; an already expired token signs out.
func (s *Session) setLocked(state AuthState) AuthState {
	now := s.clock.Now()
	if state.SignedIn() && !state.ExpiresAt.IsZero() && !state.ExpiresAt.After(now) {
		state = AuthState{}
	}
	if !s.state.SignedIn() && !state.SignedIn() {
		return state
	}

	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if state.SignedIn() && !state.ExpiresAt.IsZero() {
		token := state.Token
		s.expiry = s.clock.AfterFunc(state.ExpiresAt.Sub(now), func() {
			s.expire(token)
		})
	}

	s.state = state
	s.client.SetToken(state.Token)

	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
	return state
}

// expire signs out if token is still the active one
func (s *Session) expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Token != token {
		return
	}
	logger := log.WithComponent("session")
	logger.Info().Msg("session token expired, signing out")
	s.expiry = nil
	s.setLocked(AuthState{})
}
