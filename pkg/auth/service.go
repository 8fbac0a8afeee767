package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/storage"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// RegisterRequest is the sign-up input
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password"`
	Role       string `json:"role,omitempty"`
	OfficialID string `json:"official_id,omitempty"`
	Location   string `json:"location,omitempty"`
}

// Session is a signed-in user with its bearer token
type Session struct {
	User      *types.User `json:"user"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
}

// Service manages accounts: registration, sign-in and approval of official
// accounts
type Service struct {
	users  storage.UserStore
	tokens *Tokens
	clock  clockwork.Clock
	logger zerolog.Logger
	cost   int
}

// NewService creates an account service
func NewService(users storage.UserStore, tokens *Tokens, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		users:  users,
		tokens: tokens,
		clock:  clock,
		logger: log.WithComponent("auth"),
		cost:   bcrypt.DefaultCost,
	}
}

// Register creates an account. Citizen accounts (role user) are approved
// immediately and signed in; official accounts need an official id and stay
// pending until an admin approves them, so no token is returned for them.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", types.ErrValidation)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", types.ErrValidation)
	}

	role := types.RoleUser
	if req.Role != "" {
		r, ok := types.ParseRole(req.Role)
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", types.ErrValidation, req.Role)
		}
		role = r
	}
	if role != types.RoleUser && strings.TrimSpace(req.OfficialID) == "" {
		return nil, fmt.Errorf("%w: official id is required for role %s", types.ErrValidation, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid password: %v", types.ErrValidation, err)
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         role,
		OfficialID:   strings.TrimSpace(req.OfficialID),
		Location:     strings.TrimSpace(req.Location),
		Approved:     role == types.RoleUser,
		CreatedAt:    s.clock.Now().UTC(),
	}

	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, fmt.Errorf("%w: username or email already exists", types.ErrValidation)
		}
		return nil, fmt.Errorf("%w: failed to create user: %v", types.ErrStorage, err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("role", string(role)).
		Bool("approved", user.Approved).
		Msg("user registered")

	if !user.Approved {
		return &Session{User: user.Public()}, nil
	}
	return s.session(user)
}

// Login checks credentials and issues a token. Unapproved official
// accounts are refused with ErrForbidden.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", types.ErrValidation)
	}

	user, err := s.users.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", types.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: failed to load user: %v", types.ErrStorage, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", types.ErrAuth)
	}
	if !user.Approved {
		return nil, fmt.Errorf("%w: account pending admin approval", types.ErrForbidden)
	}

	return s.session(user)
}

// Approve marks an official account as approved. Only admins may approve.
func (s *Service) Approve(ctx context.Context, caller *types.Claims, userID string) (*types.User, error) {
	if err := RequireRole(caller, types.RoleAdmin); err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to load user: %v", types.ErrStorage, err)
	}

	if !user.Approved {
		user.Approved = true
		if err := s.users.UpdateUser(user); err != nil {
			return nil, fmt.Errorf("%w: failed to approve user: %v", types.ErrStorage, err)
		}
		s.logger.Info().
			Str("user_id", user.ID).
			Str("approved_by", caller.UserID).
			Msg("user approved")
	}

	return user.Public(), nil
}

func (s *Service) session(user *types.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:      user.Public(),
		Token:     token,
		ExpiresAt: expires.UTC(),
	}, nil
}
