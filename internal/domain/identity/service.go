package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/validation"
)

// TokenIssuer mints the identity token returned by login.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// dummyHash is compared against when the username is unknown so both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("records-dummy-password"), bcrypt.DefaultCost)

type Service struct {
	users    UserRepository
	tokens   TokenIssuer
	validate *validation.Validator
	cost     int
}

func NewService(users UserRepository, tokens TokenIssuer) *Service {
	if tokens == nil {
		tokens = auth.OpaqueTokens{}
	}
	return &Service{users: users, tokens: tokens, validate: validation.New(), cost: bcrypt.DefaultCost}
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			return nil, apperr.Unauthenticated("invalid username or password")
		}
		return nil, apperr.AsStorage("login", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperr.Unauthenticated("invalid username or password")
		}
		return nil, apperr.Storage("verify password", err)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, apperr.Storage("issue token", err)
	}
	return &LoginResponse{User: u.View(), Token: token}, nil
}

// CreateUser hashes the password and stores a new account.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	role, ok := auth.ParseRole(string(in.Role))
	if !ok {
		return nil, apperr.Invalid("role", "is not a known role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Invalid("password", err.Error())
	}

	u := &User{
		ID:        in.ID,
		Username:  strings.TrimSpace(in.Username),
		Password:  string(hash),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Role:      role,
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.AsStorage("create user", err)
	}
	return u, nil
}

// Me returns the user behind the principal. The harness principal has no
// stored user and gets a synthesized view.
func (s *Service) Me(ctx context.Context, p *auth.Principal) (UserView, error) {
	if p == nil || p.ID == "" {
		return UserView{}, apperr.Unauthenticated("user id not provided")
	}
	u, err := s.users.GetByID(ctx, p.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return UserView{ID: p.ID, Role: p.Role, Permissions: p.Permissions.Names()}, nil
		}
		return UserView{}, apperr.AsStorage("get user", err)
	}
	return u.View(), nil
}
