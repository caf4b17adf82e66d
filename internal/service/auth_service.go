package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-service/internal/auth"
	"github.com/spec-kit/conversation-service/internal/config"
	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/repository"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// AuthService resolves requester and responder identities into tokens. Role
// resolution is the only authentication surface the conversation engine
// owns; account management lives in the surrounding ERP.
type AuthService struct {
	tokens     *auth.TokenManager
	requesters repository.RequesterRepository
	responders repository.ResponderRepository
}

// AuthDependencies bundles repositories for the auth service.
type AuthDependencies struct {
	RequesterRepo repository.RequesterRepository
	ResponderRepo repository.ResponderRepository
}

// LoginResult carries an issued token.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Actor     domain.Actor
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		tokens:     auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		requesters: deps.RequesterRepo,
		responders: deps.ResponderRepo,
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// LoginRequester authenticates a student account.
func (s *AuthService) LoginRequester(ctx context.Context, email, password string) (*LoginResult, error) {
	requester, err := s.requesters.GetByEmail(ctx, email)
	if err != nil {
		return nil, loginError(err)
	}
	if err := auth.ComparePassword(requester.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(requester.ID, domain.SubjectTypeRequester, domain.SenderRequester)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Actor:     domain.Actor{ID: requester.ID, Name: requester.Name, Role: domain.SenderRequester},
	}, nil
}

// LoginResponder authenticates an admin/teacher/associate account.
func (s *AuthService) LoginResponder(ctx context.Context, email, password string) (*LoginResult, error) {
	responder, err := s.responders.GetByEmail(ctx, email)
	if err != nil {
		return nil, loginError(err)
	}
	if !responder.Active {
		return nil, apperrors.NewUnauthorized("account disabled")
	}
	if err := auth.ComparePassword(responder.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(responder.ID, domain.SubjectTypeResponder, responder.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Actor:     domain.Actor{ID: responder.ID, Name: responder.Name, Role: responder.Role},
	}, nil
}

func loginError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return apperrors.MapError(err)
}
