package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-service/internal/domain"
	"github.com/spec-kit/conversation-service/internal/repository"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	Requester   *domain.Requester
	Responder   *domain.Responder
}

// Actor converts the principal into the conversation actor identity.
func (p *Principal) Actor() domain.Actor {
	switch p.SubjectType {
	case domain.SubjectTypeRequester:
		return domain.Actor{ID: p.Requester.ID, Name: p.Requester.Name, Role: domain.SenderRequester}
	case domain.SubjectTypeResponder:
		return domain.Actor{ID: p.Responder.ID, Name: p.Responder.Name, Role: p.Responder.Role}
	}
	return domain.Actor{}
}

// Middleware validates bearer tokens and loads principals.
type Middleware struct {
	tokens     *TokenManager
	requesters repository.RequesterRepository
	responders repository.ResponderRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, requesters repository.RequesterRepository, responders repository.ResponderRepository) *Middleware {
	return &Middleware{tokens: tokens, requesters: requesters, responders: responders}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject}

	switch claims.Subject {
	case domain.SubjectTypeRequester:
		requester, err := m.requesters.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("requester not found")
			}
			return apperrors.MapError(err)
		}
		principal.Requester = requester
	case domain.SubjectTypeResponder:
		responder, err := m.responders.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("responder not found")
			}
			return apperrors.MapError(err)
		}
		if !responder.Active {
			return apperrors.NewUnauthorized("responder inactive")
		}
		principal.Responder = responder
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
