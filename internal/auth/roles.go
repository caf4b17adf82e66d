package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-service/internal/domain"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// RequireResponder ensures the caller holds one of the allowed responder
// roles; with no arguments any responder passes.
func RequireResponder(allowed ...domain.SenderRole) fiber.Handler {
	allowedSet := make(map[domain.SenderRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeResponder || principal.Responder == nil {
			return apperrors.NewForbidden("responder role required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Responder.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated (requester or responder).
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
