package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/conversation-service/internal/domain"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

func newGuardApp(principal *Principal, guard fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		if principal != nil {
			c.Locals(principalKey, principal)
		}
		return c.Next()
	})
	app.Get("/guarded", guard, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func requestGuarded(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/guarded", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRequireResponderAllowsListedRole(t *testing.T) {
	principal := &Principal{
		SubjectType: domain.SubjectTypeResponder,
		Responder:   &domain.Responder{ID: "resp-1", Name: "Rose Admin", Role: domain.SenderAdmin, Active: true},
	}
	app := newGuardApp(principal, RequireResponder(domain.SenderAdmin, domain.SenderTeacher))

	assert.Equal(t, fiber.StatusOK, requestGuarded(t, app))
}

func TestRequireResponderRejectsUnlistedRole(t *testing.T) {
	principal := &Principal{
		SubjectType: domain.SubjectTypeResponder,
		Responder:   &domain.Responder{ID: "resp-2", Name: "Ann Associate", Role: domain.SenderAssociate, Active: true},
	}
	app := newGuardApp(principal, RequireResponder(domain.SenderAdmin))

	assert.Equal(t, fiber.StatusForbidden, requestGuarded(t, app))
}

func TestRequireResponderRejectsRequester(t *testing.T) {
	principal := &Principal{
		SubjectType: domain.SubjectTypeRequester,
		Requester:   &domain.Requester{ID: "req-1", Name: "Sam Student"},
	}
	app := newGuardApp(principal, RequireResponder())

	assert.Equal(t, fiber.StatusForbidden, requestGuarded(t, app))
}

func TestRequireResponderWithoutArgsAllowsAnyResponder(t *testing.T) {
	principal := &Principal{
		SubjectType: domain.SubjectTypeResponder,
		Responder:   &domain.Responder{ID: "resp-3", Name: "Lee Teacher", Role: domain.SenderTeacher, Active: true},
	}
	app := newGuardApp(principal, RequireResponder())

	assert.Equal(t, fiber.StatusOK, requestGuarded(t, app))
}

func TestRequireAnyRoleRejectsAnonymous(t *testing.T) {
	app := newGuardApp(nil, RequireAnyRole())

	assert.Equal(t, fiber.StatusUnauthorized, requestGuarded(t, app))
}

func TestRequireAnyRoleAllowsAuthenticatedCaller(t *testing.T) {
	principal := &Principal{
		SubjectType: domain.SubjectTypeRequester,
		Requester:   &domain.Requester{ID: "req-2", Name: "Sam Student"},
	}
	app := newGuardApp(principal, RequireAnyRole())

	assert.Equal(t, fiber.StatusOK, requestGuarded(t, app))
}
