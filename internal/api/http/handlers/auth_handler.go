package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-service/internal/api/dto"
	"github.com/spec-kit/conversation-service/internal/service"
	apperrors "github.com/spec-kit/conversation-service/pkg/util"
)

// AuthHandler serves requester and responder logins.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// LoginRequester POST /auth/requesters/login.
func (h *AuthHandler) LoginRequester(c *fiber.Ctx) error {
	email, password, err := parseLogin(c)
	if err != nil {
		return err
	}
	result, err := h.service.LoginRequester(c.UserContext(), email, password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": loginResponse(result)})
}

// LoginResponder POST /auth/responders/login.
func (h *AuthHandler) LoginResponder(c *fiber.Ctx) error {
	email, password, err := parseLogin(c)
	if err != nil {
		return err
	}
	result, err := h.service.LoginResponder(c.UserContext(), email, password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": loginResponse(result)})
}

func parseLogin(c *fiber.Ctx) (string, string, error) {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return "", "", apperrors.NewValidationError("invalid payload", nil)
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return "", "", apperrors.NewValidationError("email and password required", nil)
	}
	return email, req.Password, nil
}

func loginResponse(result *service.LoginResult) dto.LoginResponse {
	return dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		ActorID:   result.Actor.ID,
		ActorName: result.Actor.Name,
		Role:      string(result.Actor.Role),
	}
}
