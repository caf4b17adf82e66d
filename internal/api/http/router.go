package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-service/internal/api/http/handlers"
	"github.com/spec-kit/conversation-service/internal/auth"
	"github.com/spec-kit/conversation-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Conversations  *handlers.ConversationsHandler
	Sessions       *handlers.SessionsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/requesters/login", cfg.Auth.LoginRequester)
	authGroup.Post("/responders/login", cfg.Auth.LoginResponder)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Get("/units", cfg.Conversations.ListUnits)

	tickets := protected.Group("/tickets")
	tickets.Get("/", cfg.Conversations.ListTickets)
	tickets.Get("/:id", cfg.Conversations.GetConversation)
	tickets.Post("/:id/messages", cfg.Conversations.SendMessage)
	tickets.Post("/:id/close", auth.RequireResponder(domain.SenderAdmin, domain.SenderTeacher, domain.SenderAssociate), cfg.Conversations.CloseTicket)
	tickets.Post("/:id/reopen", auth.RequireResponder(domain.SenderAdmin, domain.SenderTeacher, domain.SenderAssociate), cfg.Conversations.ReopenTicket)

	sessions := protected.Group("/sessions", auth.RequireAnyRole())
	sessions.Post("/", cfg.Sessions.Create)
	sessions.Get("/:id/stream", cfg.Sessions.Stream)
	sessions.Post("/:id/commands", cfg.Sessions.Command)
	sessions.Post("/:id/attachment", cfg.Sessions.Attach)
	sessions.Delete("/:id", cfg.Sessions.Destroy)
}
