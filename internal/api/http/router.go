package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ecoguard/internal/api/http/handlers"
	"github.com/spec-kit/ecoguard/internal/auth"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/logout", cfg.Users.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Users.Me)

	admin := auth.RequireRole(domain.RoleAdministrator)
	client := auth.RequireRole(domain.RoleClient)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Delete("/:id", client, cfg.Tickets.Delete)
	tickets.Post("/:id/areas", admin, cfg.Tickets.SubmitMapping)
	tickets.Post("/:id/upload-foto", client, cfg.Tickets.UploadPhoto)
	tickets.Put("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/finalize", admin, cfg.Tickets.Finalize)
	tickets.Post("/:id/analise-area", admin, cfg.Tickets.RecordVerdict)
	tickets.Post("/:id/mensagem", cfg.Tickets.PostMessage)
	tickets.Get("/:id/areas/:areaId/foto", cfg.Tickets.Photo)
	tickets.Get("/:id/relatorio", cfg.Tickets.Report)
}
