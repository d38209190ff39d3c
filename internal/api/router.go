package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoswagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/identitylabs/identity-system/docs"
	"github.com/identitylabs/identity-system/internal/api/handler"
	"github.com/identitylabs/identity-system/internal/api/handlers"
	"github.com/identitylabs/identity-system/internal/api/middleware"
	"github.com/identitylabs/identity-system/internal/core/ports"
)

// Deps carries the wired collaborators the router needs.
type Deps struct {
	AuthService ports.AuthService
	Mongo       *mongo.Database
	Redis       *redis.Client
	Logger      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("identity"))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.AuthService)
	authMiddleware := middleware.Auth(deps.AuthService)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/token", authHandler.Login)
	e.POST("/auth/refresh", authHandler.Refresh)

	// --- Protected routes ---
	e.GET("/users/me", authHandler.Me, authMiddleware)

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operational endpoints ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoswagger.WrapHandler)

	return e
}
