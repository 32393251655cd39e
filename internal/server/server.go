package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"storefront-payments/internal/config"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/handler"
	"storefront-payments/internal/middleware"
	"storefront-payments/internal/service"
)

type Server struct {
	echo           *echo.Echo
	cfg            *config.Config
	logger         *slog.Logger
	limiter        echomw.RateLimiterStore
	paymentHandler *handler.PaymentHandler
	webhookHandler *handler.WebhookHandler
	adminHandler   *handler.AdminHandler
}

func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	limiter echomw.RateLimiterStore,
	paymentService service.PaymentService,
	webhookService service.WebhookService,
	adminService service.AdminService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewErrorHandler(cfg.Environment.IsProduction(), logger)

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())

	s := &Server{
		echo:           e,
		cfg:            cfg,
		logger:         logger,
		limiter:        limiter,
		paymentHandler: handler.NewPaymentHandler(paymentService),
		webhookHandler: handler.NewWebhookHandler(webhookService),
		adminHandler:   handler.NewAdminHandler(adminService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
	})

	// -------- stripe --------
	stripeGroup := api.Group("/stripe")
	stripeGroup.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.cfg.HTTP.AllowedOrigins,
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	stripeGroup.POST("/create-payment-intent", s.paymentHandler.CreatePaymentIntent, middleware.RateLimit(s.limiter))
	stripeGroup.OPTIONS("/create-payment-intent", s.paymentHandler.Preflight)

	// -------- stripe webhooks --------
	// registered on api rather than the CORS group: the caller is Stripe, not a browser
	api.POST("/stripe/webhook", s.webhookHandler.Receive, echomw.BodyLimit(handler.MaxWebhookBody))
	api.GET("/stripe/webhook", s.webhookHandler.Info)

	// -------- admin --------
	admin := api.Group("/admin", middleware.AdminAuth(s.cfg.Admin.JWTSecret, s.logger))
	admin.GET("/orders", s.adminHandler.ListOrders)
	admin.GET("/orders/:id", s.adminHandler.GetOrder)
	admin.GET("/memberships", s.adminHandler.ListMemberships)
	admin.GET("/outbox/dead", s.adminHandler.ListDeadTasks)
	admin.POST("/outbox/:id/retry", s.adminHandler.RetryTask)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
