package server

import (
	"bookstore-payments/internal/handler"
	appmw "bookstore-payments/internal/middleware"
	"bookstore-payments/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo                *echo.Echo
	orderHandler        *handler.OrderHandler
	contributionHandler *handler.ContributionHandler
	webhookHandler      *handler.WebhookHandler
	operatorToken       string
}

func NewServer(checkoutService service.CheckoutService, settlementService service.SettlementService, operatorToken string) *Server {
	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:                e,
		orderHandler:        handler.NewOrderHandler(checkoutService, settlementService),
		contributionHandler: handler.NewContributionHandler(checkoutService, settlementService),
		webhookHandler:      handler.NewWebhookHandler(settlementService),
		operatorToken:       operatorToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- buyer routes --------
	orders := api.Group("/orders", appmw.Auth())
	orders.POST("", s.orderHandler.Create)
	orders.GET("/:orderID", s.orderHandler.Get)
	orders.POST("/:orderID/complete", s.orderHandler.Complete)
	orders.POST("/:orderID/retry-payment", s.orderHandler.RetryPayment)
	orders.POST("/:orderID/cancel", s.orderHandler.Cancel)
	orders.GET("/:orderID/invoice", s.orderHandler.Invoice)

	// contributions allow anonymous backers, so no auth on create
	api.POST("/contributions", s.contributionHandler.Create)
	api.POST("/contributions/:contributionID/complete", s.contributionHandler.Complete)
	api.GET("/books/:bookID/contributions", s.contributionHandler.ListPublic)

	// -------- operator routes --------
	operator := appmw.RequireOperator(s.operatorToken)
	api.POST("/orders/:orderID/refund", s.orderHandler.Refund, operator)
	api.POST("/contributions/:contributionID/refund", s.contributionHandler.Refund, operator)

	// -------- provider webhooks --------
	webhooks := api.Group("/webhooks")
	webhooks.POST("/card", s.webhookHandler.Card)
	webhooks.POST("/wallet", s.webhookHandler.Wallet)
	webhooks.POST("/mobile-money", s.webhookHandler.MobileMoney)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
