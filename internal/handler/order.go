package handler

import (
	"net/http"

	"bookstore-payments/internal/dto"
	"bookstore-payments/internal/middleware"
	"bookstore-payments/internal/model"
	"bookstore-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	checkoutService   service.CheckoutService
	settlementService service.SettlementService
}

func NewOrderHandler(checkoutService service.CheckoutService, settlementService service.SettlementService) *OrderHandler {
	return &OrderHandler{
		checkoutService:   checkoutService,
		settlementService: settlementService,
	}
}

func orderResponse(order *model.Order) *dto.OrderResponse {
	items := make([]dto.OrderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = dto.OrderItemResponse{
			BookID:    item.BookID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		}
	}
	return &dto.OrderResponse{
		ID:               order.ID,
		Status:           string(order.Status),
		SaleType:         string(order.SaleType),
		Total:            order.Total.StringFixed(2),
		Currency:         order.Currency,
		PaymentMethod:    string(order.PaymentMethod),
		PaymentReference: order.PaymentReference,
		TransactionID:    order.TransactionID,
		InvoiceNumber:    order.InvoiceNumber,
		PaidAt:           order.PaidAt,
		CreatedAt:        order.CreatedAt,
		Items:            items,
	}
}

func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, session, err := h.checkoutService.CreateOrder(ctx, middleware.UserID(c), &req)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, &dto.CheckoutResponse{
		ID:          order.ID,
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	})
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.checkoutService.GetOrder(ctx, middleware.UserID(c), c.Param("orderID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}

// Complete is the synchronous return path after the provider redirect. The
// session id is re-verified against the provider before anything settles.
func (h *OrderHandler) Complete(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CompletePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.SessionID == "" {
		req.SessionID = c.QueryParam("session_id")
	}

	order, err := h.settlementService.CompleteOrderPayment(ctx, middleware.UserID(c), c.Param("orderID"), req.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) RetryPayment(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.checkoutService.RetryOrderPayment(ctx, middleware.UserID(c), c.Param("orderID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, &dto.CheckoutResponse{
		ID:          c.Param("orderID"),
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	})
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.checkoutService.CancelOrder(ctx, middleware.UserID(c), c.Param("orderID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) Invoice(c echo.Context) error {
	ctx := c.Request().Context()

	pdf, err := h.checkoutService.GetInvoice(ctx, middleware.UserID(c), c.Param("orderID"))
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", pdf)
}

func (h *OrderHandler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.settlementService.RefundOrder(ctx, c.Param("orderID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}
