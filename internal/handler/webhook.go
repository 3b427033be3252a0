package handler

import (
	"io"
	"net/http"

	"bookstore-payments/internal/model"
	"bookstore-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type WebhookHandler struct {
	settlementService service.SettlementService
}

func NewWebhookHandler(settlementService service.SettlementService) *WebhookHandler {
	return &WebhookHandler{
		settlementService: settlementService,
	}
}

// Handle reads the raw body first: every provider signs the exact bytes it
// sent, not a re-serialized parse. A 2xx is returned once the event is
// durably recorded, even when the business effect was a no-op; error
// statuses are reserved for failures where a provider retry can help.
func (h *WebhookHandler) handle(c echo.Context, providerName model.PaymentProvider) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if err := h.settlementService.HandleWebhook(ctx, providerName, c.Request().Header, body); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) Card(c echo.Context) error {
	return h.handle(c, model.ProviderCard)
}

func (h *WebhookHandler) Wallet(c echo.Context) error {
	return h.handle(c, model.ProviderWallet)
}

func (h *WebhookHandler) MobileMoney(c echo.Context) error {
	return h.handle(c, model.ProviderMobileMoney)
}
