package handler

import (
	"net/http"

	"bookstore-payments/internal/dto"
	"bookstore-payments/internal/model"
	"bookstore-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type ContributionHandler struct {
	checkoutService   service.CheckoutService
	settlementService service.SettlementService
}

func NewContributionHandler(checkoutService service.CheckoutService, settlementService service.SettlementService) *ContributionHandler {
	return &ContributionHandler{
		checkoutService:   checkoutService,
		settlementService: settlementService,
	}
}

func contributionResponse(contribution *model.Contribution) *dto.ContributionResponse {
	return &dto.ContributionResponse{
		ID:            contribution.ID,
		BookID:        contribution.BookID,
		Status:        string(contribution.Status),
		Amount:        contribution.Amount.StringFixed(2),
		Currency:      contribution.Currency,
		Reward:        contribution.Reward,
		IsPublic:      contribution.IsPublic,
		PaymentMethod: string(contribution.PaymentMethod),
		PaidAt:        contribution.PaidAt,
		CreatedAt:     contribution.CreatedAt,
	}
}

// Create accepts anonymous contributions: the user reference is attached only
// when the session layer identifies a buyer.
func (h *ContributionHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateContributionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	var userID *string
	if id := c.Request().Header.Get("X-User-Id"); id != "" {
		userID = &id
	}

	contribution, session, err := h.checkoutService.CreateContribution(ctx, userID, &req)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, &dto.CheckoutResponse{
		ID:          contribution.ID,
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
	})
}

func (h *ContributionHandler) Complete(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CompletePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.SessionID == "" {
		req.SessionID = c.QueryParam("session_id")
	}

	contribution, err := h.settlementService.CompleteContributionPayment(ctx, c.Request().Header.Get("X-User-Id"), c.Param("contributionID"), req.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, contributionResponse(contribution))
}

func (h *ContributionHandler) ListPublic(c echo.Context) error {
	ctx := c.Request().Context()

	contributions, err := h.checkoutService.ListPublicContributions(ctx, c.Param("bookID"))
	if err != nil {
		return httpError(err)
	}

	out := make([]*dto.ContributionResponse, len(contributions))
	for i, contribution := range contributions {
		out[i] = contributionResponse(contribution)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ContributionHandler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	contribution, err := h.settlementService.RefundContribution(ctx, c.Param("contributionID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, contributionResponse(contribution))
}
