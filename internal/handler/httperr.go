package handler

import (
	"errors"
	"net/http"

	"bookstore-payments/internal/model"

	"github.com/labstack/echo/v4"
)

// httpError maps the domain error taxonomy onto HTTP statuses. Verification
// failures are 409: the call is terminal but the underlying order is still
// recoverable through the retry-payment flow.
func httpError(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrInvalidStateTransition),
		errors.Is(err, model.ErrPaymentVerificationFailed),
		errors.Is(err, model.ErrInsufficientStock):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrProviderUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}
