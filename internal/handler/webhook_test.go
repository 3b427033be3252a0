package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookstore-payments/internal/model"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettlementService struct {
	handleErr    error
	gotProvider  model.PaymentProvider
	gotBody      []byte
	gotSignature string
}

func (s *stubSettlementService) CompleteOrderPayment(context.Context, string, string, string) (*model.Order, error) {
	return nil, nil
}

func (s *stubSettlementService) CompleteContributionPayment(context.Context, string, string, string) (*model.Contribution, error) {
	return nil, nil
}

func (s *stubSettlementService) HandleWebhook(_ context.Context, providerName model.PaymentProvider, header http.Header, body []byte) error {
	s.gotProvider = providerName
	s.gotBody = body
	s.gotSignature = header.Get("X-MM-Signature")
	return s.handleErr
}

func (s *stubSettlementService) RefundOrder(context.Context, string) (*model.Order, error) {
	return nil, nil
}

func (s *stubSettlementService) RefundContribution(context.Context, string) (*model.Contribution, error) {
	return nil, nil
}

func postWebhook(t *testing.T, stub *stubSettlementService, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/mobile-money", strings.NewReader(body))
	req.Header.Set("X-MM-Signature", "sig-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewWebhookHandler(stub)
	return rec, h.MobileMoney(c)
}

func TestWebhookHandler_Accepted(t *testing.T) {
	stub := &stubSettlementService{}
	rec, err := postWebhook(t, stub, `{"event_id":"evt_1"}`)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ProviderMobileMoney, stub.gotProvider)
	// the raw bytes reach the service untouched for signature verification
	assert.Equal(t, `{"event_id":"evt_1"}`, string(stub.gotBody))
	assert.Equal(t, "sig-1", stub.gotSignature)
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	stub := &stubSettlementService{handleErr: model.ErrInvalidSignature}
	_, err := postWebhook(t, stub, `{}`)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestWebhookHandler_VerificationFailure(t *testing.T) {
	stub := &stubSettlementService{handleErr: model.ErrPaymentVerificationFailed}
	_, err := postWebhook(t, stub, `{}`)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Code)
}
