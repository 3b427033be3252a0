package provider

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"bookstore-payments/internal/config"
	"bookstore-payments/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMobileMoneyGateway(baseURL string) *mobileMoneyGateway {
	gw := NewMobileMoneyGateway(&config.MobileMoney{
		BaseApiURL:    baseURL,
		APIKey:        "test-key",
		WebhookSecret: "test-secret",
	}).(*mobileMoneyGateway)
	gw.now = func() time.Time { return time.Unix(1700000000, 0) }
	return gw
}

func signedHeaders(gw *mobileMoneyGateway, body []byte, at time.Time) http.Header {
	ts := strconv.FormatInt(at.Unix(), 10)
	header := http.Header{}
	header.Set("X-MM-Timestamp", ts)
	header.Set("X-MM-Signature", hex.EncodeToString(computeSignature(gw.webhookSecret, ts, body)))
	return header
}

func TestMobileMoneyVerifyWebhookSignature(t *testing.T) {
	gw := newTestMobileMoneyGateway("")
	body := []byte(`{"event_id":"evt_1","event_type":"charge.completed"}`)

	t.Run("valid", func(t *testing.T) {
		header := signedHeaders(gw, body, gw.now())
		require.NoError(t, gw.VerifyWebhookSignature(context.Background(), header, body))
	})

	t.Run("tampered body", func(t *testing.T) {
		header := signedHeaders(gw, body, gw.now())
		err := gw.VerifyWebhookSignature(context.Background(), header, []byte(`{"event_id":"evt_2"}`))
		require.ErrorIs(t, err, model.ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newTestMobileMoneyGateway("")
		other.webhookSecret = []byte("other-secret")
		header := signedHeaders(other, body, gw.now())
		err := gw.VerifyWebhookSignature(context.Background(), header, body)
		require.ErrorIs(t, err, model.ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := signedHeaders(gw, body, gw.now().Add(-signatureTolerance-time.Second))
		err := gw.VerifyWebhookSignature(context.Background(), header, body)
		require.ErrorIs(t, err, model.ErrInvalidSignature)
	})

	t.Run("future timestamp", func(t *testing.T) {
		header := signedHeaders(gw, body, gw.now().Add(signatureTolerance+time.Second))
		err := gw.VerifyWebhookSignature(context.Background(), header, body)
		require.ErrorIs(t, err, model.ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		err := gw.VerifyWebhookSignature(context.Background(), http.Header{}, body)
		require.ErrorIs(t, err, model.ErrInvalidSignature)
	})

	t.Run("non-hex signature", func(t *testing.T) {
		header := signedHeaders(gw, body, gw.now())
		header.Set("X-MM-Signature", "not-hex!")
		err := gw.VerifyWebhookSignature(context.Background(), header, body)
		require.ErrorIs(t, err, model.ErrInvalidSignature)
	})
}

func TestMobileMoneyParseWebhook(t *testing.T) {
	gw := newTestMobileMoneyGateway("")

	evt, err := gw.ParseWebhook([]byte(`{
		"event_id": "evt_1",
		"event_type": "charge.completed",
		"checkout_id": "mm_chk_1",
		"charge_id": "mm_chg_1",
		"amount_minor": 2000,
		"currency": "USD",
		"reference": "order-1"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.EventID)
	assert.Equal(t, EventPaymentCompleted, evt.Kind)
	assert.Equal(t, "mm_chk_1", evt.SessionID)
	assert.Equal(t, "mm_chg_1", evt.CaptureID)
	assert.Equal(t, int64(2000), evt.AmountMinorUnits)
	assert.Equal(t, "order-1", evt.Reference)

	evt, err = gw.ParseWebhook([]byte(`{"event_id":"evt_2","event_type":"charge.refunded","charge_id":"mm_chg_1","refund_id":"mm_ref_1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventRefundCompleted, evt.Kind)
	assert.Equal(t, "mm_ref_1", evt.RefundID)

	evt, err = gw.ParseWebhook([]byte(`{"event_id":"evt_3","event_type":"checkout.expired"}`))
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, evt.Kind)

	_, err = gw.ParseWebhook([]byte(`{"event_type":"charge.completed"}`))
	require.Error(t, err)

	_, err = gw.ParseWebhook([]byte(`not json`))
	require.Error(t, err)
}

func TestMobileMoneyCaptureOrRetrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/checkouts/mm_chk_1", r.URL.Path)
		fmt.Fprint(w, `{
			"checkout_id": "mm_chk_1",
			"status": "completed",
			"amount_minor": 3500,
			"currency": "USD",
			"reference": "order-1",
			"charge_id": "mm_chg_1"
		}`)
	}))
	defer srv.Close()

	gw := newTestMobileMoneyGateway(srv.URL)
	capture, err := gw.CaptureOrRetrieve(context.Background(), "mm_chk_1")
	require.NoError(t, err)
	assert.Equal(t, CaptureStatusCompleted, capture.Status)
	assert.Equal(t, int64(3500), capture.AmountMinorUnits)
	assert.Equal(t, "USD", capture.Currency)
	assert.Equal(t, "order-1", capture.Reference)
	assert.Equal(t, "mm_chg_1", capture.CaptureID)
}

func TestMobileMoneyCaptureOrRetrieve_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := newTestMobileMoneyGateway(srv.URL)
	_, err := gw.CaptureOrRetrieve(context.Background(), "mm_chk_1")
	require.ErrorIs(t, err, model.ErrProviderUnavailable)
}

func TestMobileMoneyRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charges/mm_chg_1/refunds", r.URL.Path)
		fmt.Fprint(w, `{"refund_id":"mm_ref_1"}`)
	}))
	defer srv.Close()

	gw := newTestMobileMoneyGateway(srv.URL)
	refund, err := gw.Refund(context.Background(), "mm_chg_1", nil)
	require.NoError(t, err)
	assert.Equal(t, "mm_ref_1", refund.RefundID)
}
