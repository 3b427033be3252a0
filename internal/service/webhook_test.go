package service_test

import (
	"context"
	"net/http"
	"testing"

	"bookstore-payments/internal/dto"
	"bookstore-payments/internal/model"
	"bookstore-payments/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentEvent(eventID string, order *model.Order, amountMinor int64) *provider.Event {
	return &provider.Event{
		EventID:          eventID,
		EventType:        "PAYMENT.CAPTURE.COMPLETED",
		Kind:             provider.EventPaymentCompleted,
		SessionID:        order.PaymentReference,
		CaptureID:        "cap_wh_1",
		AmountMinorUnits: amountMinor,
		Currency:         "USD",
		Reference:        order.ID,
	}
}

func deliver(t *testing.T, env *testEnv, evt *provider.Event) error {
	t.Helper()
	env.gw.event = evt
	return env.settlement.HandleWebhook(context.Background(), model.ProviderWallet, http.Header{}, []byte(`{}`))
}

func TestHandleWebhook_PaymentSettlesOrder(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	order, _ := env.createOrder(t, "user_1", dto.OrderItemRequest{BookID: "book_gopher", Quantity: 2})
	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)

	require.NoError(t, deliver(t, env, paymentEvent("evt_1", reloaded, 4000)))

	settled, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, settled.Status)
	assert.Equal(t, "cap_wh_1", settled.TransactionID)
	assert.Equal(t, int64(23), env.bookStock(t, "book_gopher"))
	assert.Equal(t, int64(40), env.points(t, "user_1"))

	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleWebhook_ReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	order, _ := env.createOrder(t, "user_1", dto.OrderItemRequest{BookID: "book_gopher", Quantity: 2})
	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	evt := paymentEvent("evt_1", reloaded, 4000)

	require.NoError(t, deliver(t, env, evt))
	require.NoError(t, deliver(t, env, evt))
	require.NoError(t, deliver(t, env, evt))

	assert.Equal(t, int64(23), env.bookStock(t, "book_gopher"))
	assert.Equal(t, int64(40), env.points(t, "user_1"))

	settled, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, settled.InvoicePDF)

	// replays leave no extra order-linked audit entries behind
	records, err := env.audit.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	order, _ := env.createOrder(t, "user_1", dto.OrderItemRequest{BookID: "book_gopher", Quantity: 1})
	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)

	env.gw.verifyErr = model.ErrInvalidSignature
	err = deliver(t, env, paymentEvent("evt_1", reloaded, 2000))
	require.ErrorIs(t, err, model.ErrInvalidSignature)

	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, int64(25), env.bookStock(t, "book_gopher"))
}

func TestHandleWebhook_AmountMismatchIsRetriable(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	order, _ := env.createOrder(t, "user_1", dto.OrderItemRequest{BookID: "book_gopher", Quantity: 1})
	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)

	err = deliver(t, env, paymentEvent("evt_1", reloaded, 1))
	require.ErrorIs(t, err, model.ErrPaymentVerificationFailed)

	// not recorded: the provider should redeliver once the discrepancy is resolved
	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)

	pending, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, pending.Status)
}

func TestHandleWebhook_UnknownSessionRecordedAndDropped(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	err := deliver(t, env, &provider.Event{
		EventID:          "evt_stray",
		EventType:        "PAYMENT.CAPTURE.COMPLETED",
		Kind:             provider.EventPaymentCompleted,
		SessionID:        "sess_unknown",
		CaptureID:        "cap_stray",
		AmountMinorUnits: 100,
		Currency:         "USD",
	})
	require.NoError(t, err)

	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_stray")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleWebhook_AfterReturnPathIsNoOp(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	order, session := env.createOrder(t, "user_1", dto.OrderItemRequest{BookID: "book_gopher", Quantity: 2})
	env.registerCapture(session.SessionID, "cap_1", 4000, "USD", order.ID)
	_, err := env.settlement.CompleteOrderPayment(ctx, "user_1", order.ID, session.SessionID)
	require.NoError(t, err)

	reloaded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, deliver(t, env, paymentEvent("evt_late", reloaded, 4000)))

	assert.Equal(t, int64(23), env.bookStock(t, "book_gopher"))
	assert.Equal(t, int64(40), env.points(t, "user_1"))

	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_late")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleWebhook_RefundEvent(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	order, session := env.createOrder(t, "user_1", dto.OrderItemRequest{BookID: "book_gopher", Quantity: 2})
	env.registerCapture(session.SessionID, "cap_1", 4000, "USD", order.ID)
	_, err := env.settlement.CompleteOrderPayment(ctx, "user_1", order.ID, session.SessionID)
	require.NoError(t, err)

	refundEvt := &provider.Event{
		EventID:          "evt_refund",
		EventType:        "PAYMENT.CAPTURE.REFUNDED",
		Kind:             provider.EventRefundCompleted,
		CaptureID:        "cap_1",
		RefundID:         "ref_1",
		AmountMinorUnits: 4000,
		Currency:         "USD",
	}
	require.NoError(t, deliver(t, env, refundEvt))

	refunded, err := env.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, refunded.Status)
	assert.Equal(t, int64(25), env.bookStock(t, "book_gopher"))
	assert.Equal(t, int64(0), env.points(t, "user_1"))

	// replayed refund changes nothing further
	require.NoError(t, deliver(t, env, refundEvt))
	assert.Equal(t, int64(25), env.bookStock(t, "book_gopher"))
	assert.Equal(t, int64(0), env.points(t, "user_1"))
}

func TestHandleWebhook_RefundEventForUnknownCapture(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	err := deliver(t, env, &provider.Event{
		EventID:   "evt_refund_stray",
		EventType: "PAYMENT.CAPTURE.REFUNDED",
		Kind:      provider.EventRefundCompleted,
		CaptureID: "cap_unknown",
		RefundID:  "ref_1",
	})
	require.NoError(t, err)

	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_refund_stray")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleWebhook_IgnoredKindRecorded(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	err := deliver(t, env, &provider.Event{
		EventID:   "evt_ignored",
		EventType: "CHECKOUT.ORDER.APPROVED",
		Kind:      provider.EventIgnored,
	})
	require.NoError(t, err)

	processed, err := env.events.HasProcessed(ctx, model.ProviderWallet, "evt_ignored")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleWebhook_ContributionPayment(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	userID := "user_1"
	contribution, session, err := env.checkout.CreateContribution(ctx, &userID, &dto.CreateContributionRequest{
		BookID:   "book_ledger",
		Amount:   "50.00",
		Provider: string(model.ProviderWallet),
	})
	require.NoError(t, err)

	err = deliver(t, env, &provider.Event{
		EventID:          "evt_c1",
		EventType:        "PAYMENT.CAPTURE.COMPLETED",
		Kind:             provider.EventPaymentCompleted,
		SessionID:        session.SessionID,
		CaptureID:        "cap_c1",
		AmountMinorUnits: 5000,
		Currency:         "USD",
		Reference:        contribution.ID,
	})
	require.NoError(t, err)

	settled, err := env.contributions.FindByID(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, settled.Status)

	book, err := env.books.FindByID(ctx, "book_ledger")
	require.NoError(t, err)
	assert.Equal(t, "50", book.FundingRaised.String())
	assert.Equal(t, int64(50), env.points(t, userID))
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	env := newTestEnv(t, true)

	err := env.settlement.HandleWebhook(context.Background(), model.ProviderCard, http.Header{}, []byte(`{}`))
	require.ErrorIs(t, err, model.ErrNotFound)
}
