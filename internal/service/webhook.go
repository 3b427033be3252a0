package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"bookstore-payments/internal/model"
	"bookstore-payments/internal/provider"
	"bookstore-payments/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// HandleWebhook is the asynchronous entry point. Signature verification runs
// over the raw bytes before anything is parsed; the idempotency ledger is
// consulted before any business state is touched; verification failures
// surface as errors (the provider retries), business no-ops do not.
func (s *settlementServiceImpl) HandleWebhook(ctx context.Context, providerName model.PaymentProvider, header http.Header, body []byte) error {
	gw, ok := s.gateways.Get(providerName)
	if !ok {
		return fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, providerName)
	}

	if err := gw.VerifyWebhookSignature(ctx, header, body); err != nil {
		return err
	}

	evt, err := gw.ParseWebhook(body)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}

	s.audit(ctx, &model.PaymentTransaction{
		Provider: providerName, Kind: model.TransactionKindWebhook,
		Status: evt.EventType, Amount: decimal.New(evt.AmountMinorUnits, -2), Currency: evt.Currency,
		Reference: evt.SessionID, CaptureID: evt.CaptureID,
	})

	processed, err := s.webhookEventRepo.HasProcessed(ctx, providerName, evt.EventID)
	if err != nil {
		return fmt.Errorf("check webhook ledger: %w", err)
	}
	if processed {
		return nil
	}

	ledger := &ledgerEntry{provider: providerName, eventID: evt.EventID, eventType: evt.EventType}

	switch evt.Kind {
	case provider.EventPaymentCompleted:
		err = s.applyPaymentEvent(ctx, evt, ledger)
	case provider.EventRefundCompleted:
		err = s.applyRefundEvent(ctx, evt, ledger)
	default:
		err = s.recordSeen(ctx, ledger)
	}

	if errors.Is(err, model.ErrAlreadySettled) {
		return nil
	}
	return err
}

// recordSeen durably marks an event the engine takes no action on, so the
// provider stops redelivering it.
func (s *settlementServiceImpl) recordSeen(ctx context.Context, ledger *ledgerEntry) error {
	return s.atomic.Run(ctx, func(tx *gorm.DB, _ *repository.Compensations) error {
		return s.webhookEventRepo.MarkProcessed(ctx, tx, ledger.provider, ledger.eventID, ledger.eventType)
	})
}

func (s *settlementServiceImpl) applyPaymentEvent(ctx context.Context, evt *provider.Event, ledger *ledgerEntry) error {
	capture := &provider.CaptureResult{
		Status:           provider.CaptureStatusCompleted,
		AmountMinorUnits: evt.AmountMinorUnits,
		Currency:         evt.Currency,
		Reference:        evt.Reference,
		CaptureID:        evt.CaptureID,
	}

	// The stored paymentReference binds the event to the checkout this engine
	// created; a webhook for an unknown session is recorded and dropped so a
	// misrouted event cannot settle anything.
	order, err := s.orderRepo.FindByPaymentReference(ctx, evt.SessionID)
	if err == nil {
		if order.Status == model.StatusPaid {
			return s.recordSeen(ctx, ledger)
		}
		if order.Status != model.StatusPending {
			log.Printf("webhook %s/%s: order %s is %s, not settling", ledger.provider, ledger.eventID, order.ID, order.Status)
			return s.recordSeen(ctx, ledger)
		}
		if err := verifyCapture(capture, order.Total, order.Currency, order.ID); err != nil {
			return err
		}
		if err := s.settleOrderPaid(ctx, order, capture, ledger); err != nil {
			return err
		}
		if settled, err := s.orderRepo.FindByID(ctx, order.ID); err == nil {
			s.notifyOrder(ctx, settled)
		}
		return nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	contribution, err := s.contributionRepo.FindByPaymentReference(ctx, evt.SessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("webhook %s/%s: no order or contribution for session %q", ledger.provider, ledger.eventID, evt.SessionID)
			return s.recordSeen(ctx, ledger)
		}
		return err
	}
	if contribution.Status == model.StatusPaid {
		return s.recordSeen(ctx, ledger)
	}
	if contribution.Status != model.StatusPending {
		return s.recordSeen(ctx, ledger)
	}
	if err := verifyCapture(capture, contribution.Amount, contribution.Currency, contribution.ID); err != nil {
		return err
	}
	if err := s.settleContributionPaid(ctx, contribution, capture, ledger); err != nil {
		return err
	}
	if settled, err := s.contributionRepo.FindByID(ctx, contribution.ID); err == nil {
		s.notifyContribution(ctx, settled)
	}
	return nil
}

// applyRefundEvent locates the paid record by the charge/capture id the
// provider refunded and applies the refund transition without a provider
// call (the money already moved).
func (s *settlementServiceImpl) applyRefundEvent(ctx context.Context, evt *provider.Event, ledger *ledgerEntry) error {
	if evt.CaptureID == "" {
		log.Printf("webhook %s/%s: refund event without capture id", ledger.provider, ledger.eventID)
		return s.recordSeen(ctx, ledger)
	}

	order, err := s.orderRepo.FindByTransactionID(ctx, evt.CaptureID)
	if err == nil {
		if order.Status == model.StatusRefunded {
			return s.recordSeen(ctx, ledger)
		}
		if order.Status != model.StatusPaid {
			log.Printf("webhook %s/%s: order %s is %s, cannot refund", ledger.provider, ledger.eventID, order.ID, order.Status)
			return s.recordSeen(ctx, ledger)
		}
		return s.applyOrderRefund(ctx, order, evt.RefundID, ledger)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	contribution, err := s.contributionRepo.FindByTransactionID(ctx, evt.CaptureID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("webhook %s/%s: no paid record for capture %q", ledger.provider, ledger.eventID, evt.CaptureID)
			return s.recordSeen(ctx, ledger)
		}
		return err
	}
	if contribution.Status == model.StatusRefunded {
		return s.recordSeen(ctx, ledger)
	}
	if contribution.Status != model.StatusPaid {
		return s.recordSeen(ctx, ledger)
	}
	return s.applyContributionRefund(ctx, contribution, evt.RefundID, ledger)
}
