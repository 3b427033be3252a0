package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"bookstore-payments/internal/model"
	"bookstore-payments/internal/provider"
	"bookstore-payments/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementService owns every transition out of pending: the synchronous
// return path and the asynchronous webhook path both converge here and must
// produce identical outcomes.
type SettlementService interface {
	CompleteOrderPayment(ctx context.Context, userID, orderID, sessionID string) (*model.Order, error)
	CompleteContributionPayment(ctx context.Context, userID, contributionID, sessionID string) (*model.Contribution, error)
	HandleWebhook(ctx context.Context, providerName model.PaymentProvider, header http.Header, body []byte) error
	RefundOrder(ctx context.Context, orderID string) (*model.Order, error)
	RefundContribution(ctx context.Context, contributionID string) (*model.Contribution, error)
}

type settlementServiceImpl struct {
	atomic           *repository.Atomic
	gateways         provider.Registry
	orderRepo        repository.OrderRepository
	contributionRepo repository.ContributionRepository
	bookRepo         repository.BookRepository
	userRepo         repository.UserRepository
	webhookEventRepo repository.WebhookEventRepository
	auditRepo        repository.PaymentTransactionRepository
	renderer         InvoiceRenderer
	notifier         Notifier
}

func NewSettlementService(
	atomic *repository.Atomic,
	gateways provider.Registry,
	orderRepo repository.OrderRepository,
	contributionRepo repository.ContributionRepository,
	bookRepo repository.BookRepository,
	userRepo repository.UserRepository,
	webhookEventRepo repository.WebhookEventRepository,
	auditRepo repository.PaymentTransactionRepository,
	renderer InvoiceRenderer,
	notifier Notifier,
) SettlementService {
	return &settlementServiceImpl{
		atomic:           atomic,
		gateways:         gateways,
		orderRepo:        orderRepo,
		contributionRepo: contributionRepo,
		bookRepo:         bookRepo,
		userRepo:         userRepo,
		webhookEventRepo: webhookEventRepo,
		auditRepo:        auditRepo,
		renderer:         renderer,
		notifier:         notifier,
	}
}

// loyaltyPoints is proportional to the paid total: floor, minimum 1.
func loyaltyPoints(total decimal.Decimal) int64 {
	points := total.Floor().IntPart()
	if points < 1 {
		points = 1
	}
	return points
}

// verifyCapture applies the cross-provider checks both entry points share:
// provider status, currency, exact minor-unit amount, and the correlation id
// bound at checkout creation. Any mismatch fails closed.
func verifyCapture(capture *provider.CaptureResult, total decimal.Decimal, currency, localID string) error {
	if capture.Status != provider.CaptureStatusCompleted {
		return fmt.Errorf("%w: capture status is %s", model.ErrPaymentVerificationFailed, capture.Status)
	}
	if capture.Currency != currency {
		return fmt.Errorf("%w: currency %s, expected %s", model.ErrPaymentVerificationFailed, capture.Currency, currency)
	}
	if capture.AmountMinorUnits != model.MinorUnits(total) {
		return fmt.Errorf("%w: amount %d minor units, expected %d", model.ErrPaymentVerificationFailed, capture.AmountMinorUnits, model.MinorUnits(total))
	}
	if capture.Reference != "" && capture.Reference != localID {
		return fmt.Errorf("%w: correlation id %q does not match %q", model.ErrPaymentVerificationFailed, capture.Reference, localID)
	}
	return nil
}

// --- return-path completion ---

func (s *settlementServiceImpl) CompleteOrderPayment(ctx context.Context, userID, orderID, sessionID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, model.ErrForbidden
	}
	if order.Status == model.StatusPaid {
		return order, nil
	}
	if err := model.EnsureTransition(order.Status, model.StatusPaid); err != nil {
		return nil, err
	}
	// Redirect query parameters are never trusted: the session id must be the
	// one this order's checkout was created with.
	if order.PaymentReference == "" || order.PaymentReference != sessionID {
		return nil, fmt.Errorf("%w: session id does not match order checkout", model.ErrPaymentVerificationFailed)
	}

	gw, ok := s.gateways.Get(order.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, order.PaymentMethod)
	}

	capture, err := gw.CaptureOrRetrieve(ctx, sessionID)
	if err != nil {
		s.audit(ctx, &model.PaymentTransaction{
			Provider: order.PaymentMethod, Kind: model.TransactionKindPayment,
			Status: "provider_error", Amount: order.Total, Currency: order.Currency,
			Reference: sessionID, OrderID: &order.ID,
		})
		return nil, err
	}
	s.audit(ctx, &model.PaymentTransaction{
		Provider: order.PaymentMethod, Kind: model.TransactionKindPayment,
		Status: string(capture.Status), Amount: order.Total, Currency: order.Currency,
		Reference: sessionID, CaptureID: capture.CaptureID, OrderID: &order.ID,
	})

	if err := verifyCapture(capture, order.Total, order.Currency, order.ID); err != nil {
		return nil, err
	}

	if err := s.settleOrderPaid(ctx, order, capture, nil); err != nil {
		if errors.Is(err, model.ErrAlreadySettled) {
			return s.orderRepo.FindByID(ctx, orderID)
		}
		return nil, err
	}

	settled, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, settled)
	return settled, nil
}

func (s *settlementServiceImpl) CompleteContributionPayment(ctx context.Context, userID, contributionID, sessionID string) (*model.Contribution, error) {
	contribution, err := s.contributionRepo.FindByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if contribution.UserID != nil && *contribution.UserID != userID {
		return nil, model.ErrForbidden
	}
	if contribution.Status == model.StatusPaid {
		return contribution, nil
	}
	if err := model.EnsureTransition(contribution.Status, model.StatusPaid); err != nil {
		return nil, err
	}
	if contribution.PaymentReference == "" || contribution.PaymentReference != sessionID {
		return nil, fmt.Errorf("%w: session id does not match contribution checkout", model.ErrPaymentVerificationFailed)
	}

	gw, ok := s.gateways.Get(contribution.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, contribution.PaymentMethod)
	}

	capture, err := gw.CaptureOrRetrieve(ctx, sessionID)
	if err != nil {
		s.audit(ctx, &model.PaymentTransaction{
			Provider: contribution.PaymentMethod, Kind: model.TransactionKindPayment,
			Status: "provider_error", Amount: contribution.Amount, Currency: contribution.Currency,
			Reference: sessionID, ContributionID: &contribution.ID,
		})
		return nil, err
	}
	s.audit(ctx, &model.PaymentTransaction{
		Provider: contribution.PaymentMethod, Kind: model.TransactionKindPayment,
		Status: string(capture.Status), Amount: contribution.Amount, Currency: contribution.Currency,
		Reference: sessionID, CaptureID: capture.CaptureID, ContributionID: &contribution.ID,
	})

	if err := verifyCapture(capture, contribution.Amount, contribution.Currency, contribution.ID); err != nil {
		return nil, err
	}

	if err := s.settleContributionPaid(ctx, contribution, capture, nil); err != nil && !errors.Is(err, model.ErrAlreadySettled) {
		return nil, err
	}

	settled, err := s.contributionRepo.FindByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	s.notifyContribution(ctx, settled)
	return settled, nil
}

// --- paid transitions ---

type ledgerEntry struct {
	provider  model.PaymentProvider
	eventID   string
	eventType string
}

// settleOrderPaid is the atomic paid transition: status gate, stock, invoice,
// loyalty points, and (for webhooks) the idempotency ledger entry, all in one
// unit. Losing the status gate to a concurrent settlement returns
// ErrAlreadySettled after still recording the ledger entry.
func (s *settlementServiceImpl) settleOrderPaid(ctx context.Context, order *model.Order, capture *provider.CaptureResult, ledger *ledgerEntry) error {
	buyer, err := s.userRepo.FindByID(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("load buyer: %w", err)
	}

	// Rendering is pure, so it happens before the transactional portion.
	var pdf []byte
	if len(order.InvoicePDF) == 0 {
		pdf, err = s.renderer.Render(InvoiceDataForOrder(order, buyer))
		if err != nil {
			return fmt.Errorf("render invoice: %w", err)
		}
	}

	points := loyaltyPoints(order.Total)
	now := time.Now()

	return s.atomic.Run(ctx, func(tx *gorm.DB, comp *repository.Compensations) error {
		ok, err := s.orderRepo.MarkPaid(ctx, tx, order.ID, capture.CaptureID, order.PaymentReference, now)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !ok {
			return s.resolveLostGate(ctx, tx, ledger)
		}
		comp.Add(func() error {
			return tx.Model(&model.Order{}).Where("id = ?", order.ID).
				Updates(map[string]interface{}{"status": model.StatusPending, "transaction_id": "", "paid_at": nil}).Error
		})

		items, err := s.orderRepo.GetOrderItems(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("get order items: %w", err)
		}
		for _, item := range items {
			item := item
			if err := s.bookRepo.DecrementStock(ctx, tx, item.BookID, order.SaleType, item.Quantity); err != nil {
				return err
			}
			comp.Add(func() error {
				return s.bookRepo.RestoreStock(ctx, tx, item.BookID, item.Quantity)
			})
		}

		if pdf != nil {
			if err := s.orderRepo.StoreInvoice(ctx, tx, order.ID, pdf); err != nil {
				return fmt.Errorf("cache invoice: %w", err)
			}
		}

		if err := s.userRepo.AddLoyaltyPoints(ctx, tx, order.UserID, points); err != nil {
			return fmt.Errorf("credit loyalty points: %w", err)
		}
		comp.Add(func() error {
			return s.userRepo.AddLoyaltyPoints(ctx, tx, order.UserID, -points)
		})

		if ledger != nil {
			if err := s.webhookEventRepo.MarkProcessed(ctx, tx, ledger.provider, ledger.eventID, ledger.eventType); err != nil {
				return fmt.Errorf("record webhook event: %w", err)
			}
		}
		return nil
	})
}

// resolveLostGate decides what a settlement that lost the pending→paid race
// means: paid by someone else is a no-op success (the event is still marked
// seen), anything else is a genuine invalid transition.
func (s *settlementServiceImpl) resolveLostGate(ctx context.Context, tx *gorm.DB, ledger *ledgerEntry) error {
	if ledger != nil {
		if err := s.webhookEventRepo.MarkProcessed(ctx, tx, ledger.provider, ledger.eventID, ledger.eventType); err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
	}
	return model.ErrAlreadySettled
}

func (s *settlementServiceImpl) settleContributionPaid(ctx context.Context, contribution *model.Contribution, capture *provider.CaptureResult, ledger *ledgerEntry) error {
	points := loyaltyPoints(contribution.Amount)
	now := time.Now()

	return s.atomic.Run(ctx, func(tx *gorm.DB, comp *repository.Compensations) error {
		ok, err := s.contributionRepo.MarkPaid(ctx, tx, contribution.ID, capture.CaptureID, contribution.PaymentReference, now)
		if err != nil {
			return fmt.Errorf("mark contribution paid: %w", err)
		}
		if !ok {
			return s.resolveLostGate(ctx, tx, ledger)
		}
		comp.Add(func() error {
			return tx.Model(&model.Contribution{}).Where("id = ?", contribution.ID).
				Updates(map[string]interface{}{"status": model.StatusPending, "transaction_id": "", "paid_at": nil}).Error
		})

		if err := s.bookRepo.AddFundingRaised(ctx, tx, contribution.BookID, contribution.Amount); err != nil {
			return err
		}
		comp.Add(func() error {
			return s.bookRepo.AddFundingRaised(ctx, tx, contribution.BookID, contribution.Amount.Neg())
		})

		if contribution.UserID != nil {
			if err := s.userRepo.AddLoyaltyPoints(ctx, tx, *contribution.UserID, points); err != nil {
				return fmt.Errorf("credit loyalty points: %w", err)
			}
			comp.Add(func() error {
				return s.userRepo.AddLoyaltyPoints(ctx, tx, *contribution.UserID, -points)
			})
		}

		if ledger != nil {
			if err := s.webhookEventRepo.MarkProcessed(ctx, tx, ledger.provider, ledger.eventID, ledger.eventType); err != nil {
				return fmt.Errorf("record webhook event: %w", err)
			}
		}
		return nil
	})
}

// --- refunds ---

func (s *settlementServiceImpl) RefundOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := model.EnsureTransition(order.Status, model.StatusRefunded); err != nil {
		return nil, err
	}

	gw, ok := s.gateways.Get(order.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, order.PaymentMethod)
	}

	refund, err := gw.Refund(ctx, order.TransactionID, &order.Total)
	if err != nil {
		s.audit(ctx, &model.PaymentTransaction{
			Provider: order.PaymentMethod, Kind: model.TransactionKindRefund,
			Status: "provider_error", Amount: order.Total, Currency: order.Currency,
			CaptureID: order.TransactionID, OrderID: &order.ID,
		})
		return nil, err
	}
	s.audit(ctx, &model.PaymentTransaction{
		Provider: order.PaymentMethod, Kind: model.TransactionKindRefund,
		Status: "completed", Amount: order.Total, Currency: order.Currency,
		Reference: refund.RefundID, CaptureID: order.TransactionID, OrderID: &order.ID,
	})

	if err := s.applyOrderRefund(ctx, order, refund.RefundID, nil); err != nil && !errors.Is(err, model.ErrAlreadySettled) {
		return nil, err
	}
	return s.orderRepo.FindByID(ctx, orderID)
}

// applyOrderRefund reverses the paid transition: restores each decremented
// line quantity and debits exactly the points the settlement credited.
func (s *settlementServiceImpl) applyOrderRefund(ctx context.Context, order *model.Order, refundReference string, ledger *ledgerEntry) error {
	points := loyaltyPoints(order.Total)

	return s.atomic.Run(ctx, func(tx *gorm.DB, comp *repository.Compensations) error {
		ok, err := s.orderRepo.MarkRefunded(ctx, tx, order.ID, refundReference)
		if err != nil {
			return fmt.Errorf("mark order refunded: %w", err)
		}
		if !ok {
			return s.resolveLostGate(ctx, tx, ledger)
		}
		comp.Add(func() error {
			return tx.Model(&model.Order{}).Where("id = ?", order.ID).
				Update("status", model.StatusPaid).Error
		})

		items, err := s.orderRepo.GetOrderItems(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("get order items: %w", err)
		}
		for _, item := range items {
			item := item
			if err := s.bookRepo.RestoreStock(ctx, tx, item.BookID, item.Quantity); err != nil {
				return err
			}
			comp.Add(func() error {
				return s.bookRepo.RestoreStock(ctx, tx, item.BookID, -item.Quantity)
			})
		}

		if err := s.userRepo.AddLoyaltyPoints(ctx, tx, order.UserID, -points); err != nil {
			return fmt.Errorf("debit loyalty points: %w", err)
		}

		if ledger != nil {
			if err := s.webhookEventRepo.MarkProcessed(ctx, tx, ledger.provider, ledger.eventID, ledger.eventType); err != nil {
				return fmt.Errorf("record webhook event: %w", err)
			}
		}
		return nil
	})
}

func (s *settlementServiceImpl) RefundContribution(ctx context.Context, contributionID string) (*model.Contribution, error) {
	contribution, err := s.contributionRepo.FindByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if err := model.EnsureTransition(contribution.Status, model.StatusRefunded); err != nil {
		return nil, err
	}

	gw, ok := s.gateways.Get(contribution.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, contribution.PaymentMethod)
	}

	refund, err := gw.Refund(ctx, contribution.TransactionID, &contribution.Amount)
	if err != nil {
		s.audit(ctx, &model.PaymentTransaction{
			Provider: contribution.PaymentMethod, Kind: model.TransactionKindRefund,
			Status: "provider_error", Amount: contribution.Amount, Currency: contribution.Currency,
			CaptureID: contribution.TransactionID, ContributionID: &contribution.ID,
		})
		return nil, err
	}
	s.audit(ctx, &model.PaymentTransaction{
		Provider: contribution.PaymentMethod, Kind: model.TransactionKindRefund,
		Status: "completed", Amount: contribution.Amount, Currency: contribution.Currency,
		Reference: refund.RefundID, CaptureID: contribution.TransactionID, ContributionID: &contribution.ID,
	})

	if err := s.applyContributionRefund(ctx, contribution, refund.RefundID, nil); err != nil && !errors.Is(err, model.ErrAlreadySettled) {
		return nil, err
	}
	return s.contributionRepo.FindByID(ctx, contributionID)
}

// applyContributionRefund deliberately leaves fundingRaised untouched:
// refunds do not claw back a campaign's displayed progress. Points are still
// debited when a user is attached.
func (s *settlementServiceImpl) applyContributionRefund(ctx context.Context, contribution *model.Contribution, refundReference string, ledger *ledgerEntry) error {
	points := loyaltyPoints(contribution.Amount)

	return s.atomic.Run(ctx, func(tx *gorm.DB, comp *repository.Compensations) error {
		ok, err := s.contributionRepo.MarkRefunded(ctx, tx, contribution.ID, refundReference)
		if err != nil {
			return fmt.Errorf("mark contribution refunded: %w", err)
		}
		if !ok {
			return s.resolveLostGate(ctx, tx, ledger)
		}
		comp.Add(func() error {
			return tx.Model(&model.Contribution{}).Where("id = ?", contribution.ID).
				Update("status", model.StatusPaid).Error
		})

		if contribution.UserID != nil {
			if err := s.userRepo.AddLoyaltyPoints(ctx, tx, *contribution.UserID, -points); err != nil {
				return fmt.Errorf("debit loyalty points: %w", err)
			}
		}

		if ledger != nil {
			if err := s.webhookEventRepo.MarkProcessed(ctx, tx, ledger.provider, ledger.eventID, ledger.eventType); err != nil {
				return fmt.Errorf("record webhook event: %w", err)
			}
		}
		return nil
	})
}

// --- helpers ---

func (s *settlementServiceImpl) audit(ctx context.Context, record *model.PaymentTransaction) {
	if err := s.auditRepo.Record(ctx, nil, record); err != nil {
		log.Println("record payment transaction:", err)
	}
}

func (s *settlementServiceImpl) notifyOrder(ctx context.Context, order *model.Order) {
	buyer, err := s.userRepo.FindByID(ctx, order.UserID)
	if err != nil {
		log.Println("notify order confirmed:", err)
		return
	}
	s.notifier.OrderConfirmed(ctx, order, buyer.Email)
}

func (s *settlementServiceImpl) notifyContribution(ctx context.Context, contribution *model.Contribution) {
	email := ""
	if contribution.UserID != nil {
		if buyer, err := s.userRepo.FindByID(ctx, *contribution.UserID); err == nil {
			email = buyer.Email
		}
	}
	s.notifier.ContributionConfirmed(ctx, contribution, email)
}
