package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookstore-payments/internal/dto"
	"bookstore-payments/internal/model"
	"bookstore-payments/internal/provider"
	"bookstore-payments/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CheckoutService interface {
	CreateOrder(ctx context.Context, userID string, req *dto.CreateOrderRequest) (*model.Order, *provider.CheckoutSession, error)
	RetryOrderPayment(ctx context.Context, userID, orderID string) (*provider.CheckoutSession, error)
	CancelOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	GetInvoice(ctx context.Context, userID, orderID string) ([]byte, error)

	CreateContribution(ctx context.Context, userID *string, req *dto.CreateContributionRequest) (*model.Contribution, *provider.CheckoutSession, error)
	ListPublicContributions(ctx context.Context, bookID string) ([]*model.Contribution, error)
}

type checkoutServiceImpl struct {
	atomic           *repository.Atomic
	gateways         provider.Registry
	baseURL          string
	currency         string
	bookRepo         repository.BookRepository
	orderRepo        repository.OrderRepository
	contributionRepo repository.ContributionRepository
	userRepo         repository.UserRepository
	renderer         InvoiceRenderer
}

func NewCheckoutService(
	atomic *repository.Atomic,
	gateways provider.Registry,
	baseURL string,
	currency string,
	bookRepo repository.BookRepository,
	orderRepo repository.OrderRepository,
	contributionRepo repository.ContributionRepository,
	userRepo repository.UserRepository,
	renderer InvoiceRenderer,
) CheckoutService {
	return &checkoutServiceImpl{
		atomic:           atomic,
		gateways:         gateways,
		baseURL:          baseURL,
		currency:         currency,
		bookRepo:         bookRepo,
		orderRepo:        orderRepo,
		contributionRepo: contributionRepo,
		userRepo:         userRepo,
		renderer:         renderer,
	}
}

func newInvoiceNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("INV-%d-%s", time.Now().Year(), id[:10])
}

func (s *checkoutServiceImpl) CreateOrder(ctx context.Context, userID string, req *dto.CreateOrderRequest) (*model.Order, *provider.CheckoutSession, error) {
	if len(req.Items) == 0 {
		return nil, nil, fmt.Errorf("%w: order has no items", model.ErrInvalidAmount)
	}

	gw, ok := s.gateways.Get(model.PaymentProvider(req.Provider))
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, req.Provider)
	}

	bookIDs := make([]string, len(req.Items))
	quantityByBook := make(map[string]int64)
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: item quantity must be positive", model.ErrInvalidAmount)
		}
		bookIDs[i] = item.BookID
		quantityByBook[item.BookID] = item.Quantity
	}

	books, err := s.bookRepo.FindMany(ctx, bookIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("get books: %w", err)
	}
	if len(books) != len(req.Items) {
		return nil, nil, fmt.Errorf("%w: some books not found", model.ErrNotFound)
	}

	saleType := books[0].SaleType
	if saleType == model.SaleTypeCrowdfunding {
		return nil, nil, fmt.Errorf("%w: crowdfunding titles are backed via contributions", model.ErrInvalidStateTransition)
	}

	orderID := uuid.NewString()
	total := decimal.Zero
	items := make([]*model.OrderItem, len(books))
	for i, book := range books {
		if book.SaleType != saleType {
			return nil, nil, fmt.Errorf("%w: order mixes sale types", model.ErrInvalidStateTransition)
		}
		quantity := quantityByBook[book.ID]
		if book.Stock < quantity {
			return nil, nil, fmt.Errorf("book %s: %w", book.ID, model.ErrInsufficientStock)
		}

		// Unit price is captured here and never re-read from the catalog.
		total = total.Add(book.Price.Mul(decimal.NewFromInt(quantity)))
		items[i] = &model.OrderItem{
			OrderID:   orderID,
			BookID:    book.ID,
			Title:     book.Title,
			Quantity:  quantity,
			UnitPrice: book.Price,
		}
	}

	order := &model.Order{
		ID:            orderID,
		UserID:        userID,
		Status:        model.StatusPending,
		SaleType:      saleType,
		Total:         total,
		Currency:      s.currency,
		PaymentMethod: gw.Name(),
		InvoiceNumber: newInvoiceNumber(),
	}

	err = s.atomic.Run(ctx, func(tx *gorm.DB, _ *repository.Compensations) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		if err := s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
			return fmt.Errorf("store order items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// The provider call stays outside the store transaction: if it times out
	// the order remains pending and the buyer can retry or cancel.
	session, err := s.initiateCheckout(ctx, gw, orderID, total, s.orderURL(orderID))
	if err != nil {
		return nil, nil, err
	}
	if err := s.orderRepo.SetPaymentReference(ctx, orderID, session.SessionID); err != nil {
		return nil, nil, fmt.Errorf("store payment reference: %w", err)
	}

	order.PaymentReference = session.SessionID
	order.Items = make([]model.OrderItem, len(items))
	for i, item := range items {
		order.Items[i] = *item
	}
	return order, session, nil
}

func (s *checkoutServiceImpl) initiateCheckout(ctx context.Context, gw provider.Gateway, reference string, amount decimal.Decimal, successURL string) (*provider.CheckoutSession, error) {
	session, err := gw.CreateCheckout(ctx, reference, amount, s.currency, successURL, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("create %s checkout: %w", gw.Name(), err)
	}
	return session, nil
}

func (s *checkoutServiceImpl) orderURL(orderID string) string {
	return fmt.Sprintf("%s/orders/%s/complete", s.baseURL, orderID)
}

func (s *checkoutServiceImpl) contributionURL(contributionID string) string {
	return fmt.Sprintf("%s/contributions/%s/complete", s.baseURL, contributionID)
}

// RetryOrderPayment opens a fresh provider checkout against the same pending
// order; the order itself is never mutated destructively.
func (s *checkoutServiceImpl) RetryOrderPayment(ctx context.Context, userID, orderID string) (*provider.CheckoutSession, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, model.ErrForbidden
	}
	if order.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: order is %s", model.ErrInvalidStateTransition, order.Status)
	}

	gw, ok := s.gateways.Get(order.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, order.PaymentMethod)
	}

	session, err := s.initiateCheckout(ctx, gw, order.ID, order.Total, s.orderURL(order.ID))
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.SetPaymentReference(ctx, order.ID, session.SessionID); err != nil {
		return nil, fmt.Errorf("store payment reference: %w", err)
	}
	return session, nil
}

func (s *checkoutServiceImpl) CancelOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, model.ErrForbidden
	}

	ok, err := s.orderRepo.MarkCancelled(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: only pending orders can be cancelled", model.ErrInvalidStateTransition)
	}

	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *checkoutServiceImpl) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, model.ErrForbidden
	}
	return order, nil
}

// GetInvoice serves the cached invoice document, rendering it on first access
// for orders settled before a renderer was available.
func (s *checkoutServiceImpl) GetInvoice(ctx context.Context, userID, orderID string) ([]byte, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, model.ErrForbidden
	}
	if len(order.InvoicePDF) > 0 {
		return order.InvoicePDF, nil
	}
	if order.Status != model.StatusPaid && order.Status != model.StatusRefunded {
		return nil, fmt.Errorf("%w: no invoice before payment", model.ErrNotFound)
	}

	user, err := s.userRepo.FindByID(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	pdf, err := s.renderer.Render(InvoiceDataForOrder(order, user))
	if err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}
	if err := s.orderRepo.StoreInvoice(ctx, s.atomic.DB(), orderID, pdf); err != nil {
		return nil, fmt.Errorf("cache invoice: %w", err)
	}
	return pdf, nil
}

func (s *checkoutServiceImpl) CreateContribution(ctx context.Context, userID *string, req *dto.CreateContributionRequest) (*model.Contribution, *provider.CheckoutSession, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, model.ErrInvalidAmount
	}

	gw, ok := s.gateways.Get(model.PaymentProvider(req.Provider))
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown payment provider %q", model.ErrNotFound, req.Provider)
	}

	book, err := s.bookRepo.FindByID(ctx, req.BookID)
	if err != nil {
		return nil, nil, err
	}
	if book.SaleType != model.SaleTypeCrowdfunding {
		return nil, nil, fmt.Errorf("%w: book %s is not crowdfunding", model.ErrInvalidStateTransition, book.ID)
	}

	contribution := &model.Contribution{
		ID:            uuid.NewString(),
		UserID:        userID,
		BookID:        book.ID,
		Amount:        amount,
		Currency:      s.currency,
		Reward:        req.Reward,
		IsPublic:      req.IsPublic,
		Status:        model.StatusPending,
		PaymentMethod: gw.Name(),
	}
	if err := s.contributionRepo.Create(ctx, contribution); err != nil {
		return nil, nil, fmt.Errorf("store contribution: %w", err)
	}

	session, err := s.initiateCheckout(ctx, gw, contribution.ID, amount, s.contributionURL(contribution.ID))
	if err != nil {
		return nil, nil, err
	}
	if err := s.contributionRepo.SetPaymentReference(ctx, contribution.ID, session.SessionID); err != nil {
		return nil, nil, fmt.Errorf("store payment reference: %w", err)
	}

	contribution.PaymentReference = session.SessionID
	return contribution, session, nil
}

func (s *checkoutServiceImpl) ListPublicContributions(ctx context.Context, bookID string) ([]*model.Contribution, error) {
	return s.contributionRepo.ListPublicByBook(ctx, bookID)
}

// InvoiceDataForOrder assembles the settlement facts handed to the renderer.
func InvoiceDataForOrder(order *model.Order, buyer *model.User) InvoiceData {
	lines := make([]InvoiceLine, len(order.Items))
	for i, item := range order.Items {
		lines[i] = InvoiceLine{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return InvoiceData{
		InvoiceNumber:      order.InvoiceNumber,
		BuyerName:          buyer.Name,
		BuyerEmail:         buyer.Email,
		SaleType:           order.SaleType,
		PaymentMethodLabel: string(order.PaymentMethod),
		PaymentReference:   order.PaymentReference,
		Total:              order.Total,
		Currency:           order.Currency,
		CreatedAt:          order.CreatedAt,
		Lines:              lines,
	}
}
