// Package notify holds the default notification collaborator. The real
// mailer lives outside this service; settlement only needs somewhere to hand
// confirmation events that can never fail it.
package notify

import (
	"context"
	"log"

	"bookstore-payments/internal/model"
)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) OrderConfirmed(_ context.Context, order *model.Order, buyerEmail string) {
	log.Printf("notify: order %s confirmed for %s, total %s %s", order.ID, buyerEmail, order.Total.StringFixed(2), order.Currency)
}

func (n *LogNotifier) ContributionConfirmed(_ context.Context, contribution *model.Contribution, buyerEmail string) {
	log.Printf("notify: contribution %s confirmed for %s, amount %s %s", contribution.ID, buyerEmail, contribution.Amount.StringFixed(2), contribution.Currency)
}
