package repository

import (
	"context"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/retry"
)

type PurchaseRepository struct {
	ledger PurchaseLedger
	exec   *retry.Executor
}

func NewPurchaseRepository(ledger PurchaseLedger, exec *retry.Executor) *PurchaseRepository {
	return &PurchaseRepository{ledger: ledger, exec: exec}
}

// ListByUserID returns the user's purchases, newest first.
func (r *PurchaseRepository) ListByUserID(ctx context.Context, userID string) ([]domain.PresalePurchase, error) {
	return retry.Value(ctx, r.exec, "purchases.list", func(ctx context.Context) ([]domain.PresalePurchase, error) {
		return r.ledger.ListByUserID(ctx, userID)
	})
}
