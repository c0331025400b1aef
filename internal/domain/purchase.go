package domain

import "time"

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// PresalePurchase is owned by the purchase ledger and read-only here.
type PresalePurchase struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	AmountUSD       float64        `db:"amount_usd" json:"amount_usd"`
	TokensAmount    float64        `db:"tokens_amount" json:"tokens_amount"`
	Status          PurchaseStatus `db:"status" json:"status"`
	TransactionHash string         `db:"transaction_hash" json:"transaction_hash,omitempty"`
	PaymentMethod   string         `db:"payment_method" json:"payment_method,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

func (p PresalePurchase) Completed() bool {
	return p.Status == PurchaseStatusCompleted
}
