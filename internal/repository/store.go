package repository

import (
	"context"
	"errors"

	"ekh_mining/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate unique field")
)

// ProfileStore is the remote document collection holding user profiles.
// Uniqueness on user_id and referral_code is enforced by the store.
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)
	FindByReferralCode(ctx context.Context, code string) (*domain.UserProfile, error)
	// Insert assigns p.ID.
	Insert(ctx context.Context, p *domain.UserProfile) error
	Update(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.UserProfile, error)
	Ping(ctx context.Context) error
}

// PurchaseLedger lists presale purchases, newest first.
type PurchaseLedger interface {
	ListByUserID(ctx context.Context, userID string) ([]domain.PresalePurchase, error)
}
