package service

import (
	"context"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"
	"ekh_mining/internal/store/memstore"
)

func testExecutor(maxRetries int) *retry.Executor {
	return retry.MustNew(retry.Config{MaxRetries: maxRetries, BaseDelay: time.Millisecond}).
		WithSleep(func(context.Context, time.Duration) error { return nil })
}

func newProfiles(store *memstore.Store) *repository.ProfileRepository {
	return repository.NewProfileRepository(store, testExecutor(2))
}

func purchase(amount float64, status domain.PurchaseStatus) domain.PresalePurchase {
	return domain.PresalePurchase{UserID: "u1", AmountUSD: amount, Status: status}
}

func mustFind(store *memstore.Store, userID string) *domain.UserProfile {
	p, err := store.FindByUserID(context.Background(), userID)
	if err != nil {
		panic(err)
	}
	return p
}
