package repository_test

import (
	"context"
	"errors"
	"testing"
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

func TestProfileRepository_CreateSeedsDefaults(t *testing.T) {
	store := memstore.New()
	repo := repository.NewProfileRepository(store, testExecutor(2))
	ctx := context.Background()

	if _, err := repo.FindByUserID(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before creation, got %v", err)
	}

	p, err := repo.Create(ctx, "u1", domain.ProfileSeed{Username: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || p.UserID != "u1" || p.Username != "alice" {
		t.Fatalf("unexpected identity fields: %+v", p)
	}
	if p.MiningPower != 1 || p.DailyMiningRate != domain.DefaultDailyMiningRate {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.TotalCoins != 0 || p.CoinsPerSecond != 0 || p.CurrentStreak != 0 || p.TotalReferrals != 0 || p.StreakBonusClaimed != 0 {
		t.Fatalf("counters not zeroed: %+v", p)
	}
	if len(p.ReferralCode) != 12 {
		t.Fatalf("referral code %q; want 12 chars", p.ReferralCode)
	}

	byCode, err := repo.FindByReferralCode(ctx, " "+p.ReferralCode+" ")
	if err != nil || byCode.UserID != "u1" {
		t.Fatalf("find by code: %v %v", byCode, err)
	}
}

func TestProfileRepository_CreateReturnsExistingOnRace(t *testing.T) {
	store := memstore.New()
	existing := store.Put(&domain.UserProfile{UserID: "u1", ReferralCode: "AAAA"})
	repo := repository.NewProfileRepository(store, testExecutor(0))

	p, err := repo.Create(context.Background(), "u1", domain.ProfileSeed{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID != existing.ID {
		t.Fatalf("got new profile %s; want existing %s", p.ID, existing.ID)
	}
}

func TestProfileRepository_LoadOrCreate(t *testing.T) {
	store := memstore.New()
	repo := repository.NewProfileRepository(store, testExecutor(0))
	ctx := context.Background()
	ident := &domain.Identity{ID: "u1", Name: "bob"}

	first, created, err := repo.LoadOrCreate(ctx, ident)
	if err != nil || !created {
		t.Fatalf("first load: created=%v err=%v", created, err)
	}
	second, created, err := repo.LoadOrCreate(ctx, ident)
	if err != nil || created {
		t.Fatalf("second load: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("profile recreated")
	}
	if store.Calls(memstore.OpInsert) != 1 {
		t.Fatalf("insert calls = %d; want 1", store.Calls(memstore.OpInsert))
	}
}

func TestProfileRepository_UpdateStampsMonotonic(t *testing.T) {
	store := memstore.New()
	p := store.Put(&domain.UserProfile{UserID: "u1"})

	// clock goes backwards between the two writes
	clock := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	i := 0
	repo := repository.NewProfileRepository(store, testExecutor(0)).WithClock(func() time.Time {
		ts := clock[i]
		i++
		return ts
	})
	ctx := context.Background()

	// caller-provided UpdatedAt is ignored
	first, err := repo.Update(ctx, p.ID, domain.ProfileUpdate{TotalCoins: domain.Ptr(1.0), UpdatedAt: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !first.UpdatedAt.Equal(clock[0]) {
		t.Fatalf("UpdatedAt = %v; want %v", first.UpdatedAt, clock[0])
	}

	second, err := repo.Update(ctx, p.ID, domain.ProfileUpdate{TotalCoins: domain.Ptr(2.0)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("UpdatedAt decreased: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestProfileRepository_UpdateRetriesTransient(t *testing.T) {
	store := memstore.New()
	p := store.Put(&domain.UserProfile{UserID: "u1"})
	store.FailNext(memstore.OpUpdate, retry.Transient(errors.New("i/o timeout")), 2)

	repo := repository.NewProfileRepository(store, testExecutor(3))
	got, err := repo.Update(context.Background(), p.ID, domain.ProfileUpdate{TotalCoins: domain.Ptr(5.0)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.TotalCoins != 5 {
		t.Fatalf("TotalCoins = %v; want 5", got.TotalCoins)
	}
	if n := store.Calls(memstore.OpUpdate); n != 3 {
		t.Fatalf("update calls = %d; want 3", n)
	}
}

func TestProfileRepository_NotFoundIsTerminal(t *testing.T) {
	store := memstore.New()
	repo := repository.NewProfileRepository(store, testExecutor(3))

	if _, err := repo.FindByUserID(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := store.Calls(memstore.OpFindByUserID); n != 1 {
		t.Fatalf("not found was retried: %d calls", n)
	}
}

func TestPurchaseRepository_ListNewestFirst(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = store.AddPurchase(ctx, &domain.PresalePurchase{
			UserID:    "u1",
			AmountUSD: float64(100 * (i + 1)),
			Status:    domain.PurchaseStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	store.FailNext(memstore.OpListPurchases, retry.Transient(errors.New("reset")), 1)

	repo := repository.NewPurchaseRepository(store, testExecutor(1))
	list, err := repo.ListByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].AmountUSD != 300 || list[2].AmountUSD != 100 {
		t.Fatalf("unexpected order: %+v", list)
	}
}
