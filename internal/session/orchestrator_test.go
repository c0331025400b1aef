package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"
	"ekh_mining/internal/service"
	"ekh_mining/internal/store/memstore"
)

type staticProvider struct {
	ident *domain.Identity
	err   error
}

func (p staticProvider) CurrentUser(context.Context) (*domain.Identity, error) {
	return p.ident, p.err
}

// gatedStore blocks FindByUserID while the gate is armed. With stale set,
// the next read takes its snapshot first and then waits at the gate.
type gatedStore struct {
	*memstore.Store
	armed   atomic.Bool
	stale   atomic.Bool
	entered chan struct{}
	release chan struct{}
	reads   atomic.Int32
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memstore.New(),
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if g.stale.CompareAndSwap(true, false) {
		p, err := g.Store.FindByUserID(ctx, userID)
		g.reads.Add(1)
		g.entered <- struct{}{}
		<-g.release
		return p, err
	}
	if g.armed.Load() {
		g.reads.Add(1)
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Store.FindByUserID(ctx, userID)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testDeps(store repository.ProfileStore, ledger repository.PurchaseLedger) Deps {
	exec := retry.MustNew(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond}).
		WithSleep(func(context.Context, time.Duration) error { return nil })
	profiles := repository.NewProfileRepository(store, exec)
	return Deps{
		Profiles:  profiles,
		Purchases: repository.NewPurchaseRepository(ledger, exec),
		Streaks:   service.NewStreakService(profiles, time.UTC),
		Rates:     service.NewRateService(profiles),
		Referrals: service.NewReferralService(profiles, service.NewMemoryClaimJournal(), exec),
		Mining:    service.NewMiningService(profiles),
	}
}

func newTestSession(t *testing.T, store repository.ProfileStore, ledger repository.PurchaseLedger, userID string) (*Orchestrator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)}
	o := New(testDeps(store, ledger), staticProvider{ident: &domain.Identity{ID: userID, Name: userID}}, Options{Now: clock.Now})
	return o, clock
}

func TestSignIn_BootstrapsProfile(t *testing.T) {
	store := memstore.New()
	_ = store.AddPurchase(context.Background(), &domain.PresalePurchase{UserID: "u1", AmountUSD: 1000, Status: domain.PurchaseStatusCompleted})
	o, _ := newTestSession(t, store, store, "u1")

	ident, err := o.SignIn(context.Background())
	if err != nil || ident.ID != "u1" {
		t.Fatalf("sign in: %v %v", ident, err)
	}

	p := o.Profile()
	if p == nil {
		t.Fatalf("profile not loaded")
	}
	if p.Username != "u1" || p.CurrentStreak != 1 || p.CoinsPerSecond != 1.0 {
		t.Fatalf("unexpected profile after bootstrap: %+v", p)
	}
	if len(o.Purchases()) != 1 {
		t.Fatalf("purchases not synced")
	}
	// streak + rate
	if n := store.Calls(memstore.OpUpdate); n != 2 {
		t.Fatalf("update calls = %d; want 2", n)
	}

	// unchanged purchases: no write
	if _, err := o.SyncPurchases(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n := store.Calls(memstore.OpUpdate); n != 2 {
		t.Fatalf("redundant rate write: %d updates", n)
	}
}

func TestSignIn_Unauthenticated(t *testing.T) {
	store := memstore.New()
	o := New(testDeps(store, store), staticProvider{err: errors.New("token expired")}, Options{})

	if _, err := o.SignIn(context.Background()); !errors.Is(err, identity.ErrUnauthenticated) {
		t.Fatalf("err = %v; want ErrUnauthenticated", err)
	}
	if _, err := o.RefreshProfile(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("refresh before sign in: %v", err)
	}
}

func TestSignIn_StoreDown(t *testing.T) {
	store := memstore.New()
	down := retry.Transient(errors.New("connection refused"))
	for _, op := range []string{memstore.OpFindByUserID, memstore.OpInsert, memstore.OpUpdate, memstore.OpListPurchases} {
		store.FailNext(op, down, 100)
	}
	o, _ := newTestSession(t, store, store, "u1")

	ident, err := o.SignIn(context.Background())
	if err != nil {
		t.Fatalf("sign in must succeed without the store: %v", err)
	}
	if ident.ID != "u1" || o.Profile() != nil {
		t.Fatalf("unexpected state: ident %+v profile %+v", ident, o.Profile())
	}
}

func TestRefreshProfile_Debounce(t *testing.T) {
	store := memstore.New()
	o, clock := newTestSession(t, store, store, "u1")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	before := store.Calls(memstore.OpFindByUserID)

	clock.Advance(time.Second)
	if _, err := o.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := store.Calls(memstore.OpFindByUserID); n != before {
		t.Fatalf("refresh within 2s hit the store (%d -> %d)", before, n)
	}

	clock.Advance(2 * time.Second)
	if _, err := o.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := store.Calls(memstore.OpFindByUserID); n != before+1 {
		t.Fatalf("store reads = %d; want %d", n, before+1)
	}
}

func TestRefreshProfile_ConcurrentCallersShareOneRead(t *testing.T) {
	store := newGatedStore()
	o, clock := newTestSession(t, store, store, "u1")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	clock.Advance(time.Minute)
	store.armed.Store(true)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RefreshProfile(context.Background())
			errs <- err
		}()
	}

	start()
	<-store.entered
	if o.State() != StateRefreshing {
		t.Fatalf("state = %v; want refreshing", o.State())
	}
	for i := 1; i < callers; i++ {
		start()
	}
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	if n := store.reads.Load(); n != 1 {
		t.Fatalf("store reads = %d; want 1", n)
	}
	if o.State() != StateIdle {
		t.Fatalf("state = %v; want idle", o.State())
	}
}

func TestRefreshProfile_CallerCancelDoesNotAbortRead(t *testing.T) {
	store := newGatedStore()
	o, clock := newTestSession(t, store, store, "u1")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	clock.Advance(time.Minute)
	store.armed.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.RefreshProfile(ctx)
		done <- err
	}()
	<-store.entered
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}

	second := make(chan error, 1)
	go func() {
		_, err := o.RefreshProfile(context.Background())
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	if err := <-second; err != nil {
		t.Fatalf("shared read failed: %v", err)
	}
	if n := store.reads.Load(); n != 1 {
		t.Fatalf("store reads = %d; want 1", n)
	}
}

func TestRefreshProfile_CreatesProfileMissedAtSignIn(t *testing.T) {
	store := memstore.New()
	store.FailNext(memstore.OpInsert, retry.Transient(errors.New("connection reset")), 2)
	o, clock := newTestSession(t, store, store, "u1")

	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if o.Profile() != nil {
		t.Fatalf("profile should be missing after failed create")
	}

	clock.Advance(5 * time.Second)
	p, err := o.RefreshProfile(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if p.UserID != "u1" || p.ReferralCode == "" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if o.Profile() == nil {
		t.Fatalf("created profile not cached")
	}
	if n := store.Calls(memstore.OpInsert); n != 3 {
		t.Fatalf("insert calls = %d; want 3", n)
	}
}

func TestRefreshProfile_StaleReadDoesNotOverwriteNewerProfile(t *testing.T) {
	store := newGatedStore()
	store.Put(&domain.UserProfile{UserID: "ref", ReferralCode: "REF000000001", MiningPower: 1})
	o, clock := newTestSession(t, store, store, "u1")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	var mu sync.Mutex
	var referredBy []string
	o.SubscribeToProfileUpdates(func(p domain.UserProfile) {
		mu.Lock()
		referredBy = append(referredBy, p.ReferredBy)
		mu.Unlock()
	})

	clock.Advance(time.Minute)
	store.stale.Store(true)
	type result struct {
		p   *domain.UserProfile
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := o.RefreshProfile(context.Background())
		done <- result{p, err}
	}()
	<-store.entered

	if _, err := o.ClaimReferral(context.Background(), "REF000000001"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	close(store.release)

	r := <-done
	if r.err != nil {
		t.Fatalf("refresh: %v", r.err)
	}
	if r.p.ReferredBy != "ref" {
		t.Fatalf("refresh returned stale profile: referred_by %q", r.p.ReferredBy)
	}
	if got := o.Profile().ReferredBy; got != "ref" {
		t.Fatalf("cached referred_by = %q; want ref", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(referredBy) != 1 || referredBy[0] != "ref" {
		t.Fatalf("notifications = %q; want [ref]", referredBy)
	}
}

func TestSubscribeToProfileUpdates_OnlyOnChange(t *testing.T) {
	store := memstore.New()
	o, clock := newTestSession(t, store, store, "u1")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	var got []domain.UserProfile
	unsub := o.SubscribeToProfileUpdates(func(p domain.UserProfile) {
		got = append(got, p)
	})

	clock.Advance(time.Minute)
	if _, err := o.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("notified without a change: %d", len(got))
	}

	p, _ := store.FindByUserID(context.Background(), "u1")
	p.TotalCoins = 42
	store.Put(p)
	clock.Advance(time.Minute)
	if _, err := o.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(got) != 1 || got[0].TotalCoins != 42 {
		t.Fatalf("notifications = %+v", got)
	}

	unsub()
	p.TotalCoins = 43
	store.Put(p)
	clock.Advance(time.Minute)
	_, _ = o.RefreshProfile(context.Background())
	if len(got) != 1 {
		t.Fatalf("notified after unsubscribe")
	}
}

func TestClaimReferral_UpdatesLocalProfile(t *testing.T) {
	store := memstore.New()
	store.Put(&domain.UserProfile{UserID: "alice", ReferralCode: "ALICE0000001", MiningPower: 1})
	o, _ := newTestSession(t, store, store, "bob")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	notified := 0
	o.SubscribeToProfileUpdates(func(domain.UserProfile) { notified++ })

	res, err := o.ClaimReferral(context.Background(), "ALICE0000001")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Referrer != "alice" || o.Profile().ReferredBy != "alice" || o.Profile().TotalCoins != 2 {
		t.Fatalf("local profile not updated: %+v", o.Profile())
	}
	if notified != 1 {
		t.Fatalf("notified = %d; want 1", notified)
	}

	if _, err := o.ClaimReferral(context.Background(), "ALICE0000001"); !errors.Is(err, service.ErrAlreadyReferred) {
		t.Fatalf("second claim: %v", err)
	}
}

func TestClaimReferral_ConcurrentClaimsCreditOnce(t *testing.T) {
	store := memstore.New()
	store.Put(&domain.UserProfile{UserID: "alice", ReferralCode: "ALICE0000001", MiningPower: 1})
	o, _ := newTestSession(t, store, store, "bob")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.ClaimReferral(context.Background(), "ALICE0000001")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, service.ErrAlreadyReferred):
		default:
			t.Fatalf("claim: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful claims = %d; want 1", ok)
	}
	alice, _ := store.FindByUserID(context.Background(), "alice")
	if alice.TotalReferrals != 1 {
		t.Fatalf("referrer credited %d times", alice.TotalReferrals)
	}
	bob, _ := store.FindByUserID(context.Background(), "bob")
	if bob.TotalCoins != 2 {
		t.Fatalf("referee coins = %v; want 2", bob.TotalCoins)
	}
}

func TestSignOut_DropsState(t *testing.T) {
	store := memstore.New()
	o, _ := newTestSession(t, store, store, "u1")
	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	called := false
	o.SubscribeToProfileUpdates(func(domain.UserProfile) { called = true })

	o.SignOut()
	if o.Profile() != nil || o.Identity() != nil {
		t.Fatalf("state kept after sign out")
	}
	if _, err := o.CollectMining(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("collect after sign out: %v", err)
	}

	if _, err := o.SignIn(context.Background()); err != nil {
		t.Fatalf("sign in again: %v", err)
	}
	if called {
		t.Fatalf("listener survived sign out")
	}
}

func TestRegistry_EnsureAndRemove(t *testing.T) {
	store := memstore.New()
	reg := NewRegistry(testDeps(store, store), Options{})
	ident := &domain.Identity{ID: "u1"}
	provider := staticProvider{ident: ident}

	var wg sync.WaitGroup
	sessions := make([]*Orchestrator, 4)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := reg.Ensure(context.Background(), ident, provider)
			if err != nil {
				t.Errorf("ensure: %v", err)
				return
			}
			sessions[i] = o
		}(i)
	}
	wg.Wait()

	for _, o := range sessions[1:] {
		if o != sessions[0] {
			t.Fatalf("registry created more than one session")
		}
	}
	if n := store.Calls(memstore.OpInsert); n != 1 {
		t.Fatalf("insert calls = %d; want 1", n)
	}

	if !reg.Remove("u1") {
		t.Fatalf("remove reported no session")
	}
	if _, ok := reg.Get("u1"); ok {
		t.Fatalf("session still registered")
	}
	if reg.Remove("u1") {
		t.Fatalf("second remove reported a session")
	}
}

func newTestRegistry(store *memstore.Store, start time.Time) (*Registry, *fakeClock) {
	clock := &fakeClock{now: start}
	return NewRegistry(testDeps(store, store), Options{Now: clock.Now}), clock
}

func TestRegistry_SignInNextDayAdvancesStreak(t *testing.T) {
	store := memstore.New()
	reg, clock := newTestRegistry(store, time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC))
	ident := &domain.Identity{ID: "u1", Name: "u1"}
	provider := staticProvider{ident: ident}

	first, err := reg.SignIn(context.Background(), ident, provider)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if n := first.Profile().CurrentStreak; n != 1 {
		t.Fatalf("day 1 streak = %d; want 1", n)
	}

	clock.Advance(24 * time.Hour)
	second, err := reg.SignIn(context.Background(), ident, provider)
	if err != nil {
		t.Fatalf("sign in next day: %v", err)
	}
	if second != first {
		t.Fatalf("sign in replaced the live session")
	}
	if n := second.Profile().CurrentStreak; n != 2 {
		t.Fatalf("day 2 streak = %d; want 2", n)
	}
	if p, _ := store.FindByUserID(context.Background(), "u1"); p.CurrentStreak != 2 {
		t.Fatalf("stored streak = %d; want 2", p.CurrentStreak)
	}
	if reg.Len() != 1 {
		t.Fatalf("sessions = %d; want 1", reg.Len())
	}
}

func TestRegistry_EnsureRebootstrapsOnNewDay(t *testing.T) {
	store := memstore.New()
	reg, clock := newTestRegistry(store, time.Date(2026, 4, 10, 23, 50, 0, 0, time.UTC))
	ident := &domain.Identity{ID: "u1", Name: "u1"}
	provider := staticProvider{ident: ident}

	o, err := reg.Ensure(context.Background(), ident, provider)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// same day, not idle: served from the registry
	clock.Advance(5 * time.Minute)
	reads := store.Calls(memstore.OpFindByUserID)
	if _, err := reg.Ensure(context.Background(), ident, provider); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if n := store.Calls(memstore.OpFindByUserID); n != reads {
		t.Fatalf("fresh session bootstrapped again (%d -> %d reads)", reads, n)
	}

	clock.Advance(10 * time.Minute)
	if _, err := reg.Ensure(context.Background(), ident, provider); err != nil {
		t.Fatalf("ensure after midnight: %v", err)
	}
	if n := o.Profile().CurrentStreak; n != 2 {
		t.Fatalf("streak after midnight = %d; want 2", n)
	}
}

func TestRegistry_SweepDropsIdleSessions(t *testing.T) {
	store := memstore.New()
	reg, clock := newTestRegistry(store, time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC))
	for _, id := range []string{"idle", "streaming"} {
		ident := &domain.Identity{ID: id, Name: id}
		if _, err := reg.Ensure(context.Background(), ident, staticProvider{ident: ident}); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
	}
	release := reg.Hold("streaming")

	clock.Advance(DefaultIdleTimeout + time.Minute)
	if n := reg.Sweep(); n != 1 {
		t.Fatalf("swept = %d; want 1", n)
	}
	if _, ok := reg.Get("idle"); ok {
		t.Fatalf("idle session kept")
	}
	if _, ok := reg.Get("streaming"); !ok {
		t.Fatalf("held session swept")
	}

	release()
	release()
	if n := reg.Sweep(); n != 0 {
		t.Fatalf("session swept right after its stream closed")
	}
	clock.Advance(DefaultIdleTimeout)
	if n := reg.Sweep(); n != 1 || reg.Len() != 0 {
		t.Fatalf("swept = %d, left %d; want 1, 0", n, reg.Len())
	}
}
