// Package session drives one signed-in user: sign-in bootstrap, profile
// refresh with dedup and debounce, and change notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/events"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/service"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMinInterval = 2 * time.Second
	DefaultIdleTimeout = 30 * time.Minute
)

var ErrNotSignedIn = errors.New("not signed in")

type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Profiles  *repository.ProfileRepository
	Purchases *repository.PurchaseRepository
	Streaks   *service.StreakService
	Rates     *service.RateService
	Referrals *service.ReferralService
	Mining    *service.MiningService
}

type Options struct {
	// MinInterval is the debounce window of RefreshProfile.
	MinInterval time.Duration
	// IdleTimeout is how long the Registry keeps a session nobody touches.
	IdleTimeout time.Duration
	// Location decides the calendar day for streaks and session rollover.
	Location *time.Location
	Now      func() time.Time
}

type Orchestrator struct {
	deps     Deps
	provider identity.Provider
	opts     Options
	bus      *events.Bus
	group    singleflight.Group

	// claimMu serializes referral journal work of this user.
	claimMu sync.Mutex

	mu          sync.Mutex
	unsubRate   func()
	ident       *domain.Identity
	profile     *domain.UserProfile
	purchases   []domain.PresalePurchase
	state       State
	lastRefresh time.Time
}

func New(deps Deps, provider identity.Provider, opts Options) *Orchestrator {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		deps:     deps,
		provider: provider,
		opts:     opts,
		bus:      events.NewBus(),
	}
}

// SignIn authenticates and then runs the session bootstrap: load or create
// the profile, finish a pending referral claim, record the login and sync
// purchases. Bootstrap failures are logged and do not fail the sign-in.
func (o *Orchestrator) SignIn(ctx context.Context) (*domain.Identity, error) {
	o.mu.Lock()
	provider := o.provider
	o.mu.Unlock()

	ident, err := provider.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrUnauthenticated) {
			err = fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
		}
		return nil, err
	}

	o.mu.Lock()
	o.ident = ident
	if o.unsubRate == nil {
		o.unsubRate = o.bus.Subscribe(events.TopicPurchasesChanged, o.onPurchasesChanged)
	}
	o.mu.Unlock()

	ctx = logger.ContextWith(ctx, "user_id", ident.ID)
	o.bootstrap(ctx, ident)
	return ident, nil
}

func (o *Orchestrator) bootstrap(ctx context.Context, ident *domain.Identity) {
	log := logger.WithContext(ctx)

	p, created, err := o.deps.Profiles.LoadOrCreate(ctx, ident)
	if err != nil {
		log.Warn("profile load failed", "error", err)
	} else {
		if created {
			log.Info("first login, profile created", "profile_id", p.ID)
		}
		o.setProfile(ctx, p)
	}

	o.claimMu.Lock()
	res, err := o.deps.Referrals.ResumePending(ctx, ident.ID)
	o.claimMu.Unlock()
	if err != nil {
		log.Warn("pending referral claim not finished", "error", err)
	} else if res != nil {
		o.setProfile(ctx, res.Profile)
	}

	if p, wrote, err := o.deps.Streaks.RecordLogin(ctx, ident.ID, o.opts.Now()); err != nil {
		log.Warn("login streak not recorded", "error", err)
	} else if wrote {
		o.setProfile(ctx, p)
	}

	if _, err := o.SyncPurchases(ctx); err != nil {
		log.Warn("purchase sync failed", "error", err)
	}
}

// useProvider swaps the credentials used by the next SignIn.
func (o *Orchestrator) useProvider(p identity.Provider) {
	o.mu.Lock()
	o.provider = p
	o.mu.Unlock()
}

// SignOut forgets the user and drops every subscriber.
func (o *Orchestrator) SignOut() {
	o.bus.Reset()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unsubRate = nil
	o.ident = nil
	o.profile = nil
	o.purchases = nil
	o.lastRefresh = time.Time{}
}

// RefreshProfile reads the profile from the store, creating it if sign-in
// could not. Concurrent callers share one read; within MinInterval of the
// last read the cached profile is returned. A caller whose ctx ends stops
// waiting, the read goes on.
func (o *Orchestrator) RefreshProfile(ctx context.Context) (*domain.UserProfile, error) {
	o.mu.Lock()
	ident := o.ident
	if ident == nil {
		o.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	if o.profile != nil && o.opts.Now().Sub(o.lastRefresh) < o.opts.MinInterval {
		p := o.profile.Clone()
		o.mu.Unlock()
		refreshes.WithLabelValues("debounced").Inc()
		return p, nil
	}
	o.mu.Unlock()

	readCtx := context.WithoutCancel(ctx)
	ch := o.group.DoChan(ident.ID, func() (any, error) {
		o.setState(StateRefreshing)
		defer o.setState(StateIdle)

		p, _, err := o.deps.Profiles.LoadOrCreate(readCtx, ident)
		if err != nil {
			return nil, err
		}
		return o.setProfile(readCtx, p), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			refreshes.WithLabelValues("shared").Inc()
		} else {
			refreshes.WithLabelValues("fetched").Inc()
		}
		if r.Err != nil {
			return nil, r.Err
		}
		if p := r.Val.(*domain.UserProfile); p != nil {
			return p.Clone(), nil
		}
		return nil, ErrNotSignedIn
	}
}

// SilentRefreshProfile is RefreshProfile for background callers: errors are
// logged, never returned.
func (o *Orchestrator) SilentRefreshProfile(ctx context.Context) {
	if _, err := o.RefreshProfile(ctx); err != nil && !errors.Is(err, ErrNotSignedIn) {
		logger.WithContext(ctx).Warn("silent profile refresh failed", "error", err)
	}
}

// SyncPurchases fetches the purchase list and publishes it; the rate
// subscriber brings coinsPerSecond in line. Returns the resulting rate.
func (o *Orchestrator) SyncPurchases(ctx context.Context) (float64, error) {
	ident, err := o.identity()
	if err != nil {
		return 0, err
	}

	list, err := o.deps.Purchases.ListByUserID(ctx, ident.ID)
	if err != nil {
		return 0, err
	}
	o.mu.Lock()
	o.purchases = list
	o.mu.Unlock()

	if err := o.bus.Publish(ctx, events.PurchasesChanged{UserID: ident.ID, Purchases: list}); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.profile == nil {
		return service.CalculateAutoMiningRate(list), nil
	}
	return o.profile.CoinsPerSecond, nil
}

func (o *Orchestrator) onPurchasesChanged(ctx context.Context, e events.Event) error {
	ev := e.(events.PurchasesChanged)
	p, changed, err := o.deps.Rates.Reconcile(ctx, ev.UserID, ev.Purchases)
	if err != nil {
		return fmt.Errorf("reconcile mining rate: %w", err)
	}
	if changed {
		o.setProfile(ctx, p)
	}
	return nil
}

// ClaimReferral applies a referral code for the signed-in user. Claims of
// one session run one at a time.
func (o *Orchestrator) ClaimReferral(ctx context.Context, code string) (*service.ClaimResult, error) {
	ident, err := o.identity()
	if err != nil {
		return nil, err
	}
	o.claimMu.Lock()
	defer o.claimMu.Unlock()
	res, err := o.deps.Referrals.Claim(ctx, ident.ID, code)
	if err != nil {
		return nil, err
	}
	o.setProfile(ctx, res.Profile)
	return res, nil
}

// CollectMining credits coins mined since the previous collection.
func (o *Orchestrator) CollectMining(ctx context.Context) (*service.MiningResult, error) {
	ident, err := o.identity()
	if err != nil {
		return nil, err
	}
	res, err := o.deps.Mining.Collect(ctx, ident.ID, o.opts.Now())
	if err != nil {
		return nil, err
	}
	o.setProfile(ctx, res.Profile)
	return res, nil
}

// SubscribeToProfileUpdates registers fn for profile changes. fn runs on the
// goroutine that observed the change, never under the session lock.
func (o *Orchestrator) SubscribeToProfileUpdates(fn func(domain.UserProfile)) (unsubscribe func()) {
	return o.bus.Subscribe(events.TopicProfileChanged, func(_ context.Context, e events.Event) error {
		fn(e.(events.ProfileChanged).Profile)
		return nil
	})
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Profile returns the cached profile, nil before the first successful read.
func (o *Orchestrator) Profile() *domain.UserProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.profile.Clone()
}

// Purchases returns the list fetched by the last SyncPurchases.
func (o *Orchestrator) Purchases() []domain.PresalePurchase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.PresalePurchase(nil), o.purchases...)
}

func (o *Orchestrator) Identity() *domain.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ident == nil {
		return nil
	}
	c := *o.ident
	return &c
}

func (o *Orchestrator) identity() (*domain.Identity, error) {
	if ident := o.Identity(); ident != nil {
		return ident, nil
	}
	return nil, ErrNotSignedIn
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// setProfile caches p and, if it differs from the cached value, publishes
// ProfileChanged after releasing the lock. A snapshot older than the cached
// one is dropped. Returns the profile cached afterwards.
func (o *Orchestrator) setProfile(ctx context.Context, p *domain.UserProfile) *domain.UserProfile {
	if p == nil {
		return nil
	}
	o.mu.Lock()
	if o.ident == nil || o.ident.ID != p.UserID {
		o.mu.Unlock()
		return nil
	}
	if o.profile != nil && p.UpdatedAt.Before(o.profile.UpdatedAt) {
		cached := o.profile.Clone()
		o.mu.Unlock()
		staleSnapshots.Inc()
		return cached
	}
	changed := o.profile == nil || !cmp.Equal(*o.profile, *p)
	o.profile = p.Clone()
	o.lastRefresh = o.opts.Now()
	o.mu.Unlock()

	if changed {
		if err := o.bus.Publish(ctx, events.ProfileChanged{Profile: *p.Clone()}); err != nil {
			logger.WithContext(ctx).Warn("profile listener failed", "error", err)
		}
	}
	return p.Clone()
}
