package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/retry"
)

const referralCodeAttempts = 5

// ProfileRepository is the only write path for user profiles.
type ProfileRepository struct {
	store ProfileStore
	exec  *retry.Executor
	now   func() time.Time

	mu        sync.Mutex
	lastStamp time.Time
}

func NewProfileRepository(store ProfileStore, exec *retry.Executor) *ProfileRepository {
	return &ProfileRepository{store: store, exec: exec, now: time.Now}
}

// WithClock overrides the time source used for timestamps.
func (r *ProfileRepository) WithClock(now func() time.Time) *ProfileRepository {
	r.now = now
	return r
}

// FindByUserID returns ErrNotFound when the user has no profile yet.
func (r *ProfileRepository) FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return retry.Value(ctx, r.exec, "profile.find", func(ctx context.Context) (*domain.UserProfile, error) {
		return r.store.FindByUserID(ctx, userID)
	})
}

// FindByReferralCode resolves the owner of a referral code.
func (r *ProfileRepository) FindByReferralCode(ctx context.Context, code string) (*domain.UserProfile, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	return retry.Value(ctx, r.exec, "profile.find_by_code", func(ctx context.Context) (*domain.UserProfile, error) {
		return r.store.FindByReferralCode(ctx, code)
	})
}

// Create seeds a profile for a user seen for the first time.
// If another session created it first, the existing profile is returned.
func (r *ProfileRepository) Create(ctx context.Context, userID string, seed domain.ProfileSeed) (*domain.UserProfile, error) {
	var lastErr error
	for i := 0; i < referralCodeAttempts; i++ { // на случай коллизии кода
		now := r.stamp()
		p := &domain.UserProfile{
			UserID:          userID,
			Username:        seed.Username,
			MiningPower:     domain.DefaultMiningPower,
			DailyMiningRate: domain.DefaultDailyMiningRate,
			ReferralCode:    GenerateReferralCode(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		err := r.exec.Do(ctx, "profile.create", func(ctx context.Context) error {
			return r.store.Insert(ctx, p)
		})
		if err == nil {
			logger.WithContext(logger.ContextWith(ctx, "user_id", userID)).Info("profile created", "profile_id", p.ID)
			return p, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}

		// duplicate user_id: created concurrently from another device
		existing, findErr := r.FindByUserID(ctx, userID)
		if findErr == nil {
			return existing, nil
		}
		if !errors.Is(findErr, ErrNotFound) {
			return nil, findErr
		}
		lastErr = err
	}
	return nil, lastErr
}

// LoadOrCreate returns the user's profile, creating it on first login.
func (r *ProfileRepository) LoadOrCreate(ctx context.Context, ident *domain.Identity) (*domain.UserProfile, bool, error) {
	p, err := r.FindByUserID(ctx, ident.ID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	p, err = r.Create(ctx, ident.ID, domain.ProfileSeed{Username: ident.Name})
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Update writes a partial field set. UpdatedAt is always refreshed and never
// goes backwards between sequential calls.
func (r *ProfileRepository) Update(ctx context.Context, profileID string, upd domain.ProfileUpdate) (*domain.UserProfile, error) {
	upd.UpdatedAt = r.stamp()
	return retry.Value(ctx, r.exec, "profile.update", func(ctx context.Context) (*domain.UserProfile, error) {
		return r.store.Update(ctx, profileID, upd)
	})
}

// Ping checks the underlying store.
func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// stamp returns now(), bumped past the previous stamp if the clock went back.
// Mongo keeps milliseconds, so stamps are truncated and bumped at that precision.
func (r *ProfileRepository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Truncate(time.Millisecond)
	if !now.After(r.lastStamp) {
		now = r.lastStamp.Add(time.Millisecond)
	}
	r.lastStamp = now
	return now
}
