package service

import (
	"context"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"

	"github.com/shopspring/decimal"
)

type MiningResult struct {
	Earned  float64             `json:"earned"`
	Elapsed time.Duration       `json:"elapsed_ns"`
	Profile *domain.UserProfile `json:"profile"`
}

// MiningService turns time spent at the current rate into coins.
type MiningService struct {
	profiles *repository.ProfileRepository
}

func NewMiningService(profiles *repository.ProfileRepository) *MiningService {
	return &MiningService{profiles: profiles}
}

// Earned returns the coins accrued between lastMinedAt and now. The window is
// capped at 24h; a clock that went backwards earns nothing.
func Earned(p domain.UserProfile, now time.Time) (float64, time.Duration) {
	if p.LastMinedAt == nil {
		return 0, 0
	}
	elapsed := now.Sub(*p.LastMinedAt)
	if elapsed <= 0 {
		return 0, 0
	}
	elapsed = min(elapsed, domain.MaxAccrualWindow)

	earned := decimal.NewFromFloat(elapsed.Seconds()).
		Mul(decimal.NewFromFloat(p.CoinsPerSecond)).
		Mul(decimal.NewFromFloat(p.MiningPower))
	return roundAmount(earned), elapsed
}

// Collect credits the coins mined since the previous collection. The first
// call only starts the clock.
func (s *MiningService) Collect(ctx context.Context, userID string, now time.Time) (*MiningResult, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	earned, elapsed := Earned(*p, now)
	minedAt := now.UTC()
	upd := domain.ProfileUpdate{LastMinedAt: &minedAt}
	if earned > 0 {
		upd.TotalCoins = domain.Ptr(addAmount(p.TotalCoins, earned))
		upd.LifetimeEarnings = domain.Ptr(addAmount(p.LifetimeEarnings, earned))
		upd.TodayEarnings = domain.Ptr(addAmount(p.TodayEarnings, earned))
	}

	updated, err := s.profiles.Update(ctx, p.ID, upd)
	if err != nil {
		return nil, err
	}

	if earned > 0 {
		minedCoins.Add(earned)
		logger.WithContext(logger.ContextWith(ctx, "user_id", userID)).Debug("mining collected", "earned", earned, "elapsed", elapsed)
	}
	return &MiningResult{Earned: earned, Elapsed: elapsed, Profile: updated}, nil
}
