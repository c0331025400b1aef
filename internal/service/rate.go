package service

import (
	"context"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	minPurchase   = decimal.NewFromFloat(domain.MinPurchaseThreshold)
	purchaseCap   = decimal.NewFromFloat(domain.MaxRatePurchaseCap)
	ratePerDollar = decimal.NewFromFloat(domain.RatePerDollar)
	maxRate       = decimal.NewFromFloat(domain.MaxMiningRate)
	referralBonus = decimal.NewFromFloat(domain.ReferralRateBonus)
)

// CompletedTotal sums AmountUSD over completed purchases.
func CompletedTotal(purchases []domain.PresalePurchase) float64 {
	return completedTotal(purchases).InexactFloat64()
}

func completedTotal(purchases []domain.PresalePurchase) decimal.Decimal {
	total := decimal.Zero
	for _, p := range purchases {
		if p.Completed() {
			total = total.Add(decimal.NewFromFloat(p.AmountUSD))
		}
	}
	return total
}

// CalculateAutoMiningRate returns the EKH/s earned from presale purchases:
// 0.001 per completed dollar, counted from $50, capped at $10,000 and 10 EKH/s.
func CalculateAutoMiningRate(purchases []domain.PresalePurchase) float64 {
	return roundAmount(autoRate(purchases))
}

func autoRate(purchases []domain.PresalePurchase) decimal.Decimal {
	spent := completedTotal(purchases)
	if spent.LessThan(minPurchase) {
		return decimal.Zero
	}
	rate := decimal.Min(spent, purchaseCap).Mul(ratePerDollar)
	return decimal.Min(rate, maxRate)
}

// TargetMiningRate is the coinsPerSecond a profile should hold: the purchase
// rate plus 0.2 per referral, capped at 10.
func TargetMiningRate(purchases []domain.PresalePurchase, totalReferrals int) float64 {
	rate := autoRate(purchases).Add(referralBonus.Mul(decimal.NewFromInt(int64(totalReferrals))))
	return roundAmount(decimal.Min(rate, maxRate))
}

// RateService keeps coinsPerSecond in line with the purchase ledger.
type RateService struct {
	profiles *repository.ProfileRepository
}

func NewRateService(profiles *repository.ProfileRepository) *RateService {
	return &RateService{profiles: profiles}
}

// Reconcile re-reads the profile and writes coinsPerSecond only when the
// recomputed value differs from the stored one.
func (s *RateService) Reconcile(ctx context.Context, userID string, purchases []domain.PresalePurchase) (*domain.UserProfile, bool, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	target := TargetMiningRate(purchases, p.TotalReferrals)
	if target == roundAmount(decimal.NewFromFloat(p.CoinsPerSecond)) {
		return p, false, nil
	}

	updated, err := s.profiles.Update(ctx, p.ID, domain.ProfileUpdate{CoinsPerSecond: &target})
	if err != nil {
		return nil, false, err
	}
	rateUpdates.Inc()
	logger.WithContext(logger.ContextWith(ctx, "user_id", userID)).Info("mining rate updated",
		"from", p.CoinsPerSecond, "to", target, "completed_usd", CompletedTotal(purchases))
	return updated, true, nil
}
