package domain

import "time"

// UserProfile is the persisted per-user economic state.
type UserProfile struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	Username           string     `db:"username" json:"username,omitempty"`
	TotalCoins         float64    `db:"total_coins" json:"total_coins"`
	CoinsPerSecond     float64    `db:"coins_per_second" json:"coins_per_second"` // авто-майнинг
	MiningPower        float64    `db:"mining_power" json:"mining_power"`
	DailyMiningRate    float64    `db:"daily_mining_rate" json:"daily_mining_rate"`
	CurrentStreak      int        `db:"current_streak" json:"current_streak"`
	LongestStreak      int        `db:"longest_streak" json:"longest_streak"`
	LastLoginDate      *time.Time `db:"last_login_date" json:"last_login_date,omitempty"`
	LastMinedAt        *time.Time `db:"last_mined_at" json:"last_mined_at,omitempty"`
	ReferralCode       string     `db:"referral_code" json:"referral_code"`
	ReferredBy         string     `db:"referred_by" json:"referred_by,omitempty"`
	TotalReferrals     int        `db:"total_referrals" json:"total_referrals"`
	LifetimeEarnings   float64    `db:"lifetime_earnings" json:"lifetime_earnings"`
	TodayEarnings      float64    `db:"today_earnings" json:"today_earnings"`
	StreakBonusClaimed int        `db:"streak_bonus_claimed" json:"streak_bonus_claimed"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ProfileSeed carries the optional values known at first login.
type ProfileSeed struct {
	Username string
}

// Clone returns a deep copy; time pointers are not shared.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastLoginDate != nil {
		t := *p.LastLoginDate
		c.LastLoginDate = &t
	}
	if p.LastMinedAt != nil {
		t := *p.LastMinedAt
		c.LastMinedAt = &t
	}
	return &c
}

// Identity is what the identity provider knows about the signed-in user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Экономика майнинга (EKH)
const (
	DefaultMiningPower     = 1.0
	DefaultDailyMiningRate = 1.0

	StreakBonusDays   = 7
	StreakBonusAmount = 5.0 // EKH за 7 дней подряд, один раз

	MinPurchaseThreshold = 50.0    // $ для включения авто-майнинга
	MaxRatePurchaseCap   = 10000.0 // $ сверх этого не учитываются
	RatePerDollar        = 0.001   // EKH/s за $1
	MaxMiningRate        = 10.0    // EKH/s

	MaxReferrals      = 50
	ReferralRateBonus = 0.2 // EKH/s рефереру
	RefereeBonus      = 2.0 // EKH приглашённому

	MaxAccrualWindow = 24 * time.Hour
)
