package domain

import "time"

// ProfileUpdate is a partial write. Nil fields are left untouched;
// UpdatedAt is always written.
type ProfileUpdate struct {
	Username           *string
	TotalCoins         *float64
	CoinsPerSecond     *float64
	MiningPower        *float64
	CurrentStreak      *int
	LongestStreak      *int
	LastLoginDate      *time.Time
	LastMinedAt        *time.Time
	ReferredBy         *string
	TotalReferrals     *int
	LifetimeEarnings   *float64
	TodayEarnings      *float64
	StreakBonusClaimed *int
	UpdatedAt          time.Time
}

// Field is one column/document key of a partial write.
type Field struct {
	Name  string
	Value any
}

// Fields lists the set fields in a fixed order using storage names.
func (u ProfileUpdate) Fields() []Field {
	var fs []Field
	add := func(name string, v any) {
		fs = append(fs, Field{Name: name, Value: v})
	}

	if u.Username != nil {
		add("username", *u.Username)
	}
	if u.TotalCoins != nil {
		add("total_coins", *u.TotalCoins)
	}
	if u.CoinsPerSecond != nil {
		add("coins_per_second", *u.CoinsPerSecond)
	}
	if u.MiningPower != nil {
		add("mining_power", *u.MiningPower)
	}
	if u.CurrentStreak != nil {
		add("current_streak", *u.CurrentStreak)
	}
	if u.LongestStreak != nil {
		add("longest_streak", *u.LongestStreak)
	}
	if u.LastLoginDate != nil {
		add("last_login_date", *u.LastLoginDate)
	}
	if u.LastMinedAt != nil {
		add("last_mined_at", *u.LastMinedAt)
	}
	if u.ReferredBy != nil {
		add("referred_by", *u.ReferredBy)
	}
	if u.TotalReferrals != nil {
		add("total_referrals", *u.TotalReferrals)
	}
	if u.LifetimeEarnings != nil {
		add("lifetime_earnings", *u.LifetimeEarnings)
	}
	if u.TodayEarnings != nil {
		add("today_earnings", *u.TodayEarnings)
	}
	if u.StreakBonusClaimed != nil {
		add("streak_bonus_claimed", *u.StreakBonusClaimed)
	}
	add("updated_at", u.UpdatedAt)
	return fs
}

// Empty reports whether nothing besides UpdatedAt is set.
func (u ProfileUpdate) Empty() bool {
	return len(u.Fields()) == 1
}

// Apply copies the set fields onto p.
func (u ProfileUpdate) Apply(p *UserProfile) {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.TotalCoins != nil {
		p.TotalCoins = *u.TotalCoins
	}
	if u.CoinsPerSecond != nil {
		p.CoinsPerSecond = *u.CoinsPerSecond
	}
	if u.MiningPower != nil {
		p.MiningPower = *u.MiningPower
	}
	if u.CurrentStreak != nil {
		p.CurrentStreak = *u.CurrentStreak
	}
	if u.LongestStreak != nil {
		p.LongestStreak = *u.LongestStreak
	}
	if u.LastLoginDate != nil {
		t := *u.LastLoginDate
		p.LastLoginDate = &t
	}
	if u.LastMinedAt != nil {
		t := *u.LastMinedAt
		p.LastMinedAt = &t
	}
	if u.ReferredBy != nil {
		p.ReferredBy = *u.ReferredBy
	}
	if u.TotalReferrals != nil {
		p.TotalReferrals = *u.TotalReferrals
	}
	if u.LifetimeEarnings != nil {
		p.LifetimeEarnings = *u.LifetimeEarnings
	}
	if u.TodayEarnings != nil {
		p.TodayEarnings = *u.TodayEarnings
	}
	if u.StreakBonusClaimed != nil {
		p.StreakBonusClaimed = *u.StreakBonusClaimed
	}
	if !u.UpdatedAt.IsZero() {
		p.UpdatedAt = u.UpdatedAt
	}
}

// Ptr returns a pointer to v; used to fill ProfileUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}
