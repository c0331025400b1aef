package service

import (
	"context"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
)

// ApplyLogin computes the profile changes for a login at now, with calendar
// days taken in loc. It returns false when the user already logged in today;
// nothing has to be written then.
func ApplyLogin(p domain.UserProfile, now time.Time, loc *time.Location) (domain.ProfileUpdate, bool) {
	if loc == nil {
		loc = time.UTC
	}
	today := calendarDay(now, loc)

	streak := 1
	if p.LastLoginDate != nil {
		last := calendarDay(*p.LastLoginDate, loc)
		if !last.Before(today) {
			return domain.ProfileUpdate{}, false
		}
		if daysBetween(last, today) == 1 {
			streak = p.CurrentStreak + 1
		}
	}

	longest := max(p.LongestStreak, streak)
	coins := p.TotalCoins
	lifetime := p.LifetimeEarnings
	todayEarnings := 0.0 // новый день
	claimed := p.StreakBonusClaimed

	if streak == domain.StreakBonusDays && claimed < 1 {
		coins = addAmount(coins, domain.StreakBonusAmount)
		lifetime = addAmount(lifetime, domain.StreakBonusAmount)
		todayEarnings = domain.StreakBonusAmount
		claimed++
	}

	loginAt := now.UTC()
	return domain.ProfileUpdate{
		CurrentStreak:      &streak,
		LongestStreak:      &longest,
		LastLoginDate:      &loginAt,
		TotalCoins:         &coins,
		LifetimeEarnings:   &lifetime,
		TodayEarnings:      &todayEarnings,
		StreakBonusClaimed: &claimed,
	}, true
}

// calendarDay strips the time of day in loc. The result is expressed in UTC
// so that day arithmetic ignores DST shifts.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

// StreakService records the daily login of a user.
type StreakService struct {
	profiles *repository.ProfileRepository
	loc      *time.Location
}

func NewStreakService(profiles *repository.ProfileRepository, loc *time.Location) *StreakService {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakService{profiles: profiles, loc: loc}
}

// RecordLogin applies the login at now to the stored profile. The returned
// bool reports whether a write happened.
func (s *StreakService) RecordLogin(ctx context.Context, userID string, now time.Time) (*domain.UserProfile, bool, error) {
	p, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	upd, ok := ApplyLogin(*p, now, s.loc)
	if !ok {
		return p, false, nil
	}

	updated, err := s.profiles.Update(ctx, p.ID, upd)
	if err != nil {
		return nil, false, err
	}

	log := logger.WithContext(logger.ContextWith(ctx, "user_id", userID))
	if updated.StreakBonusClaimed > p.StreakBonusClaimed {
		streakBonuses.Inc()
		log.Info("streak bonus granted", "streak", updated.CurrentStreak, "amount", domain.StreakBonusAmount)
	}
	log.Debug("login recorded", "streak", updated.CurrentStreak, "longest", updated.LongestStreak)
	return updated, true, nil
}
