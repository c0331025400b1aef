package service

import (
	"context"
	"testing"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/store/memstore"
)

func day(d, h int) time.Time {
	return time.Date(2026, 4, d, h, 0, 0, 0, time.UTC)
}

func TestApplyLogin(t *testing.T) {
	cases := []struct {
		name        string
		profile     domain.UserProfile
		now         time.Time
		wantWrite   bool
		wantStreak  int
		wantLongest int
	}{
		{"first login", domain.UserProfile{}, day(10, 9), true, 1, 1},
		{"consecutive day", domain.UserProfile{CurrentStreak: 3, LongestStreak: 3, LastLoginDate: ptrTime(day(9, 23))}, day(10, 1), true, 4, 4},
		{"gap resets", domain.UserProfile{CurrentStreak: 5, LongestStreak: 6, LastLoginDate: ptrTime(day(7, 12))}, day(10, 12), true, 1, 6},
		{"same day", domain.UserProfile{CurrentStreak: 2, LongestStreak: 2, LastLoginDate: ptrTime(day(10, 1))}, day(10, 23), false, 2, 2},
		{"last login in future", domain.UserProfile{CurrentStreak: 2, LongestStreak: 2, LastLoginDate: ptrTime(day(12, 1))}, day(10, 1), false, 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			upd, ok := ApplyLogin(tc.profile, tc.now, time.UTC)
			if ok != tc.wantWrite {
				t.Fatalf("write = %v; want %v", ok, tc.wantWrite)
			}
			p := tc.profile
			upd.Apply(&p)
			if p.CurrentStreak != tc.wantStreak || p.LongestStreak != tc.wantLongest {
				t.Fatalf("streak %d/%d; want %d/%d", p.CurrentStreak, p.LongestStreak, tc.wantStreak, tc.wantLongest)
			}
			if p.LongestStreak < p.CurrentStreak {
				t.Fatalf("longest < current")
			}
			if ok && !p.LastLoginDate.Equal(tc.now) {
				t.Fatalf("last login = %v; want %v", p.LastLoginDate, tc.now)
			}
		})
	}
}

func TestApplyLogin_BonusOnce(t *testing.T) {
	p := domain.UserProfile{CurrentStreak: 6, LongestStreak: 6, TotalCoins: 10, LifetimeEarnings: 10, TodayEarnings: 3, LastLoginDate: ptrTime(day(9, 8))}

	upd, _ := ApplyLogin(p, day(10, 8), time.UTC)
	upd.Apply(&p)
	if p.CurrentStreak != 7 || p.TotalCoins != 15 || p.StreakBonusClaimed != 1 {
		t.Fatalf("bonus not granted: %+v", p)
	}
	if p.LifetimeEarnings != 15 || p.TodayEarnings != 5 {
		t.Fatalf("earnings = %v/%v; want 15/5", p.LifetimeEarnings, p.TodayEarnings)
	}

	// streak broken and rebuilt to 7: no second bonus
	p.CurrentStreak = 6
	p.LastLoginDate = ptrTime(day(20, 8))
	upd, _ = ApplyLogin(p, day(21, 8), time.UTC)
	upd.Apply(&p)
	if p.CurrentStreak != 7 || p.TotalCoins != 15 || p.StreakBonusClaimed != 1 {
		t.Fatalf("bonus granted twice: %+v", p)
	}
}

func TestApplyLogin_TimezonePolicy(t *testing.T) {
	// 23:30 and 00:30 UTC are different days in UTC, the same day in UTC-2
	last := time.Date(2026, 4, 9, 23, 30, 0, 0, time.UTC)
	now := time.Date(2026, 4, 10, 0, 30, 0, 0, time.UTC)
	p := domain.UserProfile{CurrentStreak: 1, LongestStreak: 1, LastLoginDate: &last}

	if _, ok := ApplyLogin(p, now, time.UTC); !ok {
		t.Fatalf("expected a new day in UTC")
	}
	if _, ok := ApplyLogin(p, now, time.FixedZone("UTC-2", -2*3600)); ok {
		t.Fatalf("expected the same day in UTC-2")
	}
}

func TestStreakService_RecordLogin(t *testing.T) {
	store := memstore.New()
	store.Put(&domain.UserProfile{UserID: "u1", ReferralCode: "C1"})
	svc := NewStreakService(newProfiles(store), nil)
	ctx := context.Background()

	p, wrote, err := svc.RecordLogin(ctx, "u1", day(10, 8))
	if err != nil || !wrote || p.CurrentStreak != 1 {
		t.Fatalf("first login: %+v wrote=%v err=%v", p, wrote, err)
	}
	_, wrote, err = svc.RecordLogin(ctx, "u1", day(10, 20))
	if err != nil || wrote {
		t.Fatalf("same-day login wrote=%v err=%v", wrote, err)
	}
	if n := store.Calls(memstore.OpUpdate); n != 1 {
		t.Fatalf("update calls = %d; want 1", n)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
