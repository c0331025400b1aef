// Package pgstore keeps profiles and presale purchases in Postgres.
// Schema: internal/migrations.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileColumns = `id::text AS id, user_id, username, total_coins, coins_per_second, mining_power,
	daily_mining_rate, current_streak, longest_streak, last_login_date, last_mined_at,
	referral_code, referred_by, total_referrals, lifetime_earnings, today_earnings,
	streak_bonus_claimed, created_at, updated_at`

const purchaseColumns = `id::text AS id, user_id, amount_usd::float8 AS amount_usd,
	tokens_amount::float8 AS tokens_amount, status, transaction_hash, payment_method, created_at`

type Store struct {
	db *pgxpool.Pool
}

var (
	_ repository.ProfileStore   = (*Store)(nil)
	_ repository.PurchaseLedger = (*Store)(nil)
)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return s.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
}

func (s *Store) FindByReferralCode(ctx context.Context, code string) (*domain.UserProfile, error) {
	return s.findOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE referral_code = $1`, code)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*domain.UserProfile, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[domain.UserProfile])
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Store) Insert(ctx context.Context, p *domain.UserProfile) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO profiles (user_id, username, total_coins, coins_per_second, mining_power,
			daily_mining_rate, current_streak, longest_streak, last_login_date, last_mined_at,
			referral_code, referred_by, total_referrals, lifetime_earnings, today_earnings,
			streak_bonus_claimed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING id::text`,
		p.UserID, p.Username, p.TotalCoins, p.CoinsPerSecond, p.MiningPower,
		p.DailyMiningRate, p.CurrentStreak, p.LongestStreak, p.LastLoginDate, p.LastMinedAt,
		p.ReferralCode, p.ReferredBy, p.TotalReferrals, p.LifetimeEarnings, p.TodayEarnings,
		p.StreakBonusClaimed, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	return classify(err)
}

func (s *Store) Update(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.UserProfile, error) {
	query, args := updateQuery(id, upd)
	return s.findOne(ctx, query, args...)
}

// updateQuery builds the partial UPDATE. Column names come from
// ProfileUpdate.Fields, never from user input.
func updateQuery(id string, upd domain.ProfileUpdate) (string, []any) {
	fields := upd.Fields()
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Name, i+1))
		args = append(args, f.Value)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE id = $%d::uuid RETURNING %s`,
		strings.Join(sets, ", "), len(args), profileColumns)
	return query, args
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.Ping(ctx))
}

func (s *Store) ListByUserID(ctx context.Context, userID string) ([]domain.PresalePurchase, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+purchaseColumns+`
		 FROM presale_purchases
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, classify(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.PresalePurchase])
	if err != nil {
		return nil, classify(err)
	}
	return list, nil
}

// AddPurchase records a purchase; used by seeding tools and tests.
func (s *Store) AddPurchase(ctx context.Context, p *domain.PresalePurchase) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO presale_purchases (user_id, amount_usd, tokens_amount, status, transaction_hash, payment_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		 RETURNING id::text, created_at`,
		p.UserID, p.AmountUSD, p.TokensAmount, string(p.Status), p.TransactionHash, p.PaymentMethod, nullTime(p),
	).Scan(&p.ID, &p.CreatedAt)
	return classify(err)
}

func nullTime(p *domain.PresalePurchase) any {
	if p.CreatedAt.IsZero() {
		return nil
	}
	return p.CreatedAt
}

// classify maps driver errors onto repository sentinels and marks the ones
// worth retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.ConstraintName)
		case pgErr.Code == "22P02" && strings.Contains(pgErr.Message, "uuid"):
			// malformed id can't exist
			return repository.ErrNotFound
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			pgErr.Code == "40001", pgErr.Code == "40P01", // serialization, deadlock
			pgErr.Code == "57P01", pgErr.Code == "57P03": // admin shutdown, cannot connect now
			return retry.Transient(err)
		}
		return err
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return retry.Transient(err)
	}
	return err
}
