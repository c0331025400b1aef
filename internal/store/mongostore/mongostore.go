// Package mongostore keeps profiles and presale purchases in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	ProfilesCollection  = "profiles"
	PurchasesCollection = "presale_purchases"
)

type profileDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	UserID             string             `bson:"user_id"`
	Username           string             `bson:"username"`
	TotalCoins         float64            `bson:"total_coins"`
	CoinsPerSecond     float64            `bson:"coins_per_second"`
	MiningPower        float64            `bson:"mining_power"`
	DailyMiningRate    float64            `bson:"daily_mining_rate"`
	CurrentStreak      int                `bson:"current_streak"`
	LongestStreak      int                `bson:"longest_streak"`
	LastLoginDate      *time.Time         `bson:"last_login_date,omitempty"`
	LastMinedAt        *time.Time         `bson:"last_mined_at,omitempty"`
	ReferralCode       string             `bson:"referral_code"`
	ReferredBy         string             `bson:"referred_by"`
	TotalReferrals     int                `bson:"total_referrals"`
	LifetimeEarnings   float64            `bson:"lifetime_earnings"`
	TodayEarnings      float64            `bson:"today_earnings"`
	StreakBonusClaimed int                `bson:"streak_bonus_claimed"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

type purchaseDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          string             `bson:"user_id"`
	AmountUSD       float64            `bson:"amount_usd"`
	TokensAmount    float64            `bson:"tokens_amount"`
	Status          string             `bson:"status"`
	TransactionHash string             `bson:"transaction_hash,omitempty"`
	PaymentMethod   string             `bson:"payment_method,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
}

type Store struct {
	db        *mongo.Database
	profiles  *mongo.Collection
	purchases *mongo.Collection
}

var (
	_ repository.ProfileStore   = (*Store)(nil)
	_ repository.PurchaseLedger = (*Store)(nil)
)

func New(db *mongo.Database) *Store {
	return &Store{
		db:        db,
		profiles:  db.Collection(ProfilesCollection),
		purchases: db.Collection(PurchasesCollection),
	}
}

// EnsureIndexes creates the unique indexes profile creation relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.profiles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "referral_code", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("profiles indexes: %w", classify(err))
	}
	_, err = s.purchases.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("purchases index: %w", classify(err))
	}
	return nil
}

func (s *Store) FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return s.findOne(ctx, bson.M{"user_id": userID})
}

func (s *Store) FindByReferralCode(ctx context.Context, code string) (*domain.UserProfile, error) {
	return s.findOne(ctx, bson.M{"referral_code": code})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*domain.UserProfile, error) {
	var doc profileDoc
	if err := s.profiles.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, classify(err)
	}
	return doc.toDomain(), nil
}

func (s *Store) Insert(ctx context.Context, p *domain.UserProfile) error {
	doc := profileFromDomain(p)
	doc.ID = primitive.NewObjectID()
	if _, err := s.profiles.InsertOne(ctx, doc); err != nil {
		return classify(err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (s *Store) Update(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.UserProfile, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}

	var doc profileDoc
	err = s.profiles.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": setDocument(upd)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, classify(err)
	}
	return doc.toDomain(), nil
}

func setDocument(upd domain.ProfileUpdate) bson.D {
	fields := upd.Fields()
	set := make(bson.D, 0, len(fields))
	for _, f := range fields {
		set = append(set, bson.E{Key: f.Name, Value: f.Value})
	}
	return set
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.Client().Ping(ctx, readpref.Primary()))
}

func (s *Store) ListByUserID(ctx context.Context, userID string) ([]domain.PresalePurchase, error) {
	cur, err := s.purchases.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var docs []purchaseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	list := make([]domain.PresalePurchase, 0, len(docs))
	for _, d := range docs {
		list = append(list, d.toDomain())
	}
	return list, nil
}

// AddPurchase records a purchase; used by seeding tools and tests.
func (s *Store) AddPurchase(ctx context.Context, p *domain.PresalePurchase) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	doc := purchaseDoc{
		ID:              primitive.NewObjectID(),
		UserID:          p.UserID,
		AmountUSD:       p.AmountUSD,
		TokensAmount:    p.TokensAmount,
		Status:          string(p.Status),
		TransactionHash: p.TransactionHash,
		PaymentMethod:   p.PaymentMethod,
		CreatedAt:       p.CreatedAt,
	}
	if _, err := s.purchases.InsertOne(ctx, doc); err != nil {
		return classify(err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

func (d profileDoc) toDomain() *domain.UserProfile {
	return &domain.UserProfile{
		ID:                 d.ID.Hex(),
		UserID:             d.UserID,
		Username:           d.Username,
		TotalCoins:         d.TotalCoins,
		CoinsPerSecond:     d.CoinsPerSecond,
		MiningPower:        d.MiningPower,
		DailyMiningRate:    d.DailyMiningRate,
		CurrentStreak:      d.CurrentStreak,
		LongestStreak:      d.LongestStreak,
		LastLoginDate:      utcPtr(d.LastLoginDate),
		LastMinedAt:        utcPtr(d.LastMinedAt),
		ReferralCode:       d.ReferralCode,
		ReferredBy:         d.ReferredBy,
		TotalReferrals:     d.TotalReferrals,
		LifetimeEarnings:   d.LifetimeEarnings,
		TodayEarnings:      d.TodayEarnings,
		StreakBonusClaimed: d.StreakBonusClaimed,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

func profileFromDomain(p *domain.UserProfile) profileDoc {
	return profileDoc{
		UserID:             p.UserID,
		Username:           p.Username,
		TotalCoins:         p.TotalCoins,
		CoinsPerSecond:     p.CoinsPerSecond,
		MiningPower:        p.MiningPower,
		DailyMiningRate:    p.DailyMiningRate,
		CurrentStreak:      p.CurrentStreak,
		LongestStreak:      p.LongestStreak,
		LastLoginDate:      p.LastLoginDate,
		LastMinedAt:        p.LastMinedAt,
		ReferralCode:       p.ReferralCode,
		ReferredBy:         p.ReferredBy,
		TotalReferrals:     p.TotalReferrals,
		LifetimeEarnings:   p.LifetimeEarnings,
		TodayEarnings:      p.TodayEarnings,
		StreakBonusClaimed: p.StreakBonusClaimed,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (d purchaseDoc) toDomain() domain.PresalePurchase {
	return domain.PresalePurchase{
		ID:              d.ID.Hex(),
		UserID:          d.UserID,
		AmountUSD:       d.AmountUSD,
		TokensAmount:    d.TokensAmount,
		Status:          domain.PurchaseStatus(d.Status),
		TransactionHash: d.TransactionHash,
		PaymentMethod:   d.PaymentMethod,
		CreatedAt:       d.CreatedAt.UTC(),
	}
}

// mongo returns times in local zone with ms precision
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return retry.Transient(err)
	}

	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("RetryableWriteError") {
		return retry.Transient(err)
	}
	return err
}
