package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"

	"github.com/google/uuid"
)

var (
	ErrAlreadyReferred = errors.New("already referred")
	ErrInvalidCode     = errors.New("invalid code")
	ErrSelfReferral    = errors.New("cannot refer self")
	ErrReferrerCapped  = errors.New("referrer capped")
	ErrClaimPending    = errors.New("another referral claim is pending")
)

// IsReferralRejection reports whether err is a business rejection of a claim.
func IsReferralRejection(err error) bool {
	return errors.Is(err, ErrAlreadyReferred) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrSelfReferral) ||
		errors.Is(err, ErrReferrerCapped) ||
		errors.Is(err, ErrClaimPending)
}

type ClaimResult struct {
	ClaimID  string              `json:"claim_id"`
	Referrer string              `json:"referrer_user_id"`
	Bonus    float64             `json:"bonus"`
	Profile  *domain.UserProfile `json:"profile"`
	Resumed  bool                `json:"resumed"`
}

// ReferralService applies referral claims. A claim is two profile writes,
// referrer first; the journal records how far a claim got so a retry never
// credits the referrer twice.
type ReferralService struct {
	profiles *repository.ProfileRepository
	journal  ClaimJournal
	exec     *retry.Executor
	now      func() time.Time
}

func NewReferralService(profiles *repository.ProfileRepository, journal ClaimJournal, exec *retry.Executor) *ReferralService {
	return &ReferralService{profiles: profiles, journal: journal, exec: exec, now: time.Now}
}

// Claim credits the owner of code for referring userID.
func (s *ReferralService) Claim(ctx context.Context, userID, code string) (*ClaimResult, error) {
	res, err := s.claim(ctx, userID, code)
	referralClaims.WithLabelValues(claimResultLabel(err)).Inc()
	return res, err
}

func (s *ReferralService) claim(ctx context.Context, userID, code string) (*ClaimResult, error) {
	ctx = logger.ContextWith(ctx, "user_id", userID)
	log := logger.WithContext(ctx)

	referee, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, err := s.getRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	if referee.ReferredBy != "" {
		if rec.Pending() && rec.ReferrerUserID == referee.ReferredBy {
			// second leg landed but the journal was not closed
			s.putRecord(ctx, rec, ClaimCompleted)
		}
		return nil, ErrAlreadyReferred
	}

	referrer, err := s.profiles.FindByReferralCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if referrer.UserID == userID {
		return nil, ErrSelfReferral
	}

	if rec.Pending() {
		if rec.ReferrerUserID != referrer.UserID {
			return nil, ErrClaimPending
		}
		log.Info("resuming referral claim", "claim_id", rec.ClaimID, "referrer", referrer.UserID)
		res, err := s.creditReferee(ctx, referee, rec)
		if res != nil {
			res.Resumed = true
		}
		return res, err
	}

	if rec.referrerCredited(referrer) {
		// the referrer write landed but its acknowledgement was lost
		log.Info("referrer already credited, finishing claim", "claim_id", rec.ClaimID, "referrer", referrer.UserID)
		s.putRecord(ctx, rec, ClaimReferrerCredited)
		res, err := s.creditReferee(ctx, referee, rec)
		if res != nil {
			res.Resumed = true
		}
		return res, err
	}

	if referrer.TotalReferrals >= domain.MaxReferrals {
		return nil, ErrReferrerCapped
	}

	rec = &ClaimRecord{
		ClaimID:             uuid.NewString(),
		RefereeUserID:       userID,
		ReferrerUserID:      referrer.UserID,
		ReferrerProfileID:   referrer.ID,
		ReferrerCountBefore: referrer.TotalReferrals,
	}
	if err := s.exec.Do(ctx, "claim_journal.put", func(ctx context.Context) error {
		rec.Stage = ClaimStarted
		rec.UpdatedAt = s.now().UTC()
		return s.journal.Put(ctx, *rec)
	}); err != nil {
		return nil, fmt.Errorf("open referral claim: %w", err)
	}

	total := referrer.TotalReferrals + 1
	rate := min(addAmount(referrer.CoinsPerSecond, domain.ReferralRateBonus), domain.MaxMiningRate)
	if _, err := s.profiles.Update(ctx, referrer.ID, domain.ProfileUpdate{
		TotalReferrals: &total,
		CoinsPerSecond: &rate,
	}); err != nil {
		return nil, fmt.Errorf("credit referrer: %w", err)
	}
	s.putRecord(ctx, rec, ClaimReferrerCredited)

	return s.creditReferee(ctx, referee, rec)
}

// creditReferee is the second leg. On failure the record stays at
// referrer_credited and the next Claim or ResumePending finishes it.
func (s *ReferralService) creditReferee(ctx context.Context, referee *domain.UserProfile, rec *ClaimRecord) (*ClaimResult, error) {
	referredBy := rec.ReferrerUserID
	coins := addAmount(referee.TotalCoins, domain.RefereeBonus)
	lifetime := addAmount(referee.LifetimeEarnings, domain.RefereeBonus)
	today := addAmount(referee.TodayEarnings, domain.RefereeBonus)

	updated, err := s.profiles.Update(ctx, referee.ID, domain.ProfileUpdate{
		ReferredBy:       &referredBy,
		TotalCoins:       &coins,
		LifetimeEarnings: &lifetime,
		TodayEarnings:    &today,
	})
	if err != nil {
		logger.WithContext(ctx).Warn("referee credit failed, claim left pending",
			"claim_id", rec.ClaimID, "error", err)
		return nil, fmt.Errorf("credit referee: %w", err)
	}
	s.putRecord(ctx, rec, ClaimCompleted)

	logger.WithContext(ctx).Info("referral claimed",
		"referrer", rec.ReferrerUserID, "claim_id", rec.ClaimID)
	return &ClaimResult{
		ClaimID:  rec.ClaimID,
		Referrer: rec.ReferrerUserID,
		Bonus:    domain.RefereeBonus,
		Profile:  updated,
	}, nil
}

// ResumePending finishes a claim whose referee write failed earlier, or whose
// referrer write landed without being acknowledged.
// It returns nil, nil when nothing is pending.
func (s *ReferralService) ResumePending(ctx context.Context, userID string) (*ClaimResult, error) {
	ctx = logger.ContextWith(ctx, "user_id", userID)
	rec, err := s.getRecord(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Stage == ClaimStarted {
		referrer, err := s.profiles.FindByUserID(ctx, rec.ReferrerUserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !rec.referrerCredited(referrer) {
			return nil, nil
		}
		s.putRecord(ctx, rec, ClaimReferrerCredited)
	}
	if !rec.Pending() {
		return nil, nil
	}

	referee, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if referee.ReferredBy != "" {
		s.putRecord(ctx, rec, ClaimCompleted)
		return nil, nil
	}

	res, err := s.creditReferee(ctx, referee, rec)
	if res != nil {
		res.Resumed = true
		referralClaims.WithLabelValues("resumed").Inc()
	}
	return res, err
}

func (s *ReferralService) getRecord(ctx context.Context, userID string) (*ClaimRecord, error) {
	return retry.Value(ctx, s.exec, "claim_journal.get", func(ctx context.Context) (*ClaimRecord, error) {
		return s.journal.Get(ctx, userID)
	})
}

// putRecord advances the journal. A failed write is logged only: the profile
// writes already happened and the state they left is what counts.
func (s *ReferralService) putRecord(ctx context.Context, rec *ClaimRecord, stage ClaimStage) {
	rec.Stage = stage
	rec.UpdatedAt = s.now().UTC()
	err := s.exec.Do(ctx, "claim_journal.put", func(ctx context.Context) error {
		return s.journal.Put(ctx, *rec)
	})
	if err != nil {
		logger.WithContext(ctx).Error("claim journal write failed",
			"claim_id", rec.ClaimID, "stage", stage, "error", err)
	}
}

func claimResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAlreadyReferred):
		return "already_referred"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrSelfReferral):
		return "self_referral"
	case errors.Is(err, ErrReferrerCapped):
		return "capped"
	case errors.Is(err, ErrClaimPending):
		return "pending"
	}
	return "error"
}
