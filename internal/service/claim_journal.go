package service

import (
	"context"
	"sync"
	"time"

	"ekh_mining/internal/domain"
)

type ClaimStage string

const (
	ClaimStarted          ClaimStage = "started"
	ClaimReferrerCredited ClaimStage = "referrer_credited"
	ClaimCompleted        ClaimStage = "completed"
)

// ClaimRecord tracks one referral claim of a referee across its two writes.
type ClaimRecord struct {
	ClaimID           string `json:"claim_id"`
	RefereeUserID     string `json:"referee_user_id"`
	ReferrerUserID    string `json:"referrer_user_id"`
	ReferrerProfileID string `json:"referrer_profile_id"`
	// ReferrerCountBefore is the referrer's totalReferrals when the claim
	// started; a higher count on retry means the first write landed.
	ReferrerCountBefore int        `json:"referrer_count_before"`
	Stage               ClaimStage `json:"stage"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// referrerCredited reports whether a started claim against referrer already
// incremented its counter.
func (r *ClaimRecord) referrerCredited(referrer *domain.UserProfile) bool {
	return r != nil && r.Stage == ClaimStarted &&
		r.ReferrerUserID == referrer.UserID &&
		referrer.TotalReferrals > r.ReferrerCountBefore
}

// Pending reports whether the referrer was credited but the referee was not.
func (r *ClaimRecord) Pending() bool {
	return r != nil && r.Stage == ClaimReferrerCredited
}

// ClaimJournal stores the latest claim record per referee.
// Get returns nil, nil when there is none.
type ClaimJournal interface {
	Get(ctx context.Context, refereeUserID string) (*ClaimRecord, error)
	Put(ctx context.Context, rec ClaimRecord) error
}

type MemoryClaimJournal struct {
	mu   sync.Mutex
	recs map[string]ClaimRecord
}

func NewMemoryClaimJournal() *MemoryClaimJournal {
	return &MemoryClaimJournal{recs: make(map[string]ClaimRecord)}
}

func (j *MemoryClaimJournal) Get(_ context.Context, refereeUserID string) (*ClaimRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.recs[refereeUserID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (j *MemoryClaimJournal) Put(_ context.Context, rec ClaimRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs[rec.RefereeUserID] = rec
	return nil
}
