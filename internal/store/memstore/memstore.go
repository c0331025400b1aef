// Package memstore is an in-process Profile Store and Purchase Ledger used
// for DEV_MODE and tests. It can inject failures per operation.
package memstore

import (
	"context"
	"sort"
	"sync"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/repository"

	"github.com/google/uuid"
)

// Operation names used by Calls and FailNext.
const (
	OpFindByUserID       = "find_by_user_id"
	OpFindByReferralCode = "find_by_referral_code"
	OpInsert             = "insert"
	OpUpdate             = "update"
	OpListPurchases      = "list_purchases"
)

type fault struct {
	err   error
	times int
	match func(id string) bool
}

type Store struct {
	mu        sync.Mutex
	profiles  map[string]*domain.UserProfile // by id
	byUser    map[string]string              // user_id -> id
	byCode    map[string]string              // referral_code -> id
	purchases map[string][]domain.PresalePurchase
	calls     map[string]int
	faults    map[string][]*fault
}

var (
	_ repository.ProfileStore   = (*Store)(nil)
	_ repository.PurchaseLedger = (*Store)(nil)
)

func New() *Store {
	return &Store{
		profiles:  make(map[string]*domain.UserProfile),
		byUser:    make(map[string]string),
		byCode:    make(map[string]string),
		purchases: make(map[string][]domain.PresalePurchase),
		calls:     make(map[string]int),
		faults:    make(map[string][]*fault),
	}
}

// FailNext makes the next n calls of op return err.
func (s *Store) FailNext(op string, err error, n int) {
	s.FailNextFor(op, nil, err, n)
}

// FailNextFor is FailNext limited to calls whose key (profile id, user id or
// code) satisfies match.
func (s *Store) FailNextFor(op string, match func(key string) bool, err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], &fault{err: err, times: n, match: match})
}

// Calls returns how many times op was invoked, failed calls included.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter records the call and returns an injected error, if any. Caller holds mu.
func (s *Store) enter(op, key string) error {
	s.calls[op]++
	for _, f := range s.faults[op] {
		if f.times <= 0 || (f.match != nil && !f.match(key)) {
			continue
		}
		f.times--
		return f.err
	}
	return nil
}

func (s *Store) FindByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpFindByUserID, userID); err != nil {
		return nil, err
	}
	id, ok := s.byUser[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.profiles[id].Clone(), nil
}

func (s *Store) FindByReferralCode(ctx context.Context, code string) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpFindByReferralCode, code); err != nil {
		return nil, err
	}
	id, ok := s.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.profiles[id].Clone(), nil
}

func (s *Store) Insert(ctx context.Context, p *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsert, p.UserID); err != nil {
		return err
	}
	if _, ok := s.byUser[p.UserID]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byCode[p.ReferralCode]; ok && p.ReferralCode != "" {
		return repository.ErrDuplicate
	}

	p.ID = uuid.NewString()
	s.profiles[p.ID] = p.Clone()
	s.byUser[p.UserID] = p.ID
	if p.ReferralCode != "" {
		s.byCode[p.ReferralCode] = p.ID
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdate, id); err != nil {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	upd.Apply(p)
	return p.Clone(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) ListByUserID(ctx context.Context, userID string) ([]domain.PresalePurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListPurchases, userID); err != nil {
		return nil, err
	}
	list := append([]domain.PresalePurchase(nil), s.purchases[userID]...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// AddPurchase records a purchase in the ledger.
func (s *Store) AddPurchase(ctx context.Context, p *domain.PresalePurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.purchases[p.UserID] = append(s.purchases[p.UserID], *p)
	return nil
}

// Put stores a profile as-is, bypassing uniqueness checks on update.
// Tests use it to set up arbitrary state.
func (s *Store) Put(p *domain.UserProfile) *domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.profiles[p.ID] = p.Clone()
	s.byUser[p.UserID] = p.ID
	if p.ReferralCode != "" {
		s.byCode[p.ReferralCode] = p.ID
	}
	return p.Clone()
}
