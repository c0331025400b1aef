// Package events is a small in-process publish/subscribe bus. Delivery is
// synchronous and follows subscription order.
package events

import (
	"context"
	"errors"
	"sync"

	"ekh_mining/internal/domain"
)

const (
	TopicPurchasesChanged = "purchases.changed"
	TopicProfileChanged   = "profile.changed"
)

type Event interface {
	Topic() string
}

// PurchasesChanged is published after the purchase list of a user was fetched.
type PurchasesChanged struct {
	UserID    string
	Purchases []domain.PresalePurchase
}

func (PurchasesChanged) Topic() string { return TopicPurchasesChanged }

// ProfileChanged is published when a write produced a new profile snapshot.
type ProfileChanged struct {
	Profile domain.UserProfile
}

func (ProfileChanged) Topic() string { return TopicProfileChanged }

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id int
	h  Handler
}

type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers h for topic and returns a function removing it.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			b.subs[topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish calls every handler of e's topic, even if an earlier one failed.
// Handlers run outside the bus lock and may subscribe or unsubscribe.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := append([]subscription(nil), b.subs[e.Topic()]...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range handlers {
		if err := s.h(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset drops all subscriptions.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}
