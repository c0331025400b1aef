package session

import (
	"context"
	"sync"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/logger"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	o        *Orchestrator
	booted   time.Time
	lastSeen time.Time
	streams  int
}

// Registry keeps one signed-in Orchestrator per user for the HTTP surface.
// A session is bootstrapped again on an explicit sign-in, on the first
// request of a new calendar day and after IdleTimeout without requests.
type Registry struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	sessions map[string]*entry
	signIns  singleflight.Group
}

func NewRegistry(deps Deps, opts Options) *Registry {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{deps: deps, opts: opts, sessions: make(map[string]*entry)}
}

// SignIn always runs the bootstrap, reusing the user's session if there is
// one. Concurrent sign-ins of one user share the bootstrap.
func (r *Registry) SignIn(ctx context.Context, ident *domain.Identity, provider identity.Provider) (*Orchestrator, error) {
	v, err, _ := r.signIns.Do(ident.ID, func() (any, error) {
		r.mu.Lock()
		e, ok := r.sessions[ident.ID]
		r.mu.Unlock()

		var o *Orchestrator
		if ok {
			o = e.o
			o.useProvider(provider)
		} else {
			o = New(r.deps, provider, r.opts)
		}
		if _, err := o.SignIn(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}

		now := r.opts.Now()
		r.mu.Lock()
		defer r.mu.Unlock()
		cur, ok := r.sessions[ident.ID]
		if ok && cur.o == o {
			cur.booted, cur.lastSeen = now, now
			return o, nil
		}
		if ok {
			// removed and replaced while we were bootstrapping
			return cur.o, nil
		}
		r.sessions[ident.ID] = &entry{o: o, booted: now, lastSeen: now}
		activeSessions.Inc()
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Orchestrator), nil
}

// Ensure returns the user's session and marks it used. It signs in when
// there is no session or the one held is stale.
func (r *Registry) Ensure(ctx context.Context, ident *domain.Identity, provider identity.Provider) (*Orchestrator, error) {
	now := r.opts.Now()
	r.mu.Lock()
	if e, ok := r.sessions[ident.ID]; ok && r.fresh(e, now) {
		e.lastSeen = now
		r.mu.Unlock()
		return e.o, nil
	}
	r.mu.Unlock()
	return r.SignIn(ctx, ident, provider)
}

// fresh reports whether e can serve a request at now. Caller holds mu.
func (r *Registry) fresh(e *entry, now time.Time) bool {
	if e.o.Identity() == nil {
		return false
	}
	if !sameDay(e.booted, now, r.opts.Location) {
		return false
	}
	return now.Sub(e.lastSeen) < r.opts.IdleTimeout
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func (r *Registry) Get(userID string) (*Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.o, true
}

// Hold keeps the session from being swept while a stream is attached.
func (r *Registry) Hold(userID string) (release func()) {
	r.mu.Lock()
	e, ok := r.sessions[userID]
	if ok {
		e.streams++
	}
	r.mu.Unlock()
	if !ok {
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			e.streams--
			e.lastSeen = r.opts.Now()
			r.mu.Unlock()
		})
	}
}

// Sweep signs out sessions idle for IdleTimeout with no stream attached.
// It returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.opts.Now()
	var idle []*Orchestrator
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.streams == 0 && now.Sub(e.lastSeen) >= r.opts.IdleTimeout {
			idle = append(idle, e.o)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, o := range idle {
		o.SignOut()
		activeSessions.Dec()
	}
	return len(idle)
}

// RunJanitor sweeps every interval until ctx ends.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.opts.IdleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Debug("idle sessions dropped", "count", n)
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Remove signs the user out. It reports whether a session existed.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if ok {
		e.o.SignOut()
		activeSessions.Dec()
	}
	return ok
}

// Close signs every session out.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range sessions {
		e.o.SignOut()
		activeSessions.Dec()
	}
}
