package session

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

const (
	defaultBrowserTTL  = 24 * time.Hour
	defaultMaxBrowsers = 10000
)

// Browser is the per-visitor state: its auth client and the bridge mirroring it.
type Browser struct {
	ID      string
	Auth    *backend.AuthClient
	Session *Bridge

	lastSeen time.Time
}

// Registry keeps one Browser per cookie identifier in memory. It holds at
// most maxBrowsers of them, dropping the least recently used first, and
// sweeps out the ones idle longer than ttl. A dropped browser's bridge is
// closed.
type Registry struct {
	newAuth func() *backend.AuthClient
	ttl     time.Duration
	now     func() time.Time

	// mu serialises lookup-or-create and guards lastSeen.
	mu       sync.Mutex
	browsers *lru.Cache[string, *Browser]
}

// NewRegistry returns a registry that builds auth clients with newAuth,
// evicts browsers unseen for ttl and keeps at most maxBrowsers.
func NewRegistry(newAuth func() *backend.AuthClient, ttl time.Duration, maxBrowsers int) *Registry {
	if newAuth == nil {
		panic("session: auth client factory must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultBrowserTTL
	}
	if maxBrowsers <= 0 {
		maxBrowsers = defaultMaxBrowsers
	}
	browsers, err := lru.NewWithEvict(maxBrowsers, func(_ string, b *Browser) {
		b.Session.Close()
	})
	if err != nil {
		// Only a non-positive size is rejected.
		panic("session: " + err.Error())
	}
	return &Registry{
		newAuth:  newAuth,
		ttl:      ttl,
		now:      time.Now,
		browsers: browsers,
	}
}

// Get returns the browser for id, creating and starting it on first sight.
// Creating one past capacity closes the least recently used browser.
func (r *Registry) Get(ctx context.Context, id string) *Browser {
	now := r.now()

	r.mu.Lock()
	if b, ok := r.browsers.Get(id); ok {
		b.lastSeen = now
		r.mu.Unlock()
		return b
	}
	auth := r.newAuth()
	b := &Browser{ID: id, Auth: auth, Session: NewBridge(auth), lastSeen: now}
	if r.browsers.Add(id, b) {
		logging.FromContext(ctx).Debug("browser capacity reached, dropped least recently used")
	}
	r.mu.Unlock()

	b.Session.Start(ctx)
	return b
}

// Has reports whether a browser is registered under id without touching its
// recency. Useful for tests.
func (r *Registry) Has(id string) bool {
	return r.browsers.Contains(id)
}

// Len reports how many browsers are registered.
func (r *Registry) Len() int {
	return r.browsers.Len()
}

// Sweep evicts browsers idle for longer than the ttl and returns how many went.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for _, id := range r.browsers.Keys() {
		b, ok := r.browsers.Peek(id)
		if !ok || now.Sub(b.lastSeen) <= r.ttl {
			continue
		}
		if r.browsers.Remove(id) {
			evicted++
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done, then closes every browser.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Info("evicted idle browsers", "count", n)
			}
		}
	}
}

// Close tears every browser down.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.browsers.Purge()
}
