// Package session keeps the locally cached identity of each browser in step
// with the auth backend.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

// Source is the auth surface a Bridge observes.
type Source interface {
	GetSession(ctx context.Context) (*backend.Session, error)
	OnAuthStateChange(listener backend.AuthListener) *backend.Subscription
}

// fetchTimeout bounds the initial session fetch.
const fetchTimeout = 10 * time.Second

// Bridge owns the cached identity for one browser. It is the only writer of
// that value; everything else reads it through Identity.
type Bridge struct {
	src Source

	mu       sync.Mutex
	identity *backend.Identity
	loading  bool
	started  bool
	closed   bool
	sub      *backend.Subscription

	loaded     chan struct{}
	loadedOnce sync.Once
	closeOnce  sync.Once
}

// NewBridge returns a bridge in the loading state. Call Start to begin syncing.
func NewBridge(src Source) *Bridge {
	return &Bridge{
		src:     src,
		loading: true,
		loaded:  make(chan struct{}),
	}
}

// Start registers the change listener and, concurrently, fetches the current
// session once. The fetch keeps ctx's values but not its cancellation, so it
// outlives the request that started it. Calling Start again, or after Close,
// does nothing.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	sub := b.src.OnAuthStateChange(func(_ backend.AuthEvent, s *backend.Session) {
		b.apply(identityOf(s))
	})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	b.sub = sub
	b.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		s, err := b.src.GetSession(ctx)
		if err != nil {
			// Indistinguishable from "nobody signed in"; there is no retry.
			logging.FromContext(ctx).Warn("initial session fetch failed", "error", err)
			s = nil
		}
		b.apply(identityOf(s))
	}()
}

// Identity returns a copy of the cached identity (nil when signed out) and
// whether the first value is still pending.
func (b *Bridge) Identity() (*backend.Identity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil {
		return nil, b.loading
	}
	id := *b.identity
	return &id, b.loading
}

// Loaded is closed once the first identity value, from either path, is known.
func (b *Bridge) Loaded() <-chan struct{} {
	return b.loaded
}

// Wait blocks until the first identity value is known or ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	select {
	case <-b.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear drops the cached identity right away. Sign-out uses it so the page
// rendered next never shows the previous user.
func (b *Bridge) Clear() {
	b.apply(nil)
}

// Close releases the change listener exactly once. Completions that arrive
// afterwards are discarded.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		sub := b.sub
		b.sub = nil
		b.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
	})
}

// apply replaces the identity wholesale. The last applied value wins.
func (b *Bridge) apply(id *backend.Identity) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.identity = id
	b.loading = false
	b.mu.Unlock()

	b.loadedOnce.Do(func() { close(b.loaded) })
}

func identityOf(s *backend.Session) *backend.Identity {
	if s == nil {
		return nil
	}
	id := s.User
	return &id
}
