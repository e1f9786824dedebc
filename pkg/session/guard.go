// Package session serializes work on a chat so that at most one worker
// advances its sessions at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultLockTTL bounds how long a crashed worker can hold a distributed lock.
const DefaultLockTTL = 30 * time.Second

// ErrLockLost is the cancellation cause of a guarded function whose
// distributed lock could not be extended.
var ErrLockLost = errors.New("distributed lock lost")

// Lease is a held distributed lock.
type Lease interface {
	// Refresh pushes the expiry ttl into the future. It returns ErrLockLost
	// once the lock belongs to someone else.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker is a lock shared between processes, such as redislock.Locker.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Guard holds one in-process lock per key, reference counted so unused keys
// are dropped, and optionally a distributed lock on top of it.
type Guard struct {
	mu     sync.Mutex
	locks  map[string]*lockEntry
	locker Locker
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Guard)

// WithLocker adds a distributed lock taken after the local one.
func WithLocker(locker Locker) Option {
	return func(g *Guard) { g.locker = locker }
}

// WithTTL sets the expiry of the distributed lock.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) { g.ttl = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLockTTL,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(g)
	}

	g.logger = g.logger.With("module", "session_guard")

	return g
}

func (g *Guard) acquire(key string) *lockEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.locks[key]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		g.locks[key] = entry
	}

	entry.refs++

	return entry
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(g.locks, key)
	}
}

// Active returns the number of keys currently locked or waited on.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.locks)
}

// WithLock runs fn while holding the lock for key. Waiting stops when ctx is
// done.
func (g *Guard) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := g.acquire(key)
	defer g.release(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	defer func() { <-entry.sem }()

	if g.locker == nil {
		return fn(ctx)
	}

	lease, err := g.locker.Lock(ctx, key, g.ttl)
	if err != nil {
		return fmt.Errorf("acquire distributed lock %s: %w", key, err)
	}

	defer func() {
		// Released with a fresh context so a cancelled caller still unlocks.
		err := lease.Release(context.WithoutCancel(ctx))
		if err != nil {
			g.logger.Warn("failed to release distributed lock, it will expire", "key", key, "error", err)
		}
	}()

	fnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	stopped := make(chan struct{})

	go g.keepAlive(fnCtx, key, lease, cancel, stop, stopped)

	err = fn(fnCtx)

	close(stop)
	<-stopped

	if errors.Is(context.Cause(fnCtx), ErrLockLost) {
		return fmt.Errorf("chat %s: %w", key, ErrLockLost)
	}

	return err
}

// keepAlive extends the lease every third of its ttl until stop is closed.
// A lost lease cancels the guarded function.
func (g *Guard) keepAlive(ctx context.Context, key string, lease Lease, cancel context.CancelCauseFunc, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := g.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := lease.Refresh(ctx, g.ttl)
			if err == nil {
				continue
			}

			if errors.Is(err, ErrLockLost) {
				g.logger.Error("distributed lock lost while running", "key", key)
				cancel(ErrLockLost)

				return
			}

			g.logger.Warn("failed to extend distributed lock", "key", key, "error", err)
		}
	}
}
