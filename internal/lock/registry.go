package lock

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives a change event after every successful lock write.
// The registry calls it synchronously; implementations must not block.
type Notifier interface {
	LockChanged(l *Lock)
	LockDeleted(id string)
}

// Registry provides lock management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating write operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo     Repository
	cache    map[string]*Lock
	cacheMu  sync.RWMutex
	logger   Logger
	notifier Notifier
}

// NewRegistry creates a new lock registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Lock),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier sets the change notifier. Pass nil to disable notifications.
func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

// RefreshCache reloads all locks from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	locks, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading locks: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Lock, len(locks))
	for i := range locks {
		l := locks[i]
		r.cache[l.ID] = l.Clone()
	}

	r.logger.Info("lock cache refreshed", "count", len(locks))
	return nil
}

// Get retrieves a lock by ID.
// Returns ErrLockNotFound if the lock does not exist.
// The returned lock is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Lock, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Clone(), nil
	}

	// Fall back to repository (might be a new lock not yet cached)
	l, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = l.Clone()
	r.cacheMu.Unlock()

	return l, nil
}

// List retrieves all locks. The returned locks are copies.
func (r *Registry) List(ctx context.Context) ([]Lock, error) {
	return r.repo.List(ctx)
}

// ListByOwner retrieves all locks owned by a specific user.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]Lock, error) {
	return r.repo.ListByOwner(ctx, ownerID)
}

// Create inserts a new lock and caches it.
func (r *Registry) Create(ctx context.Context, l *Lock) error {
	if err := r.repo.Create(ctx, l); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[l.ID] = l.Clone()
	r.cacheMu.Unlock()

	r.logger.Info("lock created", "lock_id", l.ID, "name", l.Name)
	r.notifyChanged(l)
	return nil
}

// Rename changes a lock's display name.
func (r *Registry) Rename(ctx context.Context, id, name string) (*Lock, error) {
	if err := r.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}

	l, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = l.Clone()
	r.cacheMu.Unlock()

	r.notifyChanged(l)
	return l, nil
}

// Delete removes a lock and evicts it from the cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("lock deleted", "lock_id", id)
	if r.notifier != nil {
		r.notifier.LockDeleted(id)
	}
	return nil
}

// Transition moves the lock into the target state, updates the cache,
// and emits a change event. Delegates the conditional write to the
// repository so the race semantics live in one place.
func (r *Registry) Transition(ctx context.Context, id string, target State, actor string) (*Lock, error) {
	l, err := r.repo.Transition(ctx, id, target, actor)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = l.Clone()
	r.cacheMu.Unlock()

	r.logger.Info("lock state changed", "lock_id", id, "state", string(target), "actor", actor)
	r.notifyChanged(l)
	return l, nil
}

// UpdateBattery sets the battery level and refreshes the cached entry.
func (r *Registry) UpdateBattery(ctx context.Context, id string, level int) error {
	if err := r.repo.UpdateBattery(ctx, id, level); err != nil {
		return err
	}

	l, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[id] = l.Clone()
	r.cacheMu.Unlock()

	r.logger.Debug("battery level updated", "lock_id", id, "level", level)
	r.notifyChanged(l)
	return nil
}

func (r *Registry) notifyChanged(l *Lock) {
	if r.notifier != nil {
		r.notifier.LockChanged(l.Clone())
	}
}
