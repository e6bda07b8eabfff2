// Package session holds the process-wide authenticated identity and mirrors
// it to client-side durable storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/onsync/onsync/internal/rbac"
)

var (
	// ErrMalformed indicates persisted session data could not be decoded.
	ErrMalformed = errors.New("session: malformed persisted state")
	// ErrInvalidIdentity indicates an identity failed validation and was not stored.
	ErrInvalidIdentity = errors.New("session: invalid identity")
)

// Observer is notified with the new snapshot after every store write.
type Observer = func(identity *rbac.Identity)

// Store owns the current identity. Readers get a lock-free snapshot that is
// never modified after publication; writers are serialized and always
// replace the whole identity, so a role and a permission set seen together
// come from the same write.
type Store struct {
	persister Persister
	logger    *slog.Logger
	validate  *validator.Validate

	current atomic.Pointer[rbac.Identity]
	ready   atomic.Bool

	// mu serializes writes so observers see them in order. obsMu guards the
	// observer list only and is never held while an observer runs.
	mu        sync.Mutex
	obsMu     sync.Mutex
	nextID    int
	observers []subscription
}

type subscription struct {
	id int
	fn Observer
}

// NewStore constructs an unauthenticated, not yet ready Store.
func NewStore(persister Persister, logger *slog.Logger) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		persister: persister,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Init hydrates the store from durable storage. Missing or malformed data
// leaves the store unauthenticated without error. Storage failures are
// returned and keep whatever identity the store already held; the store is
// marked ready either way.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.hydrate(ctx)
	if err != nil {
		s.ready.Store(true)
		s.notify(s.current.Load())
		return fmt.Errorf("session: hydrate: %w", err)
	}
	s.current.Store(identity)
	s.ready.Store(true)
	s.notify(identity)
	if identity != nil {
		s.logger.Info("session restored", slog.Int64("user_id", identity.ID), slog.String("role", string(identity.Role)))
	}
	return nil
}

// Set validates and publishes identity, then mirrors it to durable storage.
// A rejected identity leaves the previous state untouched. Persistence is a
// cache: its failures are logged and do not undo the in-memory write.
func (s *Store) Set(ctx context.Context, identity *rbac.Identity) error {
	if identity == nil {
		return fmt.Errorf("%w: nil identity", ErrInvalidIdentity)
	}
	if err := s.validate.Struct(identity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	snapshot := identity.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(snapshot)
	s.ready.Store(true)
	s.notify(snapshot)

	if err := s.persist(ctx, snapshot); err != nil {
		s.logger.Warn("persist session", slog.Any("error", err))
	}
	return nil
}

// Clear removes the identity and its persisted copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(nil)
	s.ready.Store(true)
	s.notify(nil)

	if err := s.persister.Delete(ctx, KeyUser, KeyPermissions); err != nil {
		s.logger.Warn("clear persisted session", slog.Any("error", err))
	}
	return nil
}

// Get returns the current snapshot, or nil when unauthenticated. Callers must
// treat the returned value as read-only.
func (s *Store) Get() *rbac.Identity {
	return s.current.Load()
}

// Ready reports whether hydration or a login/logout has completed.
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. Observers run on the writing goroutine in write order and
// subscription order. They may subscribe or cancel, but must not write to
// the store.
func (s *Store) Subscribe(fn Observer) (cancel func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// notify calls a copy of the observer list so observers can cancel
// themselves.
func (s *Store) notify(identity *rbac.Identity) {
	s.obsMu.Lock()
	subs := make([]subscription, len(s.observers))
	copy(subs, s.observers)
	s.obsMu.Unlock()
	for _, sub := range subs {
		sub.fn(identity)
	}
}

func (s *Store) hydrate(ctx context.Context) (*rbac.Identity, error) {
	values, err := s.persister.Load(ctx, KeyUser, KeyPermissions)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			s.logger.Warn("discarding malformed session", slog.Any("error", err))
			return nil, nil
		}
		return nil, err
	}
	rawUser, ok := values[KeyUser]
	if !ok || len(rawUser) == 0 {
		return nil, nil
	}
	var identity rbac.Identity
	if err := json.Unmarshal(rawUser, &identity); err != nil {
		s.logger.Warn("discarding malformed session", slog.String("key", KeyUser), slog.Any("error", err))
		return nil, nil
	}
	if err := s.validate.Struct(&identity); err != nil {
		s.logger.Warn("discarding invalid session", slog.String("key", KeyUser), slog.Any("error", err))
		return nil, nil
	}
	if rawPerms, ok := values[KeyPermissions]; ok {
		var perms *rbac.PermissionSet
		if err := json.Unmarshal(rawPerms, &perms); err != nil {
			s.logger.Warn("discarding malformed session", slog.String("key", KeyPermissions), slog.Any("error", err))
			return nil, nil
		}
		identity.Permissions = perms
	}
	return &identity, nil
}

// persist writes the identity without its permissions under KeyUser and the
// permission set (or JSON null) under KeyPermissions in one Save.
func (s *Store) persist(ctx context.Context, identity *rbac.Identity) error {
	bare := *identity
	bare.Permissions = nil
	user, err := json.Marshal(bare)
	if err != nil {
		return err
	}
	perms, err := json.Marshal(identity.Permissions)
	if err != nil {
		return err
	}
	return s.persister.Save(ctx, map[string][]byte{
		KeyUser:        user,
		KeyPermissions: perms,
	})
}
