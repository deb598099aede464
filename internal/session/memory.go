package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tutord/pkg/models"
)

// DefaultTTL is how long an idle session lives when no TTL is configured.
const DefaultTTL = 2 * time.Hour

// MemoryStore is an in-process Store with idle-TTL expiry. A janitor
// goroutine sweeps expired sessions; Close stops it.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	log      *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	sess     *models.Session
	lastSeen time.Time
}

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	// TTL is the idle lifetime of a session. Defaults to DefaultTTL.
	TTL time.Duration
	// SweepInterval is how often the janitor runs. Defaults to TTL/4.
	SweepInterval time.Duration
	// Logger receives eviction events. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// NewMemoryStore creates a MemoryStore and starts its janitor.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.TTL / 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      cfg.TTL,
		log:      cfg.Logger,
		stop:     make(chan struct{}),
	}
	go s.janitor(cfg.SweepInterval)
	return s
}

// Get implements Store. Retrieval refreshes the idle timer.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Since(e.lastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	e.lastSeen = time.Now()
	return e.sess, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &entry{sess: sess, lastSeen: time.Now()}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id, e := range s.sessions {
		if time.Since(e.lastSeen) <= s.ttl {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the janitor. The store remains usable but no longer sweeps.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, e := range s.sessions {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.sessions, id)
			s.log.Info("session expired", zap.String("session", id))
		}
	}
}
