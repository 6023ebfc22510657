package copydesk

import (
	"sync"
	"time"
)

// Settings exposes the smart-deploy flag to every edit surface. Reads go
// through a short-TTL cache so the flag check on each save does not hit
// SQLite; writes update the store and invalidate the cache. Toggling never
// touches records already in the queue.
type Settings struct {
	mu      sync.RWMutex
	enabled bool
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

// NewSettings creates a Settings view backed by the given Store. store may
// be nil, in which case the flag is held in memory only and defaults to on.
func NewSettings(store *Store, ttl time.Duration) *Settings {
	return &Settings{store: store, ttl: ttl, enabled: true}
}

// SmartDeployEnabled reports whether edits default to the change queue
// (true) or to immediate individual commits (false).
func (s *Settings) SmartDeployEnabled() bool {
	s.mu.RLock()
	if s.store == nil || time.Since(s.fetched) < s.ttl {
		enabled := s.enabled
		s.mu.RUnlock()
		return enabled
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.fetched) < s.ttl {
		return s.enabled
	}
	enabled, err := s.store.SmartDeployEnabled()
	if err != nil {
		// Keep serving the last known value on a read failure.
		return s.enabled
	}
	s.enabled = enabled
	s.fetched = time.Now()
	return enabled
}

// SetSmartDeploy persists and caches the flag.
func (s *Settings) SetSmartDeploy(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.SetSmartDeployEnabled(enabled); err != nil {
			return err
		}
	}
	s.enabled = enabled
	s.fetched = time.Now()
	return nil
}
