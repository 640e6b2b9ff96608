package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a UI surface that observes playback
type Kind string

const (
	KindStationList Kind = "station_list"
	KindMiniPlayer  Kind = "mini_player"
	KindFullPlayer  Kind = "full_player"
	KindFavorites   Kind = "favorites"
	KindConsole     Kind = "console"
	KindEvents      Kind = "events"
)

var validKinds = map[Kind]bool{
	KindStationList: true,
	KindMiniPlayer:  true,
	KindFullPlayer:  true,
	KindFavorites:   true,
	KindConsole:     true,
	KindEvents:      true,
}

// ParseKind validates a surface kind
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !validKinds[k] {
		return "", fmt.Errorf("unknown surface kind: %q", s)
	}
	return k, nil
}

// Surface is a registered UI view. Surfaces only observe the playback
// session; none of them carries playback state of its own.
type Surface struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Name         string    `json:"name,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Registry tracks which surfaces are currently showing the session
type Registry struct {
	surfaces        map[string]*Surface
	mutex           sync.RWMutex
	activityTimeout time.Duration
	now             func() time.Time
}

// NewRegistry creates a registry whose surfaces expire after
// activityTimeout without a heartbeat
func NewRegistry(activityTimeout time.Duration) *Registry {
	if activityTimeout <= 0 {
		activityTimeout = 30 * time.Second
	}
	return &Registry{
		surfaces:        make(map[string]*Surface),
		activityTimeout: activityTimeout,
		now:             time.Now,
	}
}

// Register adds a surface and returns a copy of it
func (r *Registry) Register(kind Kind, name, userAgent, ipAddress string) (Surface, error) {
	if !validKinds[kind] {
		return Surface{}, fmt.Errorf("unknown surface kind: %q", kind)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	s := &Surface{
		ID:           uuid.NewString(),
		Kind:         kind,
		Name:         name,
		UserAgent:    userAgent,
		IPAddress:    ipAddress,
		RegisteredAt: now,
		LastActivity: now,
	}
	r.surfaces[s.ID] = s
	return *s, nil
}

// Touch records a heartbeat; it reports false for unknown or expired ids
func (r *Registry) Touch(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, exists := r.surfaces[id]
	if !exists || !r.isActive(s) {
		delete(r.surfaces, id)
		return false
	}
	s.LastActivity = r.now()
	return true
}

// Get returns an active surface by id
func (r *Registry) Get(id string) (Surface, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, exists := r.surfaces[id]
	if !exists || !r.isActive(s) {
		return Surface{}, false
	}
	return *s, true
}

// Remove drops a surface
func (r *Registry) Remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.surfaces, id)
}

// Active removes expired surfaces and returns the rest, oldest first
func (r *Registry) Active() []Surface {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.cleanupExpired()

	result := make([]Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RegisteredAt.Equal(result[j].RegisteredAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].RegisteredAt.Before(result[j].RegisteredAt)
	})
	return result
}

// Focused returns the most recently active surface, if any
func (r *Registry) Focused() (Surface, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var latest *Surface
	for _, s := range r.surfaces {
		if !r.isActive(s) {
			continue
		}
		if latest == nil || s.LastActivity.After(latest.LastActivity) {
			latest = s
		}
	}
	if latest == nil {
		return Surface{}, false
	}
	return *latest, true
}

// isActive checks if a surface is still alive (must be called with lock held)
func (r *Registry) isActive(s *Surface) bool {
	return r.now().Sub(s.LastActivity) < r.activityTimeout
}

// cleanupExpired removes inactive surfaces (must be called with write lock held)
func (r *Registry) cleanupExpired() {
	for id, s := range r.surfaces {
		if !r.isActive(s) {
			delete(r.surfaces, id)
		}
	}
}
