package presence

import (
	"context"
	"sync"
	"time"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/pkg/log"
)

// Broadcaster publishes aggregate presence updates to connected clients.
// Implemented by the delivery bus; broadcasts are advisory and consumers
// must tolerate slight staleness.
type Broadcaster interface {
	BroadcastOnlineCount(count int)
	BroadcastUserStatus(userID string, online bool)
}

type entry struct {
	sessions      map[string]struct{}
	lastHeartbeat time.Time
}

// Tracker is the single source of truth for which users are online.
// A user is online while it has at least one session and its heartbeat
// is within the idle threshold. Presence is never authoritative for
// access control.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*entry

	broadcaster Broadcaster
	cfg         config.PresenceConfig
}

// NewTracker creates a presence tracker.
func NewTracker(cfg config.PresenceConfig, b Broadcaster) *Tracker {
	return &Tracker{
		entries:     make(map[string]*entry),
		broadcaster: b,
		cfg:         cfg,
	}
}

// UserOnline adds a session to the user's session set, creating the
// entry if absent, and refreshes the heartbeat.
func (t *Tracker) UserOnline(userID, sessionID string) {
	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok {
		e = &entry{sessions: make(map[string]struct{})}
		t.entries[userID] = e
	}
	e.sessions[sessionID] = struct{}{}
	e.lastHeartbeat = time.Now()
	t.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldUserID, userID).Str(log.FieldSessionID, sessionID).Msg("user online")

	if !ok && t.broadcaster != nil {
		t.broadcaster.BroadcastUserStatus(userID, true)
	}
}

// UserOffline removes a session from the user's set. An empty sessionID
// removes the entire entry (hard offline).
func (t *Tracker) UserOffline(userID, sessionID string) {
	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if sessionID == "" {
		delete(t.entries, userID)
	} else {
		delete(e.sessions, sessionID)
		if len(e.sessions) == 0 {
			delete(t.entries, userID)
		} else {
			t.mu.Unlock()
			return
		}
	}
	t.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldUserID, userID).Msg("user offline")

	if t.broadcaster != nil {
		t.broadcaster.BroadcastUserStatus(userID, false)
	}
}

// Heartbeat refreshes the user's last-heartbeat time without touching
// session membership. Unknown users are ignored.
func (t *Tracker) Heartbeat(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok {
		e.lastHeartbeat = time.Now()
	}
}

// IsUserOnline reports whether the user has a live, non-stale entry.
func (t *Tracker) IsUserOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[userID]
	if !ok {
		return false
	}
	return len(e.sessions) > 0 && time.Since(e.lastHeartbeat) <= t.cfg.IdleThreshold
}

// OnlineUserIDs returns a snapshot of online user ids.
func (t *Tracker) OnlineUserIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.entries))
	for userID := range t.entries {
		ids = append(ids, userID)
	}
	return ids
}

// OnlineUserCount returns the number of online users.
func (t *Tracker) OnlineUserCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// CleanupExpiredUsers removes entries whose heartbeat exceeded the idle
// threshold. This self-heals presence even when gateway-level release
// was missed.
func (t *Tracker) CleanupExpiredUsers() {
	cutoff := time.Now().Add(-t.cfg.IdleThreshold)

	t.mu.Lock()
	var expired []string
	for userID, e := range t.entries {
		if e.lastHeartbeat.Before(cutoff) {
			expired = append(expired, userID)
			delete(t.entries, userID)
		}
	}
	remaining := len(t.entries)
	t.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	l := log.L()
	l.Info().Strs("user_ids", expired).Int("online", remaining).Msg("expired presence entries removed")

	if t.broadcaster != nil {
		for _, userID := range expired {
			t.broadcaster.BroadcastUserStatus(userID, false)
		}
		t.broadcaster.BroadcastOnlineCount(remaining)
	}
}

// BroadcastOnlineCount publishes the current aggregate count on the
// global channel.
func (t *Tracker) BroadcastOnlineCount() {
	if t.broadcaster == nil {
		return
	}
	t.broadcaster.BroadcastOnlineCount(t.OnlineUserCount())
}

// Run drives the cleanup and broadcast tickers until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	cleanup := time.NewTicker(t.cfg.CleanupInterval)
	broadcast := time.NewTicker(t.cfg.BroadcastInterval)
	defer cleanup.Stop()
	defer broadcast.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			t.CleanupExpiredUsers()
		case <-broadcast.C:
			t.BroadcastOnlineCount()
		}
	}
}
