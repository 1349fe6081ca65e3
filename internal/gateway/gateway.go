package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/events"
	"github.com/lumivid/messaging/pkg/log"
)

// Occupancy thresholds logged by the sweep, as fractions of the global cap.
const (
	warningOccupancy  = 0.8
	criticalOccupancy = 0.95
)

// Connection is the ephemeral per-session record owned by the gateway.
// UserID is empty for anonymous sessions.
type Connection struct {
	SessionID      string
	UserID         string
	EstablishedAt  time.Time
	lastActivityAt time.Time
	mu             sync.Mutex
}

// Touch refreshes the connection's activity timestamp.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()
}

// LastActivityAt returns the last recorded activity time.
func (c *Connection) LastActivityAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivityAt
}

// Handshake carries the admission inputs extracted from the transport
// handshake. SessionUserID is an identity already bound to the HTTP
// session; Token is a bearer credential for principal lookup.
type Handshake struct {
	SessionUserID string
	Token         string
	RemoteAddr    string
}

// IdentityResolver resolves a bearer credential to a user id.
type IdentityResolver interface {
	ResolveToken(token string) (userID string, err error)
}

// Stats is a read-only snapshot of gateway occupancy.
type Stats struct {
	Current       int            `json:"current"`
	Max           int            `json:"max"`
	PerUserCounts map[string]int `json:"per_user_counts"`
}

// Gateway admits or rejects transport connections, owns the live
// session registry, enforces resource caps, and runs idle eviction.
// One Gateway is constructed per process and injected where needed.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]*Connection
	perUser  map[string]int

	resolver IdentityResolver
	bus      *events.Bus
	cfg      config.GatewayConfig

	onEvict func(sessionID string)
}

// New creates a gateway with empty registries.
func New(cfg config.GatewayConfig, resolver IdentityResolver, bus *events.Bus) *Gateway {
	return &Gateway{
		sessions: make(map[string]*Connection),
		perUser:  make(map[string]int),
		resolver: resolver,
		bus:      bus,
		cfg:      cfg,
	}
}

// Admit authenticates and admits a new connection, or rejects it with a
// typed error. Rejections leave no partial state behind. Identity
// resolution tries the session-bound identity first, then the bearer
// token; a connection with neither is admitted as anonymous and never
// signalled to presence.
func (g *Gateway) Admit(ctx context.Context, hs Handshake) (*Connection, error) {
	l := log.Ctx(ctx)

	userID, err := g.resolveIdentity(hs)
	if err != nil {
		l.Warn().Str("remote_addr", hs.RemoteAddr).Msg("handshake authentication failed")
		return nil, domain.ErrAuthenticationFailed
	}

	now := time.Now()
	conn := &Connection{
		SessionID:      uuid.New().String(),
		UserID:         userID,
		EstablishedAt:  now,
		lastActivityAt: now,
	}

	g.mu.Lock()
	if len(g.sessions) >= g.cfg.GlobalCap {
		g.mu.Unlock()
		l.Warn().Int("cap", g.cfg.GlobalCap).Msg("global connection cap exceeded")
		return nil, domain.ErrGlobalCapExceeded
	}
	if userID != "" && g.perUser[userID] >= g.cfg.PerUserCap {
		g.mu.Unlock()
		l.Warn().Str(log.FieldUserID, userID).Int("cap", g.cfg.PerUserCap).Msg("per-user connection cap exceeded")
		return nil, domain.ErrPerUserCapExceeded
	}
	g.sessions[conn.SessionID] = conn
	if userID != "" {
		g.perUser[userID]++
	}
	g.mu.Unlock()

	l.Info().
		Str(log.FieldSessionID, conn.SessionID).
		Str(log.FieldUserID, userID).
		Msg("connection admitted")

	if userID != "" {
		g.bus.Publish(events.UserConnected{UserID: userID, SessionID: conn.SessionID, At: now})
	}

	return conn, nil
}

func (g *Gateway) resolveIdentity(hs Handshake) (string, error) {
	if hs.SessionUserID != "" {
		return hs.SessionUserID, nil
	}
	if hs.Token != "" {
		userID, err := g.resolver.ResolveToken(hs.Token)
		if err != nil {
			return "", err
		}
		return userID, nil
	}
	// No credentials: anonymous admission.
	return "", nil
}

// Bind attaches a resolved identity to an anonymous session after
// in-band authentication. The per-user cap applies at bind time exactly
// as it does at admission.
func (g *Gateway) Bind(sessionID, token string) (string, error) {
	userID, err := g.resolver.ResolveToken(token)
	if err != nil {
		return "", domain.ErrAuthenticationFailed
	}

	g.mu.Lock()
	conn, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return "", domain.ErrAuthenticationFailed
	}
	if conn.UserID == userID {
		g.mu.Unlock()
		return userID, nil
	}
	if conn.UserID != "" {
		// Re-binding to a different identity is not supported.
		g.mu.Unlock()
		return "", domain.ErrAuthenticationFailed
	}
	if g.perUser[userID] >= g.cfg.PerUserCap {
		g.mu.Unlock()
		return "", domain.ErrPerUserCapExceeded
	}
	conn.UserID = userID
	g.perUser[userID]++
	g.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldUserID, userID).Msg("session authenticated")

	g.bus.Publish(events.UserConnected{UserID: userID, SessionID: sessionID, At: time.Now()})
	return userID, nil
}

// Release removes the session from the registry and signals presence if
// this was the user's last session. Safe to call multiple times.
func (g *Gateway) Release(sessionID string) {
	g.mu.Lock()
	conn, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.sessions, sessionID)

	lastOne := false
	if conn.UserID != "" {
		g.perUser[conn.UserID]--
		if g.perUser[conn.UserID] <= 0 {
			delete(g.perUser, conn.UserID)
			lastOne = true
		}
	}
	g.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldUserID, conn.UserID).Msg("connection released")

	if conn.UserID != "" {
		g.bus.Publish(events.UserDisconnected{
			UserID:    conn.UserID,
			SessionID: sessionID,
			LastOne:   lastOne,
			At:        time.Now(),
		})
	}
}

// Touch refreshes activity for a session; unknown ids are ignored.
func (g *Gateway) Touch(sessionID string) {
	g.mu.RLock()
	conn, ok := g.sessions[sessionID]
	g.mu.RUnlock()
	if ok {
		conn.Touch()
	}
}

// Sweep evicts sessions idle beyond the configured timeout. It is the
// backstop for missed disconnect signals: network partitions and
// crashed clients are released within one sweep interval plus the idle
// timeout.
func (g *Gateway) Sweep() {
	cutoff := time.Now().Add(-g.cfg.IdleTimeout)

	g.mu.RLock()
	var idle []string
	for id, conn := range g.sessions {
		if conn.LastActivityAt().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	current := len(g.sessions)
	g.mu.RUnlock()

	for _, id := range idle {
		g.Release(id)
		if g.onEvict != nil {
			g.onEvict(id)
		}
	}

	l := log.L()
	if len(idle) > 0 {
		l.Info().Int("evicted", len(idle)).Msg("idle sessions evicted")
	}

	occupancy := float64(current) / float64(g.cfg.GlobalCap)
	switch {
	case occupancy >= criticalOccupancy:
		l.Error().Int("current", current).Int("max", g.cfg.GlobalCap).Msg("connection count at critical threshold")
	case occupancy >= warningOccupancy:
		l.Warn().Int("current", current).Int("max", g.cfg.GlobalCap).Msg("connection count at warning threshold")
	}
}

// OnEvict registers a callback invoked for each session the sweep
// evicts, after its registry slot is released. The transport layer uses
// it to close the underlying connection so an evicted session stops
// receiving fan-out. Set once during wiring, before Run.
func (g *Gateway) OnEvict(fn func(sessionID string)) {
	g.onEvict = fn
}

// Stats returns a point-in-time snapshot of gateway occupancy.
func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	perUser := make(map[string]int, len(g.perUser))
	for userID, n := range g.perUser {
		perUser[userID] = n
	}
	return Stats{
		Current:       len(g.sessions),
		Max:           g.cfg.GlobalCap,
		PerUserCounts: perUser,
	}
}

// Run drives the eviction sweep until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}
