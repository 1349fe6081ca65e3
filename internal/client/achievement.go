package client

import (
	"sync/atomic"

	"github.com/lumivid/messaging/internal/events"
	"github.com/lumivid/messaging/pkg/log"
)

// AchievementHook listens for message activity and forwards milestone
// signals to the achievement pipeline. The current implementation only
// counts and logs; the downstream call is owned by the platform's
// achievement service.
type AchievementHook struct {
	sent atomic.Int64
}

// NewAchievementHook creates the hook.
func NewAchievementHook() *AchievementHook {
	return &AchievementHook{}
}

// Register subscribes the hook on the event bus.
func (a *AchievementHook) Register(bus *events.Bus) {
	bus.Subscribe(events.MessageSent{}.Name(), a.onMessageSent)
}

func (a *AchievementHook) onMessageSent(e events.Event) {
	sent, ok := e.(events.MessageSent)
	if !ok {
		return
	}
	total := a.sent.Add(1)
	l := log.L()
	l.Debug().
		Str(log.FieldUserID, sent.SenderID).
		Int64("total_sent", total).
		Msg("message activity recorded")
}
