package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lumivid/messaging/internal/config"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/gateway"
	"github.com/lumivid/messaging/internal/hub"
	"github.com/lumivid/messaging/internal/presence"
	"github.com/lumivid/messaging/internal/service"
	"github.com/lumivid/messaging/pkg/log"
	"github.com/lumivid/messaging/pkg/pubsub"
	"github.com/lumivid/messaging/pkg/response"
)

// WSHandler upgrades websocket connections, runs them through gateway
// admission, and dispatches the in-band protocol.
type WSHandler struct {
	hub      *hub.Hub
	gw       *gateway.Gateway
	tracker  *presence.Tracker
	chat     service.ChatService
	upgrader websocket.Upgrader
	wsCfg    config.WebSocketConfig
}

// NewWSHandler creates the websocket handler.
func NewWSHandler(h *hub.Hub, gw *gateway.Gateway, tracker *presence.Tracker, chat service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		gw:      gw,
		tracker: tracker,
		chat:    chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		wsCfg: wsCfg,
	}
}

// HandleWS admits and upgrades a websocket connection. Admission runs
// before the upgrade so cap and auth rejections surface as plain HTTP
// errors.
func (h *WSHandler) HandleWS(c *gin.Context) {
	hs := gateway.Handshake{
		SessionUserID: c.GetString(log.FieldUserID),
		Token:         c.Query("token"),
		RemoteAddr:    c.ClientIP(),
	}

	conn, err := h.gw.Admit(c.Request.Context(), hs)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAuthenticationFailed):
			response.Unauthorized(c, "authentication failed")
		case errors.Is(err, domain.ErrGlobalCapExceeded), errors.Is(err, domain.ErrPerUserCapExceeded):
			response.Unavailable(c, domain.ErrCodeConnectionLimit, err.Error())
		default:
			response.InternalError(c, "admission failed")
		}
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.gw.Release(conn.SessionID)
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := hub.NewClient(conn.SessionID, conn.UserID, h.hub, ws, h.wsCfg)
	cl.OnClose = func() {
		h.gw.Release(conn.SessionID)
	}

	h.hub.Register(cl)

	cl.SendMessage(&domain.ConnectedMessage{
		Type:      domain.MsgTypeConnected,
		SessionID: conn.SessionID,
	})

	go cl.WritePump()
	go cl.ReadPump(h.dispatch)
}

// dispatch routes one inbound frame. Every frame counts as session
// activity for idle eviction.
func (h *WSHandler) dispatch(cl *hub.Client, raw []byte) {
	h.gw.Touch(cl.ID)

	var base domain.BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeBadRequest, "malformed message"))
		return
	}

	switch base.Type {
	case domain.MsgTypeAuth:
		h.handleAuth(cl, raw)
	case domain.MsgTypeSubscribe:
		h.handleSubscribe(cl, raw)
	case domain.MsgTypeUnsubscribe:
		h.handleUnsubscribe(cl, raw)
	case domain.MsgTypeHeartbeat:
		h.handleHeartbeat(cl)
	case domain.MsgTypePing:
		cl.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})
	default:
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) handleAuth(cl *hub.Client, raw []byte) {
	var msg domain.AuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Token == "" {
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeBadRequest, "token is required"))
		return
	}

	userID, err := h.gw.Bind(cl.ID, msg.Token)
	if err != nil {
		cl.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: err.Error(),
		})
		return
	}

	cl.SetUserID(userID)
	cl.SendMessage(&domain.AuthResultMessage{
		Type:    domain.MsgTypeAuthResult,
		Success: true,
		UserID:  userID,
	})
}

func (h *WSHandler) handleSubscribe(cl *hub.Client, raw []byte) {
	var msg domain.SubscribeMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeBadRequest, "conversation_id is required"))
		return
	}

	userID := cl.UserID()
	if userID == "" {
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeUnauthorized, "authenticate before subscribing"))
		return
	}

	ctx := log.WithSession(cl.ID)
	if _, err := h.chat.GetConversation(ctx, userID, msg.ConversationID); err != nil {
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeNotMember, "not a participant of this conversation"))
		return
	}

	h.hub.Subscribe(cl, pubsub.ConversationChannel(msg.ConversationID))
	cl.SendMessage(&domain.SubscribedMessage{
		Type:           domain.MsgTypeSubscribed,
		ConversationID: msg.ConversationID,
	})
}

func (h *WSHandler) handleUnsubscribe(cl *hub.Client, raw []byte) {
	var msg domain.SubscribeMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ConversationID == "" {
		cl.SendMessage(domain.NewErrorMessage(domain.WSErrCodeBadRequest, "conversation_id is required"))
		return
	}

	h.hub.Unsubscribe(cl, pubsub.ConversationChannel(msg.ConversationID))
	cl.SendMessage(&domain.SubscribedMessage{
		Type:           domain.MsgTypeUnsubscribed,
		ConversationID: msg.ConversationID,
	})
}

func (h *WSHandler) handleHeartbeat(cl *hub.Client) {
	if userID := cl.UserID(); userID != "" {
		h.tracker.Heartbeat(userID)
	}
	cl.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})
}
