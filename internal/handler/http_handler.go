package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumivid/messaging/internal/client"
	"github.com/lumivid/messaging/internal/domain"
	"github.com/lumivid/messaging/internal/gateway"
	"github.com/lumivid/messaging/internal/presence"
	"github.com/lumivid/messaging/internal/service"
	"github.com/lumivid/messaging/pkg/response"
)

// HTTPHandler serves the REST surface of the messaging core.
type HTTPHandler struct {
	chat        service.ChatService
	gw          *gateway.Gateway
	tracker     *presence.Tracker
	attachments *client.AttachmentStore
}

// NewHTTPHandler creates the REST handler.
func NewHTTPHandler(chat service.ChatService, gw *gateway.Gateway, tracker *presence.Tracker, attachments *client.AttachmentStore) *HTTPHandler {
	return &HTTPHandler{
		chat:        chat,
		gw:          gw,
		tracker:     tracker,
		attachments: attachments,
	}
}

// RegisterRoutes mounts the authenticated API under the given group.
func (h *HTTPHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/conversations/private", h.CreatePrivateConversation)
	api.POST("/conversations/group", h.CreateGroupConversation)
	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:id", h.GetConversation)
	api.GET("/conversations/:id/participants", h.GetParticipants)
	api.POST("/conversations/:id/participants", h.AddMember)
	api.DELETE("/conversations/:id/participants/:userID", h.RemoveMember)
	api.POST("/conversations/:id/leave", h.LeaveConversation)
	api.DELETE("/conversations/:id", h.LeaveConversation)
	api.GET("/conversations/:id/peer", h.GetPeer)
	api.GET("/conversations/:id/messages", h.GetMessages)
	api.POST("/conversations/:id/messages", h.SendMessage)
	api.DELETE("/conversations/:id/messages", h.ClearMessages)
	api.POST("/messages/:id/recall", h.RecallMessage)
	api.DELETE("/messages/:id", h.DeleteMessage)
	api.GET("/presence/online", h.OnlineUsers)
	api.GET("/ws/stats", h.ConnectionStats)
	api.POST("/attachments", h.UploadAttachment)
}

// CreatePrivateConversation gets or creates the private conversation
// between the caller and the target user.
func (h *HTTPHandler) CreatePrivateConversation(c *gin.Context) {
	var req domain.CreatePrivateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "target_user_id is required")
		return
	}

	conv, err := h.chat.GetOrCreatePrivateConversation(c.Request.Context(), currentUserID(c), req.TargetUserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, conv)
}

// CreateGroupConversation creates a group conversation owned by the caller.
func (h *HTTPHandler) CreateGroupConversation(c *gin.Context) {
	var req domain.CreateGroupConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "title and member_ids are required")
		return
	}

	conv, err := h.chat.CreateGroupConversation(c.Request.Context(), currentUserID(c), req.Title, req.MemberIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, conv)
}

// ListConversations pages through the caller's conversations.
func (h *HTTPHandler) ListConversations(c *gin.Context) {
	page, pageSize := pagination(c)
	result, err := h.chat.ListConversations(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, result)
}

// GetConversation returns one conversation the caller belongs to.
func (h *HTTPHandler) GetConversation(c *gin.Context) {
	conv, err := h.chat.GetConversation(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, conv)
}

// GetParticipants lists active participants of a conversation.
func (h *HTTPHandler) GetParticipants(c *gin.Context) {
	participants, err := h.chat.GetParticipants(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, participants)
}

// AddMember adds a user to a group conversation.
func (h *HTTPHandler) AddMember(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "user_id is required")
		return
	}

	if err := h.chat.AddMember(c.Request.Context(), currentUserID(c), c.Param("id"), req.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"added": req.UserID})
}

// RemoveMember removes a user from a group conversation.
func (h *HTTPHandler) RemoveMember(c *gin.Context) {
	if err := h.chat.RemoveMember(c.Request.Context(), currentUserID(c), c.Param("id"), c.Param("userID")); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": c.Param("userID")})
}

// LeaveConversation removes the caller from a conversation.
func (h *HTTPHandler) LeaveConversation(c *gin.Context) {
	if err := h.chat.LeaveConversation(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"left": c.Param("id")})
}

// GetPeer returns the other user in a private conversation together
// with their live presence.
func (h *HTTPHandler) GetPeer(c *gin.Context) {
	peer, err := h.chat.GetPeer(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id": peer,
		"online":  h.tracker.IsUserOnline(peer),
	})
}

// GetMessages pages through a conversation's history, newest first.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	page, pageSize := pagination(c)
	result, err := h.chat.GetConversationMessages(c.Request.Context(), currentUserID(c), c.Param("id"), page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, result)
}

// SendMessage persists and fans out a new message.
func (h *HTTPHandler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid message payload")
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), currentUserID(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, msg)
}

// ClearMessages soft-deletes every message in a conversation.
func (h *HTTPHandler) ClearMessages(c *gin.Context) {
	cleared, err := h.chat.ClearConversationMessages(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"cleared": cleared})
}

// RecallMessage marks the caller's own recent message as recalled.
func (h *HTTPHandler) RecallMessage(c *gin.Context) {
	if err := h.chat.RecallMessage(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"recalled": c.Param("id")})
}

// DeleteMessage soft-deletes the caller's own message.
func (h *HTTPHandler) DeleteMessage(c *gin.Context) {
	if err := h.chat.DeleteMessage(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": c.Param("id")})
}

// OnlineUsers returns the current presence snapshot.
func (h *HTTPHandler) OnlineUsers(c *gin.Context) {
	ids := h.tracker.OnlineUserIDs()
	response.Success(c, gin.H{
		"count":    len(ids),
		"user_ids": ids,
	})
}

// ConnectionStats returns gateway occupancy for operators.
func (h *HTTPHandler) ConnectionStats(c *gin.Context) {
	response.Success(c, h.gw.Stats())
}

// UploadAttachment stores a multipart file and returns its serving URL.
func (h *HTTPHandler) UploadAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.InternalError(c, "failed to read upload")
		return
	}
	defer src.Close()

	url, err := h.attachments.Upload(c.Request.Context(), file.Filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, gin.H{
		"file_url":  url,
		"file_name": file.Filename,
		"file_size": file.Size,
	})
}

func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, domain.ErrCodeConversationNotFound, err.Error())
	case errors.Is(err, domain.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, domain.ErrCodeMessageNotFound, err.Error())
	case errors.Is(err, domain.ErrNotParticipant):
		response.Error(c, http.StatusForbidden, domain.ErrCodeNotParticipant, err.Error())
	case errors.Is(err, domain.ErrNotAuthorized):
		response.Error(c, http.StatusForbidden, domain.ErrCodeNotAuthorized, err.Error())
	case errors.Is(err, domain.ErrRecallWindowExpired):
		response.Error(c, http.StatusConflict, domain.ErrCodeRecallWindowExpired, err.Error())
	case errors.Is(err, domain.ErrSelfConversation):
		response.Error(c, http.StatusBadRequest, domain.ErrCodeSelfConversation, err.Error())
	case errors.Is(err, domain.ErrInvalidMessageType), errors.Is(err, domain.ErrEmptyMessage):
		response.Error(c, http.StatusBadRequest, domain.ErrCodeInvalidMessage, err.Error())
	case errors.Is(err, domain.ErrAttachmentTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, domain.ErrCodeAttachmentTooLarge, err.Error())
	default:
		response.InternalError(c, "internal error")
	}
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
