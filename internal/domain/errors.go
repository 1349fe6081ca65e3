package domain

import "errors"

// Typed failures returned by the messaging core. Handlers map these
// onto HTTP/WS error responses; stores return them unwrapped so callers
// can match with errors.Is.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrGlobalCapExceeded    = errors.New("global connection limit exceeded")
	ErrPerUserCapExceeded   = errors.New("per-user connection limit exceeded")
	ErrNotParticipant       = errors.New("user is not an active participant")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrRecallWindowExpired  = errors.New("recall window expired")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrNotAuthorized        = errors.New("not authorized to act on this message")
	ErrAttachmentTooLarge   = errors.New("attachment exceeds size limit")
	ErrInvalidMessageType   = errors.New("invalid message type")
	ErrEmptyMessage         = errors.New("message has no content")
)

// Error codes used in API responses.
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeConnectionLimit      = "CONNECTION_LIMIT_EXCEEDED"
	ErrCodeNotParticipant       = "NOT_PARTICIPANT"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeMessageNotFound      = "MESSAGE_NOT_FOUND"
	ErrCodeRecallWindowExpired  = "RECALL_WINDOW_EXPIRED"
	ErrCodeSelfConversation     = "SELF_CONVERSATION"
	ErrCodeNotAuthorized        = "NOT_AUTHORIZED"
	ErrCodeAttachmentTooLarge   = "ATTACHMENT_TOO_LARGE"
	ErrCodeInvalidMessage       = "INVALID_MESSAGE"
)
