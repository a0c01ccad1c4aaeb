package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatconnect/chatconnect-server/internal/proto"
	"github.com/chatconnect/chatconnect-server/internal/store"
)

// MessageHandlers provides HTTP handlers for the durable message store.
// Creation is REST-first: the client persists here, then echoes the stored
// message over the socket for relay.
type MessageHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.MessageStore, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// CreateMessageRequest represents the message creation body.
type CreateMessageRequest struct {
	Sender   string `json:"sender" binding:"required"`
	Receiver string `json:"receiver" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Type     string `json:"type"`
}

// MessageResponse wraps a single persisted message. Messages cross the REST
// and socket boundaries with the same field vocabulary, so both reuse the
// wire shape.
type MessageResponse struct {
	Message proto.MessageData `json:"message"`
}

// MessagesResponse wraps a conversation.
type MessagesResponse struct {
	Messages []proto.MessageData `json:"messages"`
}

// Create persists a new message.
// POST /api/messages
func (h *MessageHandlers) Create(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "sender, receiver, and content are required"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok || req.Sender != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "sender does not match authenticated user"})
		return
	}

	msg, err := h.store.CreateMessage(c.Request.Context(), req.Sender, req.Receiver, req.Content, store.MessageType(req.Type))
	if err != nil {
		h.log.Error().Err(err).Str("sender", req.Sender).Str("receiver", req.Receiver).Msg("failed to create message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: messageData(msg)})
}

// GetConversation returns the conversation between the authenticated user and
// :userId, oldest first. As in the original flow, opening a conversation also
// marks the partner's messages to the current user as read.
// GET /api/messages/:userId
func (h *MessageHandlers) GetConversation(c *gin.Context) {
	partnerID := c.Param("userId")
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messages, err := h.store.GetConversation(c.Request.Context(), userID, partnerID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Str("partner_id", partnerID).Msg("failed to get conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if _, err := h.store.MarkConversationRead(c.Request.Context(), partnerID, userID); err != nil {
		// Not fatal for the fetch; the next read event or fetch reconciles.
		h.log.Warn().Err(err).Str("user_id", userID).Str("partner_id", partnerID).Msg("failed to mark conversation read")
	}

	out := make([]proto.MessageData, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageData(m))
	}
	c.JSON(http.StatusOK, MessagesResponse{Messages: out})
}

// MarkRead marks a single message as read by the authenticated user.
// PUT /api/messages/:messageId/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	messageID := c.Param("messageId")
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.store.MarkMessageRead(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to mark message read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "message marked as read"})
}
