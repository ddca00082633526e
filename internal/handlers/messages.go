package handlers

import (
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"social-service/internal/metrics"
	"social-service/internal/services"
	"social-service/internal/telemetry"
)

type MessageHandler struct {
	auditor
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{auditor: auditor{audit: audit}, messages: messages}
}

type sendMessageBody struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	requestID := requestIDFromHeader(c)
	userID := userIDFromContext(c)
	if userID == nil {
		metrics.IncMessageSent(metrics.StatusFailed)
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.emitAudit(c.Request.Context(), "ERROR", "invalid request payload", requestID, userID)
		metrics.IncMessageSent(metrics.StatusFailed)
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	id, err := h.messages.SendMessage(ctx, body.Content, *userID, body.ReceiverID)
	if err != nil {
		metrics.IncMessageSent(metricStatus(err))
		h.fail(c, err, requestID, userID)
		return
	}

	h.emitAudit(ctx, "INFO", "Message sent to '"+strconv.FormatInt(body.ReceiverID, 10)+"'", requestID, userID)
	metrics.IncMessageSent(metrics.StatusSuccess)
	c.JSON(nethttp.StatusCreated, gin.H{"id": id})
}

func (h *MessageHandler) List(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == nil {
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	otherID, ok := parseIDParam(c, "user_id")
	if !ok {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	msgs, err := h.messages.GetMessages(c.Request.Context(), *userID, otherID)
	if err != nil {
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(nethttp.StatusOK, msgs)
}
