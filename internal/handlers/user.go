package handlers

import (
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"social-service/internal/metrics"
	"social-service/internal/middleware"
	"social-service/internal/services"
	"social-service/internal/telemetry"
)

type UserHandler struct {
	auditor
	users     *services.UserService
	directory *services.DirectoryService
	jwtSecret string
	jwtTTL    time.Duration
}

func NewUserHandler(users *services.UserService, directory *services.DirectoryService, audit *telemetry.AuditEmitter, jwtSecret string, jwtTTL time.Duration) *UserHandler {
	return &UserHandler{
		auditor:   auditor{audit: audit},
		users:     users,
		directory: directory,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
	}
}

type credentialsBody struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *UserHandler) Signup(c *gin.Context) {
	requestID := requestIDFromHeader(c)
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		metrics.IncAccountOperation("signup", metrics.StatusFailed)
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	id, err := h.users.CreateUser(ctx, body.Name, body.Password)
	if err != nil {
		metrics.IncAccountOperation("signup", metricStatus(err))
		h.fail(c, err, requestID, nil)
		return
	}

	h.emitAudit(ctx, "INFO", "User '"+body.Name+"' signed up", requestID, &id)
	metrics.IncAccountOperation("signup", metrics.StatusSuccess)
	c.JSON(nethttp.StatusCreated, gin.H{"id": id})
}

func (h *UserHandler) Login(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.users.Login(c.Request.Context(), body.Name, body.Password)
	if err != nil {
		h.fail(c, err, requestIDFromHeader(c), nil)
		return
	}
	if user == nil {
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Name, h.jwtSecret, h.jwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(nethttp.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"token": token, "user": user})
}

func (h *UserHandler) GetUserByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(nethttp.StatusOK, user)
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == nil {
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), *userID)
	if err != nil {
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(nethttp.StatusOK, user)
}

func (h *UserHandler) Search(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == nil {
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	users, err := h.directory.SearchUsers(c.Request.Context(), c.Query("term"), *userID)
	if err != nil {
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(nethttp.StatusOK, users)
}

type blockBody struct {
	TargetID int64 `json:"target_id" binding:"required"`
}

func (h *UserHandler) Block(c *gin.Context) {
	requestID := requestIDFromHeader(c)
	userID := userIDFromContext(c)
	if userID == nil {
		metrics.IncAccountOperation("block", metrics.StatusFailed)
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body blockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.emitAudit(c.Request.Context(), "ERROR", "invalid request payload", requestID, userID)
		metrics.IncAccountOperation("block", metrics.StatusFailed)
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	if err := h.users.BlockUser(ctx, *userID, body.TargetID); err != nil {
		metrics.IncAccountOperation("block", metricStatus(err))
		h.fail(c, err, requestID, userID)
		return
	}

	h.emitAudit(ctx, "INFO", "Blocked user '"+strconv.FormatInt(body.TargetID, 10)+"'", requestID, userID)
	metrics.IncAccountOperation("block", metrics.StatusSuccess)
	c.JSON(nethttp.StatusOK, gin.H{"status": "blocked"})
}

func (h *UserHandler) Unblock(c *gin.Context) {
	requestID := requestIDFromHeader(c)
	userID := userIDFromContext(c)
	if userID == nil {
		metrics.IncAccountOperation("unblock", metrics.StatusFailed)
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	targetID, ok := parseIDParam(c, "target_id")
	if !ok {
		metrics.IncAccountOperation("unblock", metrics.StatusFailed)
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid target id"})
		return
	}

	ctx := c.Request.Context()
	if err := h.users.UnblockUser(ctx, *userID, targetID); err != nil {
		metrics.IncAccountOperation("unblock", metricStatus(err))
		h.fail(c, err, requestID, userID)
		return
	}

	h.emitAudit(ctx, "INFO", "Unblocked user '"+strconv.FormatInt(targetID, 10)+"'", requestID, userID)
	metrics.IncAccountOperation("unblock", metrics.StatusSuccess)
	c.JSON(nethttp.StatusOK, gin.H{"status": "unblocked"})
}

func (h *UserHandler) DeleteAccount(c *gin.Context) {
	requestID := requestIDFromHeader(c)
	userID := userIDFromContext(c)
	if userID == nil {
		metrics.IncAccountOperation("delete", metrics.StatusFailed)
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	if err := h.users.DeleteAccount(ctx, *userID); err != nil {
		metrics.IncAccountOperation("delete", metricStatus(err))
		h.fail(c, err, requestID, userID)
		return
	}

	h.emitAudit(ctx, "INFO", "Account deleted", requestID, userID)
	metrics.IncAccountOperation("delete", metrics.StatusSuccess)
	c.Status(nethttp.StatusNoContent)
}
