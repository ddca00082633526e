package handlers

import (
	"context"
	"errors"
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"social-service/internal/metrics"
	"social-service/internal/middleware"
	"social-service/internal/services"
	"social-service/internal/telemetry"
)

func requestIDFromHeader(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = middleware.GetTraceID(c)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if userID, ok := middleware.GetUserID(c); ok {
		return &userID
	}
	return nil
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// errorResponse maps a service error to an HTTP status and client message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrDuplicateName):
		return nethttp.StatusConflict, services.ErrDuplicateName.Error()
	case errors.Is(err, services.ErrDuplicateRequest):
		return nethttp.StatusConflict, services.ErrDuplicateRequest.Error()
	case errors.Is(err, services.ErrNotFound):
		return nethttp.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrBlocked):
		return nethttp.StatusForbidden, services.ErrBlocked.Error()
	case errors.Is(err, services.ErrSelfRequest):
		return nethttp.StatusBadRequest, services.ErrSelfRequest.Error()
	default:
		return nethttp.StatusInternalServerError, "internal error"
	}
}

func metricStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, services.ErrBlocked):
		return metrics.StatusBlocked
	default:
		return metrics.StatusFailed
	}
}

type auditor struct {
	audit *telemetry.AuditEmitter
}

func (a auditor) emitAudit(ctx context.Context, level, text, requestID string, userID *int64) {
	if a.audit == nil {
		return
	}
	a.audit.EmitAudit(ctx, level, text, requestID, userID)
}

// fail writes the mapped error response and records the failure in the audit log.
func (a auditor) fail(c *gin.Context, err error, requestID string, userID *int64) {
	status, msg := errorResponse(err)
	a.emitAudit(c.Request.Context(), "ERROR", msg, requestID, userID)
	if status == nethttp.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
