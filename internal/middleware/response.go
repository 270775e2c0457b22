package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agrimarket-backend/internal/services"
	"agrimarket-backend/internal/utils"
)

// StatusFor maps a service error to its HTTP status
func StatusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict, services.KindInvalidState:
		return http.StatusConflict
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		if services.IsAuthenticationError(err) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// RespondError writes the error envelope for err and aborts the chain
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	body := gin.H{
		"success": false,
		"error":   publicMessage(err, status),
		"code":    services.CodeOf(err),
	}

	var fieldErrs utils.ValidationErrors
	if errors.As(err, &fieldErrs) {
		body["details"] = fieldErrs
	}

	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.AbortWithStatusJSON(status, body)
}

func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return err.Error()
}
