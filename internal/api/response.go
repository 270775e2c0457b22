package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agrimarket-backend/internal/middleware"
	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
	"agrimarket-backend/internal/utils"
)

var (
	errInvalidBody = &services.Error{Kind: services.KindValidation, Code: "invalid_request", Message: "invalid request data"}
	errInvalidID   = &services.Error{Kind: services.KindValidation, Code: "invalid_id", Message: "id must be a positive integer"}
)

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, err error) {
	middleware.RespondError(c, err)
}

// bindJSON decodes the request body, writing a 400 on failure
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondError(c, &services.Error{
			Kind:    errInvalidBody.Kind,
			Code:    errInvalidBody.Code,
			Message: errInvalidBody.Message + ": " + err.Error(),
		})
		return false
	}
	return true
}

// pathID reads a positive integer path parameter, writing a 400 on failure
func pathID(c *gin.Context, name string) (int64, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		respondError(c, errInvalidID)
		return 0, false
	}
	return id, true
}

// currentUser returns the authenticated caller, writing a 401 when absent
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, services.ErrInvalidSession)
		return nil, false
	}
	return user, true
}

// health is the liveness probe
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "AgriMarket API is running",
		"version": "1.0.0",
	})
}
