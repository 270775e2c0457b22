package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
)

// UserHandlers serves profile and purchase history endpoints
type UserHandlers struct {
	userService        *services.UserService
	transactionService *services.TransactionService
}

// NewUserHandlers creates new user handlers
func NewUserHandlers(userService *services.UserService, transactionService *services.TransactionService) *UserHandlers {
	return &UserHandlers{
		userService:        userService,
		transactionService: transactionService,
	}
}

// UpdateFarmer updates the caller's farmer profile
func (h *UserHandlers) UpdateFarmer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.FarmerProfileUpdate
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.userService.UpdateFarmerProfile(c.Request.Context(), user, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// UpdateBuyer updates the caller's buyer profile
func (h *UserHandlers) UpdateBuyer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.BuyerProfileUpdate
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.userService.UpdateBuyerProfile(c.Request.Context(), user, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, updated)
}

// BuyerPurchases returns the caller's purchase history with its running total
func (h *UserHandlers) BuyerPurchases(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if user.ID != id {
		respondError(c, services.ErrNotSelf)
		return
	}

	summary, err := h.transactionService.BuyerSummary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, summary)
}
