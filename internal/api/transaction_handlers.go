package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
)

// TransactionHandlers serves the listing workflow endpoints
type TransactionHandlers struct {
	transactionService *services.TransactionService
}

// NewTransactionHandlers creates new transaction handlers
func NewTransactionHandlers(transactionService *services.TransactionService) *TransactionHandlers {
	return &TransactionHandlers{transactionService: transactionService}
}

// ListActive returns every unsettled transaction
func (h *TransactionHandlers) ListActive(c *gin.Context) {
	transactions, err := h.transactionService.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, transactions)
}

// GetTransaction returns the listing of a planted crop
func (h *TransactionHandlers) GetTransaction(c *gin.Context) {
	id, ok := pathID(c, "plantedCropId")
	if !ok {
		return
	}

	tx, err := h.transactionService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tx)
}

// SetSellingPrice sets the owner's asking price
func (h *TransactionHandlers) SetSellingPrice(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "plantedCropId")
	if !ok {
		return
	}

	var req models.SellingPriceUpdate
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.transactionService.SetSellingPrice(c.Request.Context(), user, id, req.SellingPrice)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tx)
}

// PlaceOffer records the caller's offer
func (h *TransactionHandlers) PlaceOffer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "plantedCropId")
	if !ok {
		return
	}

	var req models.PurchaseOffer
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.transactionService.PlaceOffer(c.Request.Context(), user, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, tx)
}

// AcceptOffer settles the current offer
func (h *TransactionHandlers) AcceptOffer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "plantedCropId")
	if !ok {
		return
	}

	settlement, err := h.transactionService.AcceptOffer(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, settlement)
}
