package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
)

// CropHandlers serves land, planted crop and growth endpoints
type CropHandlers struct {
	cropService *services.CropService
}

// NewCropHandlers creates new crop handlers
func NewCropHandlers(cropService *services.CropService) *CropHandlers {
	return &CropHandlers{cropService: cropService}
}

// HarvestDateUpdate is the body of a harvest date change
type HarvestDateUpdate struct {
	HarvestDate *models.Date `json:"harvestDate"`
}

// ListCatalog returns the crop catalog
func (h *CropHandlers) ListCatalog(c *gin.Context) {
	crops, err := h.cropService.ListCatalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, crops)
}

// RegisterLand registers a parcel with its planted crops
func (h *CropHandlers) RegisterLand(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.LandRegistration
	if !bindJSON(c, &req) {
		return
	}

	land, err := h.cropService.RegisterLand(c.Request.Context(), user, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, land)
}

// GetLand returns a parcel with its planted crops
func (h *CropHandlers) GetLand(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	land, err := h.cropService.GetLand(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, land)
}

// GetPlantedCrop returns a planted crop
func (h *CropHandlers) GetPlantedCrop(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	pc, err := h.cropService.GetPlantedCrop(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, pc)
}

// SetHarvestDate changes a planted crop's harvest date
func (h *CropHandlers) SetHarvestDate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req HarvestDateUpdate
	if !bindJSON(c, &req) {
		return
	}
	var date models.Date
	if req.HarvestDate != nil {
		date = *req.HarvestDate
	}

	pc, err := h.cropService.SetHarvestDate(c.Request.Context(), user, id, date)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, pc)
}

// RecordGrowth appends a growth observation
func (h *CropHandlers) RecordGrowth(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.GrowthObservation
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.cropService.RecordGrowth(c.Request.Context(), user, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, record)
}

// GrowthHistory lists a planted crop's growth observations
func (h *CropHandlers) GrowthHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	records, err := h.cropService.GrowthHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, records)
}

// SweepHarvestReady opens listings for crops whose harvest date is today
func (h *CropHandlers) SweepHarvestReady(c *gin.Context) {
	today := h.cropService.Today()
	created, err := h.cropService.SweepHarvestReady(c.Request.Context(), today)
	if err != nil {
		respondError(c, err)
		return
	}
	if created == nil {
		created = []*models.Transaction{}
	}
	respondData(c, http.StatusCreated, gin.H{
		"date":         today,
		"transactions": created,
	})
}
