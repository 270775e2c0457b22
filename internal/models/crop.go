package models

import "time"

// CatalogCrops is the reference crop catalog seeded on first migration
var CatalogCrops = []string{"Wheat", "Rice", "Corn", "Soybeans", "Cotton", "Barley", "Oats", "Sorghum"}

// Crop is an entry of the read-only crop catalog
type Crop struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Land represents a parcel registered by a farmer
type Land struct {
	ID        int64     `json:"id" db:"id"`
	Location  string    `json:"location" db:"location"`
	Soil      string    `json:"soil" db:"soil"`
	Size      float64   `json:"size" db:"size"`
	OwnerID   int64     `json:"ownerId" db:"owner_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// Joined data (populated when needed)
	PlantedCrops []*PlantedCrop `json:"plantedCrops,omitempty"`
}

// PlantedCrop is one crop type growing on a parcel
type PlantedCrop struct {
	ID           int64  `json:"id" db:"id"`
	CropID       int64  `json:"cropId" db:"crop_id"`
	CropName     string `json:"cropName,omitempty"`
	LandID       int64  `json:"landId" db:"land_id"`
	Quantity     int    `json:"quantity" db:"quantity"`
	PlantingDate Date   `json:"plantingDate" db:"planting_date"`
	HarvestDate  *Date  `json:"harvestDate,omitempty" db:"harvest_date"`
}

// IsHarvestReady reports whether the crop's harvest date has arrived on today
func (p *PlantedCrop) IsHarvestReady(today Date) bool {
	return p.HarvestDate != nil && p.HarvestDate.Equal(today)
}

// GrowthRecord is an append-only growth observation
type GrowthRecord struct {
	ID            int64  `json:"id" db:"id"`
	PlantedCropID int64  `json:"plantedCropId" db:"planted_crop_id"`
	GrowthStage   string `json:"growthStage" db:"growth_stage"`
	DateRecorded  Date   `json:"dateRecorded" db:"date_recorded"`
}

// LandRegistration represents land registration data
type LandRegistration struct {
	Location    string  `json:"location" validate:"required,max=200"`
	Soil        string  `json:"soil" validate:"required,max=100"`
	Size        float64 `json:"size" validate:"gt=0"`
	CropIDs     []int64 `json:"cropIds" validate:"dive,gt=0"`
	HarvestDate *Date   `json:"harvestDate,omitempty"`
}

// GrowthObservation represents a growth record request
type GrowthObservation struct {
	GrowthStage string `json:"growthStage" validate:"required,max=500"`
}
