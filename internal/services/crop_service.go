package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"agrimarket-backend/database"
	"agrimarket-backend/internal/metrics"
	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/utils"
)

// CropService manages land parcels, planted crops and their growth log
type CropService struct {
	store     *database.Store
	publisher EventPublisher
	logger    *zap.Logger
	location  *time.Location
	now       utils.Clock
}

// NewCropService creates a new crop service. location decides the calendar
// day used for planting and growth dates.
func NewCropService(store *database.Store, publisher EventPublisher, location *time.Location, logger *zap.Logger) *CropService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &CropService{
		store:     store,
		publisher: publisherOrNop(publisher),
		logger:    logger,
		location:  location,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (s *CropService) SetClock(clock utils.Clock) {
	s.now = clock
}

// Today returns the current calendar day in the service's location
func (s *CropService) Today() models.Date {
	return utils.Today(s.now(), s.location)
}

// ListCatalog returns the crop catalog
func (s *CropService) ListCatalog(ctx context.Context) ([]*models.Crop, error) {
	rows, err := s.store.Q().QueryContext(ctx, "SELECT id, name FROM crops ORDER BY id")
	if err != nil {
		return nil, storeError("list crops", err)
	}
	defer rows.Close()

	var crops []*models.Crop
	for rows.Next() {
		crop := &models.Crop{}
		if err := rows.Scan(&crop.ID, &crop.Name); err != nil {
			return nil, storeError("list crops", err)
		}
		crops = append(crops, crop)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list crops", err)
	}
	return crops, nil
}

// RegisterLand creates a parcel owned by caller and one planted crop per
// requested catalog id. Every id is checked before anything is written.
func (s *CropService) RegisterLand(ctx context.Context, caller *models.User, registration *models.LandRegistration) (*models.Land, error) {
	if !caller.IsFarmer() {
		return nil, ErrRoleRequired
	}

	registration.Location = utils.SanitizeString(registration.Location)
	registration.Soil = utils.SanitizeString(registration.Soil)
	if err := utils.ValidateStruct(registration); err != nil {
		return nil, validationError(err)
	}

	seen := make(map[int64]bool, len(registration.CropIDs))
	for _, id := range registration.CropIDs {
		if seen[id] {
			return nil, ErrDuplicateCrop
		}
		seen[id] = true
	}

	today := s.Today()
	var landID int64
	err := s.store.WithTx(ctx, func(q database.Queryer) error {
		for _, id := range registration.CropIDs {
			var exists int
			err := q.QueryRowContext(ctx, "SELECT 1 FROM crops WHERE id = ?", id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUnknownCrop
			}
			if err != nil {
				return storeError("check crop", err)
			}
		}

		result, err := q.ExecContext(ctx,
			"INSERT INTO land (location, soil, size, owner_id) VALUES (?, ?, ?, ?)",
			registration.Location, registration.Soil, registration.Size, caller.ID,
		)
		if err != nil {
			return storeError("create land", err)
		}
		if landID, err = result.LastInsertId(); err != nil {
			return storeError("create land", err)
		}

		for _, cropID := range registration.CropIDs {
			_, err := q.ExecContext(ctx,
				"INSERT INTO planted_crops (crop_id, land_id, quantity, planting_date, harvest_date) VALUES (?, ?, 0, ?, ?)",
				cropID, landID, today, registration.HarvestDate,
			)
			if err != nil {
				return storeError("plant crop", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("land registered",
		zap.Int64("land_id", landID),
		zap.Int64("owner_id", caller.ID),
		zap.Int("crops", len(registration.CropIDs)),
	)

	return s.GetLand(ctx, landID)
}

// GetLand returns a parcel with its planted crops
func (s *CropService) GetLand(ctx context.Context, landID int64) (*models.Land, error) {
	land := &models.Land{}
	err := s.store.Q().QueryRowContext(ctx,
		"SELECT id, location, soil, size, owner_id, created_at FROM land WHERE id = ?", landID,
	).Scan(&land.ID, &land.Location, &land.Soil, &land.Size, &land.OwnerID, &land.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownLand
		}
		return nil, storeError("get land", err)
	}

	rows, err := s.store.Q().QueryContext(ctx, plantedCropSelect+" WHERE pc.land_id = ? ORDER BY pc.id", landID)
	if err != nil {
		return nil, storeError("list planted crops", err)
	}
	defer rows.Close()

	land.PlantedCrops = []*models.PlantedCrop{}
	for rows.Next() {
		pc, err := scanPlantedCrop(rows)
		if err != nil {
			return nil, storeError("list planted crops", err)
		}
		land.PlantedCrops = append(land.PlantedCrops, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list planted crops", err)
	}
	return land, nil
}

const plantedCropSelect = `
	SELECT pc.id, pc.crop_id, c.name, pc.land_id, pc.quantity, pc.planting_date, pc.harvest_date
	FROM planted_crops pc
	JOIN crops c ON c.id = pc.crop_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlantedCrop(row rowScanner) (*models.PlantedCrop, error) {
	pc := &models.PlantedCrop{}
	err := row.Scan(&pc.ID, &pc.CropID, &pc.CropName, &pc.LandID, &pc.Quantity, &pc.PlantingDate, &pc.HarvestDate)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// GetPlantedCrop returns a planted crop
func (s *CropService) GetPlantedCrop(ctx context.Context, plantedCropID int64) (*models.PlantedCrop, error) {
	pc, err := scanPlantedCrop(s.store.Q().QueryRowContext(ctx, plantedCropSelect+" WHERE pc.id = ?", plantedCropID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownPlantedCrop
		}
		return nil, storeError("get planted crop", err)
	}
	return pc, nil
}

// requireCropOwner checks that caller owns the land a planted crop grows on
func requireCropOwner(ctx context.Context, q database.Queryer, caller *models.User, plantedCropID int64) error {
	var ownerID int64
	err := q.QueryRowContext(ctx, `
		SELECT l.owner_id
		FROM planted_crops pc
		JOIN land l ON l.id = pc.land_id
		WHERE pc.id = ?`, plantedCropID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownPlantedCrop
		}
		return storeError("check crop owner", err)
	}
	if ownerID != caller.ID {
		return ErrNotOwner
	}
	return nil
}

// RecordGrowth appends a growth observation dated today
func (s *CropService) RecordGrowth(ctx context.Context, caller *models.User, plantedCropID int64, observation *models.GrowthObservation) (*models.GrowthRecord, error) {
	if !caller.IsFarmer() {
		return nil, ErrRoleRequired
	}

	observation.GrowthStage = utils.SanitizeString(observation.GrowthStage)
	if err := utils.ValidateStruct(observation); err != nil {
		return nil, validationError(err)
	}

	record := &models.GrowthRecord{
		PlantedCropID: plantedCropID,
		GrowthStage:   observation.GrowthStage,
		DateRecorded:  s.Today(),
	}

	err := s.store.WithTx(ctx, func(q database.Queryer) error {
		if err := requireCropOwner(ctx, q, caller, plantedCropID); err != nil {
			return err
		}

		result, err := q.ExecContext(ctx,
			"INSERT INTO crop_growth (planted_crop_id, growth_stage, date_recorded) VALUES (?, ?, ?)",
			record.PlantedCropID, record.GrowthStage, record.DateRecorded,
		)
		if err != nil {
			return storeError("record growth", err)
		}
		record.ID, err = result.LastInsertId()
		if err != nil {
			return storeError("record growth", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GrowthHistory returns the growth log of a planted crop, oldest first
func (s *CropService) GrowthHistory(ctx context.Context, plantedCropID int64) ([]*models.GrowthRecord, error) {
	if _, err := s.GetPlantedCrop(ctx, plantedCropID); err != nil {
		return nil, err
	}

	rows, err := s.store.Q().QueryContext(ctx,
		"SELECT id, planted_crop_id, growth_stage, date_recorded FROM crop_growth WHERE planted_crop_id = ? ORDER BY id",
		plantedCropID,
	)
	if err != nil {
		return nil, storeError("list growth records", err)
	}
	defer rows.Close()

	records := []*models.GrowthRecord{}
	for rows.Next() {
		r := &models.GrowthRecord{}
		if err := rows.Scan(&r.ID, &r.PlantedCropID, &r.GrowthStage, &r.DateRecorded); err != nil {
			return nil, storeError("list growth records", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list growth records", err)
	}
	return records, nil
}

// SetHarvestDate changes when a planted crop becomes harvest-ready. The date
// is fixed once the crop has been listed.
func (s *CropService) SetHarvestDate(ctx context.Context, caller *models.User, plantedCropID int64, harvestDate models.Date) (*models.PlantedCrop, error) {
	if !caller.IsFarmer() {
		return nil, ErrRoleRequired
	}
	if harvestDate.IsZero() {
		return nil, validationError(errors.New("harvestDate is required"))
	}

	err := s.store.WithTx(ctx, func(q database.Queryer) error {
		if err := requireCropOwner(ctx, q, caller, plantedCropID); err != nil {
			return err
		}

		var listed int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE planted_crop_id = ?", plantedCropID).Scan(&listed)
		if err != nil {
			return storeError("check listing", err)
		}
		if listed > 0 {
			return ErrAlreadyListed
		}

		if _, err := q.ExecContext(ctx, "UPDATE planted_crops SET harvest_date = ? WHERE id = ?", harvestDate, plantedCropID); err != nil {
			return storeError("set harvest date", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPlantedCrop(ctx, plantedCropID)
}

// SweepHarvestReady opens a transaction for every planted crop whose harvest
// date is today and that has none yet. Running it again the same day creates
// nothing new.
func (s *CropService) SweepHarvestReady(ctx context.Context, today models.Date) ([]*models.Transaction, error) {
	var created []*models.Transaction
	err := s.store.WithTx(ctx, func(q database.Queryer) error {
		rows, err := q.QueryContext(ctx, `
			SELECT pc.id
			FROM planted_crops pc
			LEFT JOIN transactions t ON t.planted_crop_id = pc.id
			WHERE pc.harvest_date = ? AND t.id IS NULL
			ORDER BY pc.id`, today,
		)
		if err != nil {
			return storeError("find harvest-ready crops", err)
		}

		var ready []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return storeError("find harvest-ready crops", err)
			}
			ready = append(ready, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storeError("find harvest-ready crops", err)
		}

		for _, plantedCropID := range ready {
			result, err := q.ExecContext(ctx, `
				INSERT INTO transactions (planted_crop_id, buyer_id, selling_price, purchase_price, settled, status)
				VALUES (?, NULL, 0, 0, 0, ?)
				ON CONFLICT (planted_crop_id) DO NOTHING`,
				plantedCropID, models.StateAwaitingPrice,
			)
			if err != nil {
				return storeError("open transaction", err)
			}
			if n, _ := result.RowsAffected(); n == 0 {
				continue
			}

			tx, err := getTransactionByCrop(ctx, q, plantedCropID)
			if err != nil {
				return err
			}
			created = append(created, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddListingsCreated(len(created))
	for _, tx := range created {
		s.publisher.Publish(newMarketEvent(models.EventListingCreated, tx))
	}
	if len(created) > 0 {
		s.logger.Info("harvest sweep opened transactions",
			zap.String("date", today.String()),
			zap.Int("created", len(created)),
		)
	}
	return created, nil
}
