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
)

// TransactionService drives a listing from harvest-ready to settled:
// awaiting_price -> priced -> offered (repeatable) -> settled.
// Every read-then-write runs inside one store transaction.
type TransactionService struct {
	store     *database.Store
	publisher EventPublisher
	logger    *zap.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(store *database.Store, publisher EventPublisher, logger *zap.Logger) *TransactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionService{
		store:     store,
		publisher: publisherOrNop(publisher),
		logger:    logger,
	}
}

const transactionSelect = `
	SELECT t.id, t.planted_crop_id, t.buyer_id, t.selling_price, t.purchase_price,
		t.settled, t.status, t.created_at, t.updated_at, t.settled_at, l.owner_id
	FROM transactions t
	JOIN planted_crops pc ON pc.id = t.planted_crop_id
	JOIN land l ON l.id = pc.land_id`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	tx := &models.Transaction{}
	err := row.Scan(
		&tx.ID, &tx.PlantedCropID, &tx.BuyerID, &tx.SellingPrice, &tx.PurchasePrice,
		&tx.Settled, &tx.State, &tx.CreatedAt, &tx.UpdatedAt, &tx.SettledAt, &tx.OwnerID,
	)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func getTransactionByCrop(ctx context.Context, q database.Queryer, plantedCropID int64) (*models.Transaction, error) {
	tx, err := scanTransaction(q.QueryRowContext(ctx, transactionSelect+" WHERE t.planted_crop_id = ?", plantedCropID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, storeError("get transaction", err)
	}
	return tx, nil
}

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = CodeOf(err)
	}
	metrics.ObserveTransition(operation, outcome)
}

// GetTransaction returns the listing of a planted crop
func (s *TransactionService) GetTransaction(ctx context.Context, plantedCropID int64) (*models.Transaction, error) {
	return getTransactionByCrop(ctx, s.store.Q(), plantedCropID)
}

// ListActive returns every unsettled transaction
func (s *TransactionService) ListActive(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := s.store.Q().QueryContext(ctx, transactionSelect+" WHERE t.settled = 0 ORDER BY t.id")
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storeError("list transactions", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list transactions", err)
	}
	return transactions, nil
}

// SetSellingPrice records the owner's asking price. It can be changed any
// number of times before settlement.
func (s *TransactionService) SetSellingPrice(ctx context.Context, caller *models.User, plantedCropID int64, price int64) (tx *models.Transaction, err error) {
	defer func() { observe("set_selling_price", err) }()

	if !caller.IsFarmer() {
		return nil, ErrRoleRequired
	}
	if price <= 0 {
		return nil, ErrInvalidPrice
	}

	err = s.store.WithTx(ctx, func(q database.Queryer) error {
		current, err := getTransactionByCrop(ctx, q, plantedCropID)
		if err != nil {
			return err
		}
		if current.OwnerID != caller.ID {
			return ErrNotOwner
		}
		if current.Settled {
			return ErrAlreadySettled
		}

		result, err := q.ExecContext(ctx, `
			UPDATE transactions SET
				selling_price = ?,
				status = CASE WHEN status = ? THEN ? ELSE status END,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND settled = 0`,
			price, models.StateAwaitingPrice, models.StatePriced, current.ID,
		)
		if err != nil {
			return storeError("set selling price", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAlreadySettled
		}

		tx, err = getTransactionByCrop(ctx, q, plantedCropID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("selling price set",
		zap.Int64("planted_crop_id", plantedCropID),
		zap.Int64("selling_price", price),
	)
	s.publisher.Publish(newMarketEvent(models.EventPriceSet, tx))
	return tx, nil
}

// PlaceOffer records a buyer's offer, replacing any earlier unaccepted one
func (s *TransactionService) PlaceOffer(ctx context.Context, caller *models.User, plantedCropID int64, offer *models.PurchaseOffer) (tx *models.Transaction, err error) {
	defer func() { observe("place_offer", err) }()

	if !caller.IsBuyer() {
		return nil, ErrRoleRequired
	}
	buyerID := caller.ID
	if offer.BuyerID != nil {
		buyerID = *offer.BuyerID
	}
	if buyerID != caller.ID {
		return nil, ErrNotSelf
	}
	if offer.PurchasePrice <= 0 {
		return nil, ErrInvalidPrice
	}

	err = s.store.WithTx(ctx, func(q database.Queryer) error {
		current, err := getTransactionByCrop(ctx, q, plantedCropID)
		if err != nil {
			return err
		}
		if current.Settled {
			return ErrAlreadySettled
		}
		if current.State == models.StateAwaitingPrice {
			return ErrPriceNotSet
		}

		var exists int
		err = q.QueryRowContext(ctx, "SELECT 1 FROM buyers WHERE user_id = ?", buyerID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownBuyer
		}
		if err != nil {
			return storeError("check buyer", err)
		}

		result, err := q.ExecContext(ctx, `
			UPDATE transactions SET
				buyer_id = ?,
				purchase_price = ?,
				status = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND settled = 0 AND status <> ?`,
			buyerID, offer.PurchasePrice, models.StateOffered, current.ID, models.StateAwaitingPrice,
		)
		if err != nil {
			return storeError("place offer", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAlreadySettled
		}

		tx, err = getTransactionByCrop(ctx, q, plantedCropID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("offer placed",
		zap.Int64("planted_crop_id", plantedCropID),
		zap.Int64("buyer_id", buyerID),
		zap.Int64("purchase_price", offer.PurchasePrice),
	)
	s.publisher.Publish(newMarketEvent(models.EventOfferPlaced, tx))
	return tx, nil
}

// AcceptOffer settles the current offer. Marking the transaction settled,
// appending the buyer's purchase and raising the buyer's running total
// commit together or not at all.
func (s *TransactionService) AcceptOffer(ctx context.Context, caller *models.User, plantedCropID int64) (settlement *models.Settlement, err error) {
	defer func() { observe("accept_offer", err) }()

	if !caller.IsFarmer() {
		return nil, ErrRoleRequired
	}

	err = s.store.WithTx(ctx, func(q database.Queryer) error {
		current, err := getTransactionByCrop(ctx, q, plantedCropID)
		if err != nil {
			return err
		}
		if current.OwnerID != caller.ID {
			return ErrNotOwner
		}
		if current.Settled {
			return ErrAlreadySettled
		}
		if !current.HasOffer() {
			return ErrNoOfferPresent
		}
		buyerID := *current.BuyerID
		price := current.PurchasePrice
		settledAt := time.Now().UTC()

		result, err := q.ExecContext(ctx, `
			UPDATE transactions SET
				settled = 1,
				status = ?,
				settled_at = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND settled = 0 AND buyer_id = ? AND purchase_price = ?`,
			models.StateSettled, settledAt, current.ID, buyerID, price,
		)
		if err != nil {
			return storeError("settle transaction", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrAlreadySettled
		}

		purchase := &models.Purchase{
			BuyerID:       buyerID,
			TransactionID: current.ID,
			PlantedCropID: plantedCropID,
			SoldPrice:     price,
			PurchasedAt:   settledAt,
		}
		result, err = q.ExecContext(ctx,
			"INSERT INTO buyer_purchases (buyer_id, transaction_id, planted_crop_id, sold_price, purchased_at) VALUES (?, ?, ?, ?, ?)",
			purchase.BuyerID, purchase.TransactionID, purchase.PlantedCropID, purchase.SoldPrice, purchase.PurchasedAt,
		)
		if err != nil {
			return storeError("record purchase", err)
		}
		if purchase.ID, err = result.LastInsertId(); err != nil {
			return storeError("record purchase", err)
		}

		result, err = q.ExecContext(ctx,
			"UPDATE buyers SET total_purchased = total_purchased + ? WHERE user_id = ?",
			price, buyerID,
		)
		if err != nil {
			return storeError("update buyer total", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrUnknownBuyer
		}

		var total int64
		if err := q.QueryRowContext(ctx, "SELECT total_purchased FROM buyers WHERE user_id = ?", buyerID).Scan(&total); err != nil {
			return storeError("read buyer total", err)
		}

		settled, err := getTransactionByCrop(ctx, q, plantedCropID)
		if err != nil {
			return err
		}

		settlement = &models.Settlement{
			Transaction: settled,
			Purchase:    purchase,
			BuyerTotal:  total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddSettledValue(settlement.Purchase.SoldPrice)
	s.logger.Info("offer accepted",
		zap.Int64("planted_crop_id", plantedCropID),
		zap.Int64("buyer_id", settlement.Purchase.BuyerID),
		zap.Int64("sold_price", settlement.Purchase.SoldPrice),
		zap.Int64("buyer_total", settlement.BuyerTotal),
	)
	s.publisher.Publish(newMarketEvent(models.EventOfferSettled, settlement.Transaction))
	return settlement, nil
}

// BuyerPurchases returns a buyer's purchase history, oldest first
func (s *TransactionService) BuyerPurchases(ctx context.Context, buyerID int64) ([]*models.Purchase, error) {
	summary, err := s.BuyerSummary(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	return summary.Purchases, nil
}

// BuyerSummary reads a buyer's running total and purchase history together
func (s *TransactionService) BuyerSummary(ctx context.Context, buyerID int64) (*models.BuyerSummary, error) {
	summary := &models.BuyerSummary{BuyerID: buyerID, Purchases: []*models.Purchase{}}

	err := s.store.WithTx(ctx, func(q database.Queryer) error {
		err := q.QueryRowContext(ctx, "SELECT total_purchased FROM buyers WHERE user_id = ?", buyerID).Scan(&summary.TotalPurchased)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownBuyer
		}
		if err != nil {
			return storeError("get buyer", err)
		}

		rows, err := q.QueryContext(ctx, `
			SELECT id, buyer_id, transaction_id, planted_crop_id, sold_price, purchased_at
			FROM buyer_purchases
			WHERE buyer_id = ?
			ORDER BY id`, buyerID,
		)
		if err != nil {
			return storeError("list purchases", err)
		}
		defer rows.Close()

		for rows.Next() {
			p := &models.Purchase{}
			if err := rows.Scan(&p.ID, &p.BuyerID, &p.TransactionID, &p.PlantedCropID, &p.SoldPrice, &p.PurchasedAt); err != nil {
				return storeError("list purchases", err)
			}
			summary.Purchases = append(summary.Purchases, p)
			summary.PurchasesSum += p.SoldPrice
		}
		if err := rows.Err(); err != nil {
			return storeError("list purchases", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
