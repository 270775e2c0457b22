package models

import "time"

// TransactionState is the position of a listing in the sale workflow
type TransactionState string

const (
	StateAwaitingPrice TransactionState = "awaiting_price"
	StatePriced        TransactionState = "priced"
	StateOffered       TransactionState = "offered"
	StateSettled       TransactionState = "settled"
)

// Terminal reports whether no further transition is possible
func (s TransactionState) Terminal() bool {
	return s == StateSettled
}

// Transaction is the single sale listing for a harvest-ready planted crop
type Transaction struct {
	ID            int64            `json:"id" db:"id"`
	PlantedCropID int64            `json:"plantedCropId" db:"planted_crop_id"`
	BuyerID       *int64           `json:"buyerId,omitempty" db:"buyer_id"`
	SellingPrice  int64            `json:"sellingPrice" db:"selling_price"`
	PurchasePrice int64            `json:"purchasePrice" db:"purchase_price"`
	Settled       bool             `json:"settled" db:"settled"`
	State         TransactionState `json:"state" db:"status"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time        `json:"updatedAt" db:"updated_at"`
	SettledAt     *time.Time       `json:"settledAt,omitempty" db:"settled_at"`

	// Owner of the land the crop grows on (populated when needed)
	OwnerID int64 `json:"ownerId,omitempty"`
}

// HasOffer reports whether a buyer has placed an offer
func (t *Transaction) HasOffer() bool {
	return t.BuyerID != nil
}

// Purchase is a settled sale recorded in a buyer's history
type Purchase struct {
	ID            int64     `json:"id" db:"id"`
	BuyerID       int64     `json:"buyerId" db:"buyer_id"`
	TransactionID int64     `json:"transactionId" db:"transaction_id"`
	PlantedCropID int64     `json:"plantedCropId" db:"planted_crop_id"`
	SoldPrice     int64     `json:"soldPrice" db:"sold_price"`
	PurchasedAt   time.Time `json:"purchasedAt" db:"purchased_at"`
}

// Settlement is the outcome of an accepted offer
type Settlement struct {
	Transaction *Transaction `json:"transaction"`
	Purchase    *Purchase    `json:"purchase"`
	BuyerTotal  int64        `json:"buyerTotal"`
}

// BuyerSummary compares a buyer's running total with their recorded purchases
type BuyerSummary struct {
	BuyerID        int64       `json:"buyerId"`
	TotalPurchased int64       `json:"totalPurchased"`
	PurchasesSum   int64       `json:"purchasesSum"`
	Purchases      []*Purchase `json:"purchases"`
}

// Consistent reports whether the running total matches the purchase history
func (s *BuyerSummary) Consistent() bool {
	return s.TotalPurchased == s.PurchasesSum
}

// SellingPriceUpdate represents a farmer's asking price
type SellingPriceUpdate struct {
	SellingPrice int64 `json:"sellingPrice" validate:"gt=0"`
}

// PurchaseOffer represents a buyer's offer. BuyerID defaults to the caller.
type PurchaseOffer struct {
	BuyerID       *int64 `json:"buyerId,omitempty"`
	PurchasePrice int64  `json:"purchasePrice" validate:"gt=0"`
}

// MarketEventType names a workflow transition published on the market feed
type MarketEventType string

const (
	EventListingCreated MarketEventType = "listing_created"
	EventPriceSet       MarketEventType = "price_set"
	EventOfferPlaced    MarketEventType = "offer_placed"
	EventOfferSettled   MarketEventType = "offer_settled"
)

// MarketEvent is a committed workflow transition
type MarketEvent struct {
	Type        MarketEventType `json:"type"`
	Transaction *Transaction    `json:"transaction"`
	OccurredAt  time.Time       `json:"occurredAt"`
}
