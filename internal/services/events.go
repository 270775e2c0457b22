package services

import (
	"time"

	"agrimarket-backend/internal/models"
)

// EventPublisher receives committed workflow transitions
type EventPublisher interface {
	Publish(event models.MarketEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.MarketEvent) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func newMarketEvent(eventType models.MarketEventType, tx *models.Transaction) models.MarketEvent {
	return models.MarketEvent{
		Type:        eventType,
		Transaction: tx,
		OccurredAt:  time.Now().UTC(),
	}
}
