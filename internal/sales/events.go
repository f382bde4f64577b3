package sales

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType names a sale lifecycle notification.
type EventType string

const (
	EventSaleCreated   EventType = "sale.created"
	EventSaleModified  EventType = "sale.modified"
	EventSaleCancelled EventType = "sale.cancelled"
	EventItemCancelled EventType = "sale.item_cancelled"
)

// Event is published after a sale change has been persisted.
type Event struct {
	Type       EventType `json:"type"`
	SaleID     string    `json:"sale_id"`
	SaleNumber string    `json:"sale_number"`
	ItemID     string    `json:"item_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEvent(t EventType, sale *Sale) Event {
	return Event{Type: t, SaleID: sale.ID, SaleNumber: sale.SaleNumber, OccurredAt: time.Now().UTC()}
}

// Publisher delivers sale events. Delivery failures are the publisher's
// concern and never fail the operation that raised the event.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes every event to the log and nothing else.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher that logs events with logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.String("event", string(event.Type)),
		zap.String("sale_id", event.SaleID),
		zap.String("sale_number", event.SaleNumber),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.ItemID != "" {
		fields = append(fields, zap.String("item_id", event.ItemID))
	}
	p.logger.Info("sale event", fields...)
}
