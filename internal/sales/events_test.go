package sales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	sale := newTestSale(t)
	event := newEvent(EventItemCancelled, sale)
	event.ItemID = "item-1"
	p.Publish(context.Background(), event)

	entries := logs.Filter(func(e observer.LoggedEntry) bool {
		return e.LoggerName == "events"
	}).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "sale.item_cancelled", fields["event"])
	assert.Equal(t, sale.ID, fields["sale_id"])
	assert.Equal(t, "S-001", fields["sale_number"])
	assert.Equal(t, "item-1", fields["item_id"])
}
