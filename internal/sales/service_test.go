package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubDirectory struct {
	known map[string]bool
	err   error
}

func (d *stubDirectory) Exists(_ context.Context, userID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.known[userID], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type serviceFixture struct {
	svc       *Service
	publisher *recordingPublisher
	userID    string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	userID := uuid.NewString()
	publisher := &recordingPublisher{}
	svc := NewService(NewLocalStorage(), &stubDirectory{known: map[string]bool{userID: true}}, publisher, zaptest.NewLogger(t))
	return &serviceFixture{svc: svc, publisher: publisher, userID: userID}
}

func (f *serviceFixture) createCommand(number string) CreateSaleCommand {
	return CreateSaleCommand{
		SaleNumber: number,
		SaleDate:   time.Now().Add(-time.Minute),
		Customer:   "ACME",
		Branch:     "Downtown",
		CreatedBy:  f.userID,
		Items: []ItemInput{
			{Product: "Widget", Quantity: 5, UnitPrice: price(10)},
			{Product: "Gadget", Quantity: 15, UnitPrice: price(10)},
		},
	}
}

// TestNewService checks the service wiring and its defaults.
func TestNewService(t *testing.T) {
	svc := NewService(NewLocalStorage(), nil, nil, zaptest.NewLogger(t))

	require.NotNil(t, svc)
	assert.NotNil(t, svc.storage, "Service storage was not initialized")
	assert.NotNil(t, svc.logger, "Service logger was not initialized")
	assert.IsType(t, &LogPublisher{}, svc.publisher, "nil publisher should fall back to logging")
	assert.Nil(t, svc.users)
}

func TestCreateSale(t *testing.T) {
	f := newServiceFixture(t)

	sale, err := f.svc.CreateSale(context.Background(), f.createCommand("S-1"))
	require.NoError(t, err)

	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, 1, sale.Version)
	require.Len(t, sale.Items, 2)
	assert.True(t, sale.Items[0].TotalAmount.Equal(price(45)))
	assert.True(t, sale.Items[1].TotalAmount.Equal(price(120)))
	assert.True(t, sale.TotalAmount.Equal(price(165)), "total %s", sale.TotalAmount)
	assert.NoError(t, sale.Validate())
	assert.Equal(t, []EventType{EventSaleCreated}, f.publisher.types())

	stored, err := f.svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "S-1", stored.SaleNumber)
}

func TestCreateSale_DuplicateNumber(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateSale(context.Background(), f.createCommand("S-1"))
	require.NoError(t, err)

	_, err = f.svc.CreateSale(context.Background(), f.createCommand("S-1"))
	assert.ErrorIs(t, err, ErrDuplicateSaleNumber)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateSale_Validation(t *testing.T) {
	f := newServiceFixture(t)
	cmd := f.createCommand("")
	cmd.SaleDate = time.Now().Add(time.Hour)
	cmd.Items[0].Quantity = 0
	cmd.Items[1].UnitPrice = price(0)

	_, err := f.svc.CreateSale(context.Background(), cmd)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"sale_number", "sale_date", "items[0].quantity", "items[1].unit_price"}, fields)
	assert.Empty(t, f.publisher.types())
}

func TestCreateSale_NoItems(t *testing.T) {
	f := newServiceFixture(t)
	cmd := f.createCommand("S-1")
	cmd.Items = []ItemInput{}

	_, err := f.svc.CreateSale(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateSale_QuantityExceeded(t *testing.T) {
	f := newServiceFixture(t)
	cmd := f.createCommand("S-1")
	cmd.Items[1].Quantity = 21

	_, err := f.svc.CreateSale(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrQuantityExceeded)

	_, err = f.svc.GetSaleByNumber(context.Background(), "S-1")
	assert.ErrorIs(t, err, ErrSaleNotFound, "rejected sale must not be stored")
}

// TestCreateSale_UserNotFound checks that unknown creators are rejected.
func TestCreateSale_UserNotFound(t *testing.T) {
	f := newServiceFixture(t)
	cmd := f.createCommand("S-1")
	cmd.CreatedBy = uuid.NewString()

	sale, err := f.svc.CreateSale(context.Background(), cmd)

	require.Error(t, err)
	assert.Nil(t, sale)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "created_by", verr.Fields[0].Field)
}

func TestCreateSale_DirectoryUnavailable(t *testing.T) {
	svc := NewService(NewLocalStorage(), &stubDirectory{err: errors.New("connection refused")}, &recordingPublisher{}, zaptest.NewLogger(t))
	f := &serviceFixture{svc: svc, userID: uuid.NewString()}

	_, err := svc.CreateSale(context.Background(), f.createCommand("S-1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestUpdateSale(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sale, err := f.svc.CreateSale(ctx, f.createCommand("S-1"))
	require.NoError(t, err)
	keptID := sale.Items[0].ID
	droppedID := sale.Items[1].ID

	updated, err := f.svc.UpdateSale(ctx, UpdateSaleCommand{
		ID:         sale.ID,
		SaleNumber: "S-1B",
		SaleDate:   sale.SaleDate,
		Customer:   "Globex",
		Branch:     "Uptown",
		Items: []ItemInput{
			{ID: keptID, Product: "Widget", Quantity: 10, UnitPrice: price(10)},
			{Product: "Bolt", Quantity: 2, UnitPrice: price(1)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Globex", updated.Customer)
	require.Len(t, updated.Items, 2)
	assert.Equal(t, keptID, updated.Items[0].ID)
	assert.True(t, updated.TotalAmount.Equal(price(82)), "total %s", updated.TotalAmount)
	_, err = updated.Item(droppedID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	byNumber, err := f.svc.GetSaleByNumber(ctx, "S-1B")
	require.NoError(t, err)
	assert.Equal(t, sale.ID, byNumber.ID)
	assert.Equal(t, []EventType{EventSaleCreated, EventSaleModified}, f.publisher.types())
}

func TestUpdateSale_Errors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a, err := f.svc.CreateSale(ctx, f.createCommand("S-1"))
	require.NoError(t, err)
	_, err = f.svc.CreateSale(ctx, f.createCommand("S-2"))
	require.NoError(t, err)

	cmd := UpdateSaleCommand{
		ID:         a.ID,
		SaleNumber: "S-2",
		SaleDate:   a.SaleDate,
		Customer:   "ACME",
		Branch:     "Downtown",
		Items:      []ItemInput{{Product: "Widget", Quantity: 1, UnitPrice: price(10)}},
	}
	_, err = f.svc.UpdateSale(ctx, cmd)
	assert.ErrorIs(t, err, ErrDuplicateSaleNumber)

	cmd.SaleNumber = "S-1"
	cmd.ID = uuid.NewString()
	_, err = f.svc.UpdateSale(ctx, cmd)
	assert.ErrorIs(t, err, ErrSaleNotFound)

	cmd.ID = a.ID
	_, err = f.svc.CancelSale(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateSale(ctx, cmd)
	assert.ErrorIs(t, err, ErrSaleCancelled)
}

func TestCancelSale(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sale, err := f.svc.CreateSale(ctx, f.createCommand("S-1"))
	require.NoError(t, err)

	cancelled, err := f.svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled)
	assert.True(t, cancelled.TotalAmount.Equal(sale.TotalAmount), "cancelling keeps the total")

	_, err = f.svc.CancelSale(ctx, sale.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = f.svc.CancelSale(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrSaleNotFound)
	assert.Equal(t, []EventType{EventSaleCreated, EventSaleCancelled}, f.publisher.types())
}

func TestItemOperations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sale, err := f.svc.CreateSale(ctx, f.createCommand("S-1"))
	require.NoError(t, err)

	sale, err = f.svc.AddItem(ctx, sale.ID, ItemInput{Product: "Bolt", Quantity: 3, UnitPrice: price(2)})
	require.NoError(t, err)
	require.Len(t, sale.Items, 3)
	assert.True(t, sale.TotalAmount.Equal(price(171)), "total %s", sale.TotalAmount)

	_, err = f.svc.AddItem(ctx, sale.ID, ItemInput{Product: "", Quantity: 3, UnitPrice: price(2)})
	assert.ErrorIs(t, err, ErrValidation)

	boltID := sale.Items[2].ID
	sale, err = f.svc.UpdateItemQuantity(ctx, sale.ID, boltID, 4)
	require.NoError(t, err)
	bolt, _ := sale.Item(boltID)
	assert.True(t, bolt.TotalAmount.Equal(decimal.RequireFromString("7.2")), "bolt total %s", bolt.TotalAmount)

	_, err = f.svc.UpdateItemQuantity(ctx, sale.ID, boltID, 30)
	assert.ErrorIs(t, err, ErrQuantityExceeded)

	sale, err = f.svc.RemoveItem(ctx, sale.ID, boltID)
	require.NoError(t, err)
	assert.Len(t, sale.Items, 2)
	assert.Equal(t, 4, sale.Version)

	types := f.publisher.types()
	assert.Equal(t, EventItemCancelled, types[len(types)-1])
	f.publisher.mu.Lock()
	assert.Equal(t, boltID, f.publisher.events[len(f.publisher.events)-1].ItemID)
	f.publisher.mu.Unlock()
}

func TestListSales(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	var ids []string
	for _, n := range []string{"S-1", "S-2", "S-3"} {
		s, err := f.svc.CreateSale(ctx, f.createCommand(n))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	_, err := f.svc.CancelSale(ctx, ids[0])
	require.NoError(t, err)

	results, metadata, err := f.svc.ListSales(ctx, SaleFilter{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 3, metadata.Total)
	assert.Equal(t, 2, metadata.TotalPages)
	assert.Equal(t, 1, metadata.Page)

	_, metadata, err = f.svc.ListSales(ctx, SaleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, metadata.Quantity)
	assert.Equal(t, 2, metadata.Active)
	assert.Equal(t, 1, metadata.Cancelled)
	assert.Equal(t, 10, metadata.PageSize)
	assert.True(t, metadata.TotalAmount.Equal(price(330)), "total %s", metadata.TotalAmount)

	_, metadata, err = f.svc.ListSales(ctx, SaleFilter{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, metadata.PageSize)
}

func TestSave_VersionConflict(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sale, err := f.svc.CreateSale(ctx, f.createCommand("S-1"))
	require.NoError(t, err)

	stale, err := f.svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	_, err = f.svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	require.NoError(t, stale.RemoveItem(stale.Items[0].ID))
	_, err = f.svc.save(ctx, stale, EventSaleModified)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestSaleIDMustBeUUID(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetSale(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrSaleNotFound)
	_, err = f.svc.CancelSale(ctx, "42")
	assert.ErrorIs(t, err, ErrSaleNotFound)
	_, err = f.svc.AddItem(ctx, "42", ItemInput{Product: "Bolt", Quantity: 1, UnitPrice: price(1)})
	assert.ErrorIs(t, err, ErrSaleNotFound)
	_, err = f.svc.RemoveItem(ctx, "42", uuid.NewString())
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestSave_RejectsBrokenInvariants(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	sale, err := f.svc.CreateSale(ctx, f.createCommand("S-1"))
	require.NoError(t, err)

	tampered, err := f.svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	tampered.Items[0].DiscountPercentage = twentyPercent
	_, err = f.svc.save(ctx, tampered, EventSaleModified)
	assert.ErrorIs(t, err, ErrWrongDiscountTier)

	tampered, _ = f.svc.GetSale(ctx, sale.ID)
	tampered.Items[0].Quantity = 2
	_, err = f.svc.save(ctx, tampered, EventSaleModified)
	assert.ErrorIs(t, err, ErrDiscountNotAllowed)

	stored, err := f.svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version, "invalid sales are never persisted")
	assert.Equal(t, []EventType{EventSaleCreated}, f.publisher.types())
}
