package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UserDirectory tells whether a user id refers to a known user.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Service provides high-level sales management operations on a Storage backend.
type Service struct {
	storage   Storage
	users     UserDirectory
	publisher Publisher
	logger    *zap.Logger
}

// SalesMetadata describes a page returned by ListSales. Quantity, Active,
// Cancelled and TotalAmount summarize the returned page only; TotalAmount
// ignores cancelled sales.
type SalesMetadata struct {
	Total       int             `json:"total"`
	Page        int             `json:"page"`
	PageSize    int             `json:"page_size"`
	TotalPages  int             `json:"total_pages"`
	Quantity    int             `json:"quantity"`
	Active      int             `json:"active"`
	Cancelled   int             `json:"cancelled"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewService creates a new Service. A nil users directory disables the
// creator check; a nil publisher logs events.
func NewService(storage Storage, users UserDirectory, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if publisher == nil {
		publisher = NewLogPublisher(logger)
	}

	return &Service{
		storage:   storage,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateSale handles the creation of a new sale.
func (s *Service) CreateSale(ctx context.Context, cmd CreateSaleCommand) (*Sale, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	if _, err := s.storage.ReadByNumber(ctx, cmd.SaleNumber); err == nil {
		return nil, ErrDuplicateSaleNumber
	} else if !errors.Is(err, ErrSaleNotFound) {
		return nil, fmt.Errorf("failed to check sale number: %w", err)
	}

	if err := s.validateCreator(ctx, cmd.CreatedBy); err != nil {
		return nil, err
	}

	sale := NewSale(cmd.SaleNumber, cmd.SaleDate, cmd.Customer, cmd.Branch, cmd.CreatedBy)
	for _, in := range cmd.Items {
		if _, err := sale.AddItem(in.Product, in.Quantity, in.UnitPrice); err != nil {
			return nil, err
		}
	}

	if err := sale.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.Create(ctx, sale); err != nil {
		s.logger.Error("failed to save sale", zap.String("sale_id", sale.ID), zap.Error(err))
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save sale: %w", err)
	}

	s.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("sale_number", sale.SaleNumber),
		zap.Int("items", len(sale.Items)),
		zap.Stringer("total_amount", sale.TotalAmount),
	)
	s.publisher.Publish(ctx, newEvent(EventSaleCreated, sale))
	return sale, nil
}

// GetSale returns the sale with the given id.
func (s *Service) GetSale(ctx context.Context, id string) (*Sale, error) {
	return s.read(ctx, id)
}

// read loads a sale by id. Ids that are not UUIDs cannot name a sale.
func (s *Service) read(ctx context.Context, id string) (*Sale, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrSaleNotFound
	}
	return s.storage.Read(ctx, id)
}

// GetSaleByNumber returns the sale with the given sale number.
func (s *Service) GetSaleByNumber(ctx context.Context, saleNumber string) (*Sale, error) {
	return s.storage.ReadByNumber(ctx, saleNumber)
}

// ListSales returns a page of sales and its metadata.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, SalesMetadata, error) {
	filter = filter.normalized()

	results, total, err := s.storage.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list sales", zap.Error(err))
		return nil, SalesMetadata{}, fmt.Errorf("failed to retrieve sales: %w", err)
	}

	metadata := SalesMetadata{
		Total:       total,
		Page:        filter.Page,
		PageSize:    filter.PageSize,
		TotalPages:  (total + filter.PageSize - 1) / filter.PageSize,
		TotalAmount: decimal.Zero,
	}
	for _, sale := range results {
		metadata.Quantity++
		if sale.IsCancelled {
			metadata.Cancelled++
			continue
		}
		metadata.Active++
		metadata.TotalAmount = metadata.TotalAmount.Add(sale.TotalAmount)
	}

	s.logger.Debug("sales search completed",
		zap.String("customer_filter", filter.Customer),
		zap.String("branch_filter", filter.Branch),
		zap.Int("results_count", len(results)),
		zap.Int("total", total),
	)
	return results, metadata, nil
}

// UpdateSale replaces the sale header and reconciles its items.
func (s *Service) UpdateSale(ctx context.Context, cmd UpdateSaleCommand) (*Sale, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	sale, err := s.read(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if sale.IsCancelled {
		return nil, ErrSaleCancelled
	}

	if sale.SaleNumber != cmd.SaleNumber {
		other, err := s.storage.ReadByNumber(ctx, cmd.SaleNumber)
		switch {
		case err == nil && other.ID != sale.ID:
			return nil, ErrDuplicateSaleNumber
		case err != nil && !errors.Is(err, ErrSaleNotFound):
			return nil, fmt.Errorf("failed to check sale number: %w", err)
		}
	}

	sale.SaleNumber = cmd.SaleNumber
	sale.SaleDate = cmd.SaleDate.UTC()
	sale.Customer = cmd.Customer
	sale.Branch = cmd.Branch
	if err := sale.ReconcileItems(cmd.Items); err != nil {
		return nil, err
	}

	return s.save(ctx, sale, EventSaleModified)
}

// CancelSale marks the sale as cancelled.
func (s *Service) CancelSale(ctx context.Context, id string) (*Sale, error) {
	sale, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sale.Cancel(); err != nil {
		return nil, err
	}
	return s.save(ctx, sale, EventSaleCancelled)
}

// AddItem appends a line to an existing sale.
func (s *Service) AddItem(ctx context.Context, saleID string, in ItemInput) (*Sale, error) {
	if err := validateCommand(in); err != nil {
		return nil, err
	}
	sale, err := s.read(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if _, err := sale.AddItem(in.Product, in.Quantity, in.UnitPrice); err != nil {
		return nil, err
	}
	return s.save(ctx, sale, EventSaleModified)
}

// UpdateItemQuantity changes the quantity of one line of a sale.
func (s *Service) UpdateItemQuantity(ctx context.Context, saleID, itemID string, quantity int) (*Sale, error) {
	sale, err := s.read(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if err := sale.UpdateItemQuantity(itemID, quantity); err != nil {
		return nil, err
	}
	return s.save(ctx, sale, EventSaleModified)
}

// RemoveItem drops one line of a sale.
func (s *Service) RemoveItem(ctx context.Context, saleID, itemID string) (*Sale, error) {
	sale, err := s.read(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if err := sale.RemoveItem(itemID); err != nil {
		return nil, err
	}
	updated, err := s.save(ctx, sale, EventSaleModified)
	if err != nil {
		return nil, err
	}
	event := newEvent(EventItemCancelled, updated)
	event.ItemID = itemID
	s.publisher.Publish(ctx, event)
	return updated, nil
}

func (s *Service) save(ctx context.Context, sale *Sale, event EventType) (*Sale, error) {
	if err := sale.Validate(); err != nil {
		s.logger.Error("refusing to save invalid sale", zap.String("sale_id", sale.ID), zap.Error(err))
		return nil, err
	}
	if err := s.storage.Update(ctx, sale); err != nil {
		s.logger.Error("failed to update sale", zap.String("sale_id", sale.ID), zap.Error(err))
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update sale: %w", err)
	}

	s.logger.Info("sale updated",
		zap.String("sale_id", sale.ID),
		zap.String("event", string(event)),
		zap.Int("version", sale.Version),
		zap.Stringer("total_amount", sale.TotalAmount),
	)
	s.publisher.Publish(ctx, newEvent(event, sale))
	return sale, nil
}

func (s *Service) validateCreator(ctx context.Context, userID string) error {
	if s.users == nil {
		return nil
	}
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		s.logger.Error("error validating user", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("error validating user: %w", err)
	}
	if !exists {
		verr := &ValidationError{}
		verr.add("created_by", "user "+userID+" not found")
		return verr
	}
	return nil
}
