package sales

import (
	"context"
	"sort"
	"sync"
)

// Storage is the main interface for our sales storage layer.
type Storage interface {
	Create(ctx context.Context, sale *Sale) error
	Read(ctx context.Context, id string) (*Sale, error)
	ReadByNumber(ctx context.Context, saleNumber string) (*Sale, error)
	// Update persists header and items of a sale read at sale.Version and
	// bumps the version. Items no longer present on the sale are deleted.
	Update(ctx context.Context, sale *Sale) error
	// List returns one page of matching sales, newest sale date first,
	// and the total number of matches.
	List(ctx context.Context, filter SaleFilter) ([]*Sale, int, error)
}

// LocalStorage provides an in-memory implementation for storing sales.
type LocalStorage struct {
	mu       sync.RWMutex
	m        map[string]*Sale
	byNumber map[string]string
}

// NewLocalStorage instantiates a new LocalStorage for sales with an empty map.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		m:        map[string]*Sale{},
		byNumber: map[string]string{},
	}
}

// Create stores a new sale.
// Returns ErrEmptyID if the sale has an empty ID.
func (l *LocalStorage) Create(_ context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.m[sale.ID]; ok {
		return ErrDuplicateSaleID
	}
	if _, ok := l.byNumber[sale.SaleNumber]; ok {
		return ErrDuplicateSaleNumber
	}
	l.m[sale.ID] = sale.clone()
	l.byNumber[sale.SaleNumber] = sale.ID
	return nil
}

// Read retrieves a sale from the local storage by ID.
// Returns ErrSaleNotFound if the sale is not found.
func (l *LocalStorage) Read(_ context.Context, id string) (*Sale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.m[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	return s.clone(), nil
}

// ReadByNumber retrieves a sale by its sale number.
func (l *LocalStorage) ReadByNumber(ctx context.Context, saleNumber string) (*Sale, error) {
	l.mu.RLock()
	id, ok := l.byNumber[saleNumber]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrSaleNotFound
	}
	return l.Read(ctx, id)
}

// Update replaces a stored sale if nobody else changed it since it was read.
func (l *LocalStorage) Update(_ context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.m[sale.ID]
	if !ok {
		return ErrSaleNotFound
	}
	if current.Version != sale.Version {
		return ErrVersionConflict
	}
	if owner, taken := l.byNumber[sale.SaleNumber]; taken && owner != sale.ID {
		return ErrDuplicateSaleNumber
	}

	sale.Version++
	delete(l.byNumber, current.SaleNumber)
	l.byNumber[sale.SaleNumber] = sale.ID
	l.m[sale.ID] = sale.clone()
	return nil
}

// List retrieves the matching sales from the local storage.
func (l *LocalStorage) List(_ context.Context, filter SaleFilter) ([]*Sale, int, error) {
	filter = filter.normalized()

	l.mu.RLock()
	matched := make([]*Sale, 0, len(l.m))
	for _, s := range l.m {
		if filter.matches(s) {
			matched = append(matched, s.clone())
		}
	}
	l.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].SaleDate.Equal(matched[j].SaleDate) {
			return matched[i].SaleNumber < matched[j].SaleNumber
		}
		return matched[i].SaleDate.After(matched[j].SaleDate)
	})

	total := len(matched)
	start := filter.offset()
	if start >= total {
		return []*Sale{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
