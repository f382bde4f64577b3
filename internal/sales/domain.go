package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale represents a sales transaction in the system.
type Sale struct {
	ID          string          `json:"id" gorm:"type:uuid;primaryKey"`
	SaleNumber  string          `json:"sale_number" gorm:"size:50;uniqueIndex;not null"`
	SaleDate    time.Time       `json:"sale_date" gorm:"not null;index"`
	Customer    string          `json:"customer" gorm:"size:100;not null;index"`
	Branch      string          `json:"branch" gorm:"size:100;not null;index"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:numeric(18,4);not null"`
	IsCancelled bool            `json:"is_cancelled" gorm:"not null;default:false"`
	CreatedBy   string          `json:"created_by" gorm:"type:uuid;not null;index"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version" gorm:"not null;default:1"`
	Items       []SaleItem      `json:"items" gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
}

// SaleItem is a single line of a sale. Its discount depends only on the quantity.
type SaleItem struct {
	ID                 string          `json:"id" gorm:"type:uuid;primaryKey"`
	SaleID             string          `json:"sale_id" gorm:"type:uuid;not null;index"`
	Product            string          `json:"product" gorm:"size:100;not null"`
	Quantity           int             `json:"quantity" gorm:"not null"`
	UnitPrice          decimal.Decimal `json:"unit_price" gorm:"type:numeric(18,4);not null"`
	Discount           decimal.Decimal `json:"discount" gorm:"type:numeric(18,4);not null"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" gorm:"type:numeric(5,4);not null"`
	TotalAmount        decimal.Decimal `json:"total_amount" gorm:"type:numeric(18,4);not null"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ItemInput carries the caller-supplied fields of a sale line. ID is only
// meaningful on full updates, where it names the existing item to change.
type ItemInput struct {
	ID        string          `json:"id,omitempty"`
	Product   string          `json:"product" validate:"required,max=100"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"dgt0,dplaces=2,dmax=1000000"`
}

// NewSale creates an empty, active sale.
func NewSale(saleNumber string, saleDate time.Time, customer, branch, createdBy string) *Sale {
	now := time.Now().UTC()
	return &Sale{
		ID:          uuid.NewString(),
		SaleNumber:  saleNumber,
		SaleDate:    saleDate.UTC(),
		Customer:    customer,
		Branch:      branch,
		TotalAmount: decimal.Zero,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

// ApplyQuantityDiscount sets the discount tier for the current quantity and
// re-derives the totals. Applying it twice gives the same result.
func (i *SaleItem) ApplyQuantityDiscount() error {
	if err := CheckUnitPrice(i.UnitPrice); err != nil {
		return err
	}
	amount, pct, err := DiscountFor(i.Quantity, i.UnitPrice)
	if err != nil {
		return err
	}
	i.Discount = amount
	i.DiscountPercentage = pct
	i.CalculateTotalAmount()
	return nil
}

// CalculateTotalAmount sets TotalAmount to Quantity*UnitPrice - Discount.
func (i *SaleItem) CalculateTotalAmount() {
	i.TotalAmount = i.grossAmount().Sub(i.Discount)
}

func (i *SaleItem) grossAmount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Validate checks the item fields and its discount invariants.
func (i *SaleItem) Validate() error {
	verr := &ValidationError{}
	if i.Product == "" {
		verr.add("product", "product is required")
	} else if len([]rune(i.Product)) > 100 {
		verr.add("product", "product name cannot exceed 100 characters")
	}
	if i.Quantity < 1 {
		verr.add("quantity", "quantity must be greater than zero")
	}
	if err := CheckUnitPrice(i.UnitPrice); err != nil {
		verr.add("unit_price", err.Error())
	}
	if i.Discount.IsNegative() {
		verr.add("discount", "discount cannot be negative")
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	if i.Quantity > MaxItemQuantity {
		return ErrQuantityExceeded
	}
	if i.Quantity < minDiscountQuantity && i.Discount.IsPositive() {
		return ErrDiscountNotAllowed
	}
	expected, _ := DiscountTier(i.Quantity)
	if !i.DiscountPercentage.Equal(expected) {
		return ErrWrongDiscountTier
	}
	if !i.TotalAmount.Equal(i.grossAmount().Sub(i.Discount)) {
		return ErrTotalMismatch
	}
	return nil
}

func newItem(saleID string, in ItemInput, now time.Time) (SaleItem, error) {
	item := SaleItem{
		ID:        uuid.NewString(),
		SaleID:    saleID,
		Product:   in.Product,
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := item.ApplyQuantityDiscount(); err != nil {
		return SaleItem{}, err
	}
	return item, nil
}

// CalculateTotalAmount sets the sale total to the sum of its item totals.
func (s *Sale) CalculateTotalAmount() {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.TotalAmount)
	}
	s.TotalAmount = total
	s.touch()
}

func (s *Sale) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// AddItem appends a new line and applies its discount tier.
func (s *Sale) AddItem(product string, quantity int, unitPrice decimal.Decimal) (*SaleItem, error) {
	if s.IsCancelled {
		return nil, ErrSaleCancelled
	}
	item, err := newItem(s.ID, ItemInput{Product: product, Quantity: quantity, UnitPrice: unitPrice}, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.Items = append(s.Items, item)
	s.CalculateTotalAmount()
	return &s.Items[len(s.Items)-1], nil
}

// Item returns the line with the given id.
func (s *Sale) Item(itemID string) (*SaleItem, error) {
	for i := range s.Items {
		if s.Items[i].ID == itemID {
			return &s.Items[i], nil
		}
	}
	return nil, ErrItemNotFound
}

// UpdateItemQuantity changes the quantity of one line and re-applies its tier.
func (s *Sale) UpdateItemQuantity(itemID string, quantity int) error {
	if s.IsCancelled {
		return ErrSaleCancelled
	}
	item, err := s.Item(itemID)
	if err != nil {
		return err
	}
	if _, err := DiscountTier(quantity); err != nil {
		return err
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now().UTC()
	if err := item.ApplyQuantityDiscount(); err != nil {
		return err
	}
	s.CalculateTotalAmount()
	return nil
}

// RemoveItem drops one line. The last line of a sale cannot be removed.
func (s *Sale) RemoveItem(itemID string) error {
	if s.IsCancelled {
		return ErrSaleCancelled
	}
	for i := range s.Items {
		if s.Items[i].ID != itemID {
			continue
		}
		if len(s.Items) == 1 {
			return ErrEmptySale
		}
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
		s.CalculateTotalAmount()
		return nil
	}
	return ErrItemNotFound
}

// ReconcileItems replaces the sale lines with the incoming list, matching
// entries to existing lines by ID. Matched lines are updated in place, the
// rest are created with fresh ids, and existing lines not named by any entry
// are dropped. The sale is left untouched when any entry is rejected.
func (s *Sale) ReconcileItems(incoming []ItemInput) error {
	if s.IsCancelled {
		return ErrSaleCancelled
	}
	if len(incoming) == 0 {
		return ErrEmptySale
	}

	existing := make(map[string]SaleItem, len(s.Items))
	for _, item := range s.Items {
		existing[item.ID] = item
	}

	now := time.Now().UTC()
	claimed := make(map[string]bool, len(incoming))
	next := make([]SaleItem, 0, len(incoming))
	for idx, in := range incoming {
		if in.ID != "" {
			if claimed[in.ID] {
				verr := &ValidationError{}
				verr.add(itemField(idx, "id"), "item "+in.ID+" appears more than once")
				return verr
			}
			claimed[in.ID] = true
		}

		current, ok := existing[in.ID]
		if !ok {
			item, err := newItem(s.ID, in, now)
			if err != nil {
				return err
			}
			next = append(next, item)
			continue
		}

		current.Product = in.Product
		current.Quantity = in.Quantity
		current.UnitPrice = in.UnitPrice
		current.UpdatedAt = now
		if err := current.ApplyQuantityDiscount(); err != nil {
			return err
		}
		next = append(next, current)
	}

	s.Items = next
	s.CalculateTotalAmount()
	return nil
}

// Cancel marks the sale as cancelled. Sales are never deleted.
func (s *Sale) Cancel() error {
	if s.IsCancelled {
		return ErrAlreadyCancelled
	}
	s.IsCancelled = true
	s.touch()
	return nil
}

// Validate checks header fields, every line and the total invariant.
func (s *Sale) Validate() error {
	verr := &ValidationError{}
	switch {
	case s.SaleNumber == "":
		verr.add("sale_number", "sale number is required")
	case len([]rune(s.SaleNumber)) > 50:
		verr.add("sale_number", "sale number cannot exceed 50 characters")
	}
	switch {
	case s.SaleDate.IsZero():
		verr.add("sale_date", "sale date is required")
	case s.SaleDate.After(time.Now().UTC()):
		verr.add("sale_date", "sale date cannot be in the future")
	}
	switch {
	case s.Customer == "":
		verr.add("customer", "customer is required")
	case len([]rune(s.Customer)) > 100:
		verr.add("customer", "customer name cannot exceed 100 characters")
	}
	switch {
	case s.Branch == "":
		verr.add("branch", "branch is required")
	case len([]rune(s.Branch)) > 100:
		verr.add("branch", "branch name cannot exceed 100 characters")
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	if len(s.Items) == 0 {
		return ErrEmptySale
	}
	total := decimal.Zero
	for i := range s.Items {
		if err := s.Items[i].Validate(); err != nil {
			return err
		}
		total = total.Add(s.Items[i].TotalAmount)
	}
	if !s.TotalAmount.Equal(total) {
		return ErrTotalMismatch
	}
	return nil
}

// clone returns a deep copy, so stored sales never alias caller memory.
func (s *Sale) clone() *Sale {
	c := *s
	c.Items = append([]SaleItem(nil), s.Items...)
	return &c
}
