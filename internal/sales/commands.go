package sales

import "time"

// CreateSaleCommand holds everything needed to register a new sale.
type CreateSaleCommand struct {
	SaleNumber string      `json:"sale_number" validate:"required,max=50"`
	SaleDate   time.Time   `json:"sale_date" validate:"required,lte"`
	Customer   string      `json:"customer" validate:"required,max=100"`
	Branch     string      `json:"branch" validate:"required,max=100"`
	CreatedBy  string      `json:"created_by" validate:"required,uuid"`
	Items      []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateSaleCommand replaces the header of a sale and reconciles its lines.
type UpdateSaleCommand struct {
	ID         string      `json:"id" validate:"required"`
	SaleNumber string      `json:"sale_number" validate:"required,max=50"`
	SaleDate   time.Time   `json:"sale_date" validate:"required,lte"`
	Customer   string      `json:"customer" validate:"required,max=100"`
	Branch     string      `json:"branch" validate:"required,max=100"`
	Items      []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// SaleFilter narrows ListSales. Zero values mean "any".
type SaleFilter struct {
	Customer  string
	Branch    string
	CreatedBy string
	From      time.Time
	To        time.Time
	Cancelled *bool
	Page      int
	PageSize  int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func (f SaleFilter) normalized() SaleFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	} else if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

func (f SaleFilter) offset() int {
	return (f.Page - 1) * f.PageSize
}

// matches reports whether a sale passes every filter condition.
func (f SaleFilter) matches(s *Sale) bool {
	if f.Customer != "" && s.Customer != f.Customer {
		return false
	}
	if f.Branch != "" && s.Branch != f.Branch {
		return false
	}
	if f.CreatedBy != "" && s.CreatedBy != f.CreatedBy {
		return false
	}
	if !f.From.IsZero() && s.SaleDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.SaleDate.After(f.To) {
		return false
	}
	if f.Cancelled != nil && s.IsCancelled != *f.Cancelled {
		return false
	}
	return true
}
