package sales

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this package unwraps to exactly one of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBusinessRule = errors.New("business rule violation")
	ErrValidation   = errors.New("validation failed")
)

var (
	ErrSaleNotFound = kindError(ErrNotFound, "sale not found")
	ErrItemNotFound = kindError(ErrNotFound, "sale item not found")

	ErrDuplicateSaleID     = kindError(ErrConflict, "sale already exists")
	ErrDuplicateSaleNumber = kindError(ErrConflict, "sale number already exists")
	ErrAlreadyCancelled    = kindError(ErrConflict, "sale is already cancelled")
	ErrSaleCancelled       = kindError(ErrConflict, "cannot modify a cancelled sale")
	ErrVersionConflict     = kindError(ErrConflict, "sale was modified concurrently")

	ErrQuantityExceeded   = kindError(ErrBusinessRule, "cannot sell more than 20 identical items")
	ErrDiscountNotAllowed = kindError(ErrBusinessRule, "purchases below 4 items cannot have a discount")
	ErrWrongDiscountTier  = kindError(ErrBusinessRule, "incorrect discount percentage for quantity")
	ErrTotalMismatch      = kindError(ErrBusinessRule, "total amount does not match quantity, price and discount")
	ErrEmptySale          = kindError(ErrBusinessRule, "a sale must have at least one item")

	// ErrEmptyID is returned when trying to store a sale with an empty ID.
	ErrEmptyID          = kindError(ErrValidation, "empty sale ID")
	ErrInvalidQuantity  = kindError(ErrValidation, "quantity must be greater than zero")
	ErrInvalidUnitPrice = kindError(ErrValidation, "unit price must be greater than zero, at most 1000000, in whole cents")
)

type ruleError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &ruleError{kind: kind, msg: msg}
}

func (e *ruleError) Error() string { return e.msg }

func (e *ruleError) Unwrap() error { return e.kind }

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level failures of a command or entity.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
