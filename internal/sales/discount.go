package sales

import "github.com/shopspring/decimal"

const (
	// MaxItemQuantity is the largest quantity of identical items a sale line may carry.
	MaxItemQuantity = 20

	minDiscountQuantity = 4
	minTopTierQuantity  = 10

	// moneyPlaces is the number of decimal places kept for prices and amounts.
	moneyPlaces = 2
)

// MaxUnitPrice is the largest unit price accepted for a sale line.
var MaxUnitPrice = decimal.NewFromInt(1_000_000)

var (
	noDiscount    = decimal.Zero
	tenPercent    = decimal.New(10, -2)
	twentyPercent = decimal.New(20, -2)
)

// DiscountTier returns the discount percentage, as a fraction, for the
// given quantity of identical items:
//
//	1-3   -> 0
//	4-9   -> 0.10
//	10-20 -> 0.20
func DiscountTier(quantity int) (decimal.Decimal, error) {
	switch {
	case quantity < 1:
		return decimal.Zero, ErrInvalidQuantity
	case quantity > MaxItemQuantity:
		return decimal.Zero, ErrQuantityExceeded
	case quantity >= minTopTierQuantity:
		return twentyPercent, nil
	case quantity >= minDiscountQuantity:
		return tenPercent, nil
	default:
		return noDiscount, nil
	}
}

// DiscountFor computes the discount amount for a line, rounded half away
// from zero to cents.
func DiscountFor(quantity int, unitPrice decimal.Decimal) (amount, percentage decimal.Decimal, err error) {
	percentage, err = DiscountTier(quantity)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	amount = unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Mul(percentage).Round(moneyPlaces)
	return amount, percentage, nil
}

// CheckUnitPrice reports whether price is a positive amount of whole cents
// no larger than MaxUnitPrice.
func CheckUnitPrice(price decimal.Decimal) error {
	if !price.IsPositive() || price.GreaterThan(MaxUnitPrice) || !price.Equal(price.Truncate(moneyPlaces)) {
		return ErrInvalidUnitPrice
	}
	return nil
}
