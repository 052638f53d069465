package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one immutable extraction result for a product page.
type PriceSnapshot struct {
	Name          string              `json:"name"`
	CurrentPrice  decimal.Decimal     `json:"current_price"`
	OriginalPrice decimal.NullDecimal `json:"original_price"`
	Currency      string              `json:"currency"`
	OnSale        bool                `json:"on_sale"`
	FetchedAt     time.Time           `json:"fetched_at"`
	Strategy      string              `json:"strategy,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// DiscountPercentage returns the markdown from the original price, or zero
// when the product is not on sale.
func (s *PriceSnapshot) DiscountPercentage() decimal.Decimal {
	if !s.OnSale || !s.OriginalPrice.Valid || s.OriginalPrice.Decimal.IsZero() {
		return decimal.Zero
	}
	diff := s.OriginalPrice.Decimal.Sub(s.CurrentPrice)
	return diff.Div(s.OriginalPrice.Decimal).Mul(decimal.NewFromInt(100)).Round(2)
}

// LowConfidence reports whether the snapshot is a best guess.
func (s *PriceSnapshot) LowConfidence() bool {
	return len(s.Warnings) > 0
}

// Product is a tracked product page with its denormalised latest price.
type Product struct {
	ID            int                 `json:"id" db:"id"`
	URL           string              `json:"url" db:"url"`
	Name          string              `json:"name" db:"name"`
	CurrentPrice  decimal.Decimal     `json:"current_price" db:"current_price"`
	OriginalPrice decimal.NullDecimal `json:"original_price" db:"original_price"`
	Currency      string              `json:"currency" db:"currency"`
	OnSale        bool                `json:"on_sale" db:"on_sale"`
	LastChecked   *time.Time          `json:"last_checked" db:"last_checked"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

// PriceChange returns the percentage change from the stored price to newPrice.
func (p *Product) PriceChange(newPrice decimal.Decimal) decimal.Decimal {
	if p.CurrentPrice.IsZero() {
		return decimal.Zero
	}
	return newPrice.Sub(p.CurrentPrice).Div(p.CurrentPrice).Mul(decimal.NewFromInt(100)).Round(1)
}

// GetPriceChangeReason returns a human-readable description of a price change.
func (p *Product) GetPriceChangeReason(newPrice decimal.Decimal) string {
	if p.CurrentPrice.IsZero() {
		return "First price check"
	}

	change := p.PriceChange(newPrice)
	switch {
	case change.IsNegative():
		return fmt.Sprintf("Price dropped by %s%%", change.Neg().StringFixed(1))
	case change.IsPositive():
		return fmt.Sprintf("Price increased by %s%%", change.StringFixed(1))
	default:
		return "No price change"
	}
}

// PriceHistory is one recorded price point.
type PriceHistory struct {
	ID            int                 `json:"id" db:"id"`
	ProductID     int                 `json:"product_id" db:"product_id"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	OriginalPrice decimal.NullDecimal `json:"original_price" db:"original_price"`
	Currency      string              `json:"currency" db:"currency"`
	OnSale        bool                `json:"on_sale" db:"on_sale"`
	CheckedAt     time.Time           `json:"checked_at" db:"checked_at"`
}

// AddProductRequest is the body of a request to start tracking a product.
type AddProductRequest struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

// ExtractRequest is the body of a one-off extraction request.
type ExtractRequest struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

// CheckPriceResponse is returned after a manual price check.
type CheckPriceResponse struct {
	ProductID     int                 `json:"product_id"`
	Name          string              `json:"name"`
	NewPrice      decimal.Decimal     `json:"new_price"`
	OriginalPrice decimal.NullDecimal `json:"original_price"`
	Currency      string              `json:"currency"`
	OnSale        bool                `json:"on_sale"`
	Change        string              `json:"change"`
	Warnings      []string            `json:"warnings,omitempty"`
}
