package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPageSize is used when a filter does not set a limit.
const DefaultPageSize = 20

// Filter is the typed query specification for order listings and exports.
// Zero-valued fields are not applied. Search matches a tracking-number
// substring or an exact numeric order id.
type Filter struct {
	Status      *Status
	UserID      *int64
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Normalize fills in pagination defaults and clamps negative offsets.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Summary is one row of a paginated order listing.
type Summary struct {
	OrderID        int64
	UserID         int64
	CustomerName   string
	CustomerEmail  string
	Status         Status
	TotalAmount    decimal.Decimal
	TrackingNumber *string
	ItemCount      int
	CreatedAt      time.Time
}

// Page is a paginated listing with computed page metadata.
type Page struct {
	Orders     []Summary
	Total      int
	Limit      int
	Offset     int
	TotalPages int
}

// newPage computes TotalPages as ceil(total/limit).
func newPage(orders []Summary, total int, f Filter) *Page {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return &Page{
		Orders:     orders,
		Total:      total,
		Limit:      f.Limit,
		Offset:     f.Offset,
		TotalPages: pages,
	}
}

// ExportRow is one flattened order for CSV export.
type ExportRow struct {
	OrderID        int64
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Status         Status
	TotalAmount    decimal.Decimal
	ItemSummary    string
	TrackingNumber string
	CreatedAt      time.Time
	Address        string
}
