package models

import (
	"errors"
	"fmt"
	"time"
)

// PriceNotFound marks a price that could not be extracted. A genuine free
// or zero-priced listing keeps 0; the two must never be conflated.
const PriceNotFound float64 = -1

// RateUnknown marks a discount rate the listing did not expose.
const RateUnknown float64 = -1

// HasPrice reports whether p carries an actually extracted value.
func HasPrice(p float64) bool {
	return p >= 0
}

var ErrProductNotFound = errors.New("product not found")

// ProductSnapshot is one point-in-time structured read of a listing page.
type ProductSnapshot struct {
	URL           string    `json:"url"`
	Currency      string    `json:"currency"`
	Title         string    `json:"title"`
	CurrentPrice  float64   `json:"current_price"`
	OriginalPrice float64   `json:"original_price"`
	DiscountRate  float64   `json:"discount_rate"` // RateUnknown when absent
	ImageURL      string    `json:"image_url,omitempty"`
	Description   string    `json:"description,omitempty"`
	ReviewsCount  int       `json:"reviews_count"`
	Stars         float64   `json:"stars"`
	IsOutOfStock  bool      `json:"is_out_of_stock"`
	CapturedAt    time.Time `json:"captured_at"`
}

// PriceHistoryEntry is one appended observation. The history is
// append-only; insertion order is chronological order.
type PriceHistoryEntry struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

type Subscriber struct {
	Email string `json:"email"`
}

// Product is the persistent record, keyed uniquely by URL.
type Product struct {
	URL           string              `json:"url"`
	Currency      string              `json:"currency"`
	Title         string              `json:"title"`
	Image         string              `json:"image,omitempty"`
	CurrentPrice  float64             `json:"current_price"`
	OriginalPrice float64             `json:"original_price"`
	PriceHistory  []PriceHistoryEntry `json:"price_history"`
	LowestPrice   float64             `json:"lowest_price"`
	HighestPrice  float64             `json:"highest_price"`
	AveragePrice  float64             `json:"average_price"`
	DiscountRate  float64             `json:"discount_rate"`
	Description   string              `json:"description,omitempty"`
	Category      string              `json:"category,omitempty"`
	ReviewsCount  int                 `json:"reviews_count"`
	Stars         float64             `json:"stars"`
	IsOutOfStock  bool                `json:"is_out_of_stock"`
	Users         []Subscriber        `json:"users"`
	LastScrapedAt *time.Time          `json:"last_scraped_at,omitempty"` // nil = never scraped
	CreatedAt     time.Time           `json:"created_at"`
}

// Emails returns the subscriber addresses in stored order.
func (p *Product) Emails() []string {
	out := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		out = append(out, u.Email)
	}
	return out
}

// ExtractionReason classifies why a snapshot could not be assembled.
type ExtractionReason string

const (
	MissingTitle           ExtractionReason = "missing_title"
	MissingPrice           ExtractionReason = "missing_price"
	MalformedImageMetadata ExtractionReason = "malformed_image_metadata"
)

// ExtractionError aborts a scrape cycle before anything is persisted.
type ExtractionError struct {
	Reason ExtractionReason
	URL    string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %s", e.Reason, e.URL)
}

// Category is the classification of a price/stock change that decides
// whether subscribers are owed an alert.
type Category string

const (
	CategoryNone             Category = ""
	CategoryPriceDrop        Category = "price_drop"
	CategoryLowestPriceEver  Category = "lowest_price_ever"
	CategoryThresholdCrossed Category = "threshold_crossed"
	CategoryBackInStock      Category = "back_in_stock"
)
