package scraper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/LalitYangaldas/PriceWise/pkg/extract"
	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// FetchError wraps a network failure. It aborts the cycle for the product
// without touching its persisted state.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves a raw listing document. Implementations must bound the
// request with a timeout so a stalled upstream cannot hold a scheduling
// slot.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches listing pages over plain HTTP with an optional
// process-wide rate limit on outgoing requests.
type HTTPFetcher struct {
	collector *colly.Collector
	limiter   *rate.Limiter
}

// NewHTTPFetcher configures a colly collector with the given request
// timeout. rps <= 0 disables rate limiting.
func NewHTTPFetcher(timeout time.Duration, rps float64) *HTTPFetcher {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		// The same listing is visited once per cycle, forever.
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPFetcher{collector: c, limiter: limiter}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}
	}

	// Clone per fetch: callbacks registered on a collector are permanent.
	c := f.collector.Clone()

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(url); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	c.Wait()

	if len(body) == 0 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("empty response")}
	}
	return body, nil
}

// Config holds the normalization policy knobs.
type Config struct {
	// DefaultCurrency is the ISO code used when no symbol is detected.
	DefaultCurrency string
}

// Scraper turns a listing URL into a ProductSnapshot.
type Scraper struct {
	fetcher Fetcher
	cfg     Config
}

func New(fetcher Fetcher, cfg Config) *Scraper {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}
	return &Scraper{fetcher: fetcher, cfg: cfg}
}

// Snapshot fetches the listing and assembles the canonical snapshot. Title
// and at least one price are the only fatal fields; everything else falls
// back to a neutral default so one odd template does not lose the whole
// observation.
func (s *Scraper) Snapshot(ctx context.Context, url string) (*models.ProductSnapshot, error) {
	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	return s.Normalize(doc, url)
}

// Normalize runs the field extractors over a parsed document. Split from
// Snapshot so fixture documents can be normalized without a fetcher.
func (s *Scraper) Normalize(doc *goquery.Document, url string) (*models.ProductSnapshot, error) {
	title, _, ok := extract.FirstMatch(doc, extract.TitleStrategies)
	if !ok {
		return nil, &models.ExtractionError{Reason: models.MissingTitle, URL: url}
	}

	currentPrice := models.PriceNotFound
	if text, _, ok := extract.FirstMatch(doc, extract.CurrentPriceStrategies); ok {
		currentPrice = extract.ParsePrice(text)
	}
	originalPrice := models.PriceNotFound
	if text, _, ok := extract.FirstMatch(doc, extract.OriginalPriceStrategies); ok {
		originalPrice = extract.ParsePrice(text)
	}

	switch {
	case !models.HasPrice(currentPrice) && !models.HasPrice(originalPrice):
		return nil, &models.ExtractionError{Reason: models.MissingPrice, URL: url}
	case !models.HasPrice(currentPrice):
		currentPrice = originalPrice
	case !models.HasPrice(originalPrice):
		originalPrice = currentPrice
	}

	snap := &models.ProductSnapshot{
		URL:           url,
		Title:         title,
		CurrentPrice:  currentPrice,
		OriginalPrice: originalPrice,
		DiscountRate:  models.RateUnknown,
		CapturedAt:    time.Now().UTC(),
	}

	symbol, _, _ := extract.FirstMatch(doc, extract.CurrencySymbolStrategies)
	snap.Currency = extract.CurrencyFromSymbol(symbol, s.cfg.DefaultCurrency)

	if avail, _, ok := extract.FirstMatch(doc, extract.AvailabilityStrategies); ok {
		snap.IsOutOfStock = extract.OutOfStock(avail)
	}

	if meta, _, ok := extract.FirstMatch(doc, extract.ImageMetadataStrategies); ok {
		urls, err := extract.ImageURLs(meta)
		if err != nil {
			return nil, &models.ExtractionError{Reason: models.MalformedImageMetadata, URL: url}
		}
		if len(urls) > 0 {
			snap.ImageURL = urls[0]
		}
	}

	if desc, _, ok := extract.FirstMatch(doc, extract.DescriptionStrategies); ok {
		snap.Description = desc
	}
	if text, _, ok := extract.FirstMatch(doc, extract.DiscountRateStrategies); ok {
		snap.DiscountRate = extract.ParseRate(text)
	}
	if text, _, ok := extract.FirstMatch(doc, extract.ReviewsCountStrategies); ok {
		snap.ReviewsCount = extract.ParseCount(text)
	}
	if text, _, ok := extract.FirstMatch(doc, extract.StarsStrategies); ok {
		snap.Stars = extract.ParseStars(text)
	}

	return snap, nil
}
