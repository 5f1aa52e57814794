package extract

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

// Strategy is one way of locating a field in a listing document. Marketplace
// templates render the same semantic field differently, so every field keeps
// an ordered list of strategies and the first non-empty result wins.
type Strategy struct {
	Name string
	Fn   func(doc *goquery.Document) string
}

// Text builds a strategy that returns the trimmed text of the first node
// matching sel.
func Text(sel string) Strategy {
	return Strategy{
		Name: sel,
		Fn: func(doc *goquery.Document) string {
			return strings.TrimSpace(doc.Find(sel).First().Text())
		},
	}
}

// Attr builds a strategy that returns an attribute of the first node
// matching sel.
func Attr(sel, attr string) Strategy {
	return Strategy{
		Name: sel + "@" + attr,
		Fn: func(doc *goquery.Document) string {
			v, _ := doc.Find(sel).First().Attr(attr)
			return strings.TrimSpace(v)
		},
	}
}

// FirstMatch runs strategies in order and returns the first non-empty value
// together with the name of the strategy that produced it.
func FirstMatch(doc *goquery.Document, strategies []Strategy) (value, strategy string, ok bool) {
	for _, s := range strategies {
		if v := s.Fn(doc); v != "" {
			return v, s.Name, true
		}
	}
	return "", "", false
}

// Selector chains below encode empirically observed listing layouts, most
// specific first.
var (
	TitleStrategies = []Strategy{
		Text("#productTitle"),
		Text("h1.product-title"),
		Text("h1"),
	}

	CurrentPriceStrategies = []Strategy{
		Text(".priceToPay span.a-price-whole"),
		Text(".a-size-base.a-color-price"),
		Text(".a-button-selected .a-color-base"),
		Text(".a-price.a-text-price"),
		Text(".a-section.a-spacing-none .a-price-whole"),
	}

	OriginalPriceStrategies = []Strategy{
		Text("#priceblock_ourprice"),
		Text(".a-price.a-text-price span.a-offscreen"),
		Text("#listPrice"),
		Text("#priceblock_dealprice"),
		Text(".a-price.a-text-price"),
		Text(".a-size-base.a-color-price"),
		Text(".a-size-small"),
	}

	CurrencySymbolStrategies = []Strategy{
		Text(".a-price-symbol"),
	}

	AvailabilityStrategies = []Strategy{
		Text("#availability span"),
		Text("#availability"),
	}

	ImageMetadataStrategies = []Strategy{
		Attr("#imgBlkFront", "data-a-dynamic-image"),
		Attr("#landingImage", "data-a-dynamic-image"),
	}

	DescriptionStrategies = []Strategy{
		Text("#productDescription"),
		Text("#feature-bullets"),
		Text(".product-description"),
	}

	DiscountRateStrategies = []Strategy{
		Text(".savingsPercentage"),
	}

	ReviewsCountStrategies = []Strategy{
		Text("#acrCustomerReviewText"),
	}

	StarsStrategies = []Strategy{
		Text("span[data-hook='rating-out-of-text']"),
		Text("span.a-icon-alt"),
	}
)

// symbolToISO is the fixed symbol lookup. Unknown symbols fall back to the
// configured default currency.
var symbolToISO = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
	"₹": "INR",
	"¥": "JPY",
}

// CurrencyFromSymbol maps a detected currency symbol to its ISO code.
func CurrencyFromSymbol(symbol, fallback string) string {
	if iso, ok := symbolToISO[strings.TrimSpace(symbol)]; ok {
		return iso
	}
	return fallback
}

// outOfStockPhrases is the availability vocabulary. Anything not matching is
// treated as in-stock, so an unrecognized "sold out" phrasing yields a false
// negative rather than a false alert.
var outOfStockPhrases = []string{
	"currently unavailable",
	"temporarily out of stock",
	"out of stock",
	"dieser artikel ist derzeit nicht verfügbar",
}

// OutOfStock reports whether the availability text names a known
// out-of-stock state.
func OutOfStock(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Join(strings.Fields(norm), " ")
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	return false
}

// ParsePrice turns listing price text into a numeric value. All characters
// except digits and separators are stripped. The final separator is the
// decimal point unless exactly three digits follow it, the usual thousands
// grouping: "1.234,56", "1,234.56" and "4,499" parse to 1234.56, 1234.56
// and 4499. Unparseable text yields models.PriceNotFound, never zero.
func ParsePrice(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return models.PriceNotFound
	}

	stripSeps := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == '.' || r == ',' {
				return -1
			}
			return r
		}, s)
	}

	if lastSep := strings.LastIndexAny(cleaned, ".,"); lastSep >= 0 {
		frac := cleaned[lastSep+1:]
		if len(frac) == 3 {
			cleaned = stripSeps(cleaned)
		} else {
			cleaned = stripSeps(cleaned[:lastSep]) + "." + frac
		}
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || val < 0 {
		return models.PriceNotFound
	}
	return val
}

// ParseRate extracts a 0-100 discount percentage from text like "-23%".
func ParseRate(text string) float64 {
	cleaned := strings.TrimSpace(strings.NewReplacer("-", "", "%", "").Replace(text))
	if cleaned == "" {
		return models.RateUnknown
	}
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || val < 0 || val > 100 {
		return models.RateUnknown
	}
	return val
}

// ParseCount extracts an integer from text like "1,234 ratings".
func ParseCount(text string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// ParseStars extracts a rating from text like "4.5 out of 5 stars".
func ParseStars(text string) float64 {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return 0
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

// ImageURLs parses the structured image metadata attribute, a JSON object
// keyed by image URL, and returns the URLs sorted for determinism. A
// present-but-unparseable payload is an error so the caller can distinguish
// broken metadata from a listing without images.
func ImageURLs(attrJSON string) ([]string, error) {
	var imageMap map[string]json.RawMessage
	if err := json.Unmarshal([]byte(attrJSON), &imageMap); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(imageMap))
	for u := range imageMap {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls, nil
}
