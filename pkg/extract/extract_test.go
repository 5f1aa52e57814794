package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"plain", "499.00", 499.00},
		{"currency prefix", "₹1,499.50", 1499.50},
		{"german format", "1.234,56 €", 1234.56},
		{"us format", "$1,234.56", 1234.56},
		{"comma decimal", "4,99", 4.99},
		{"thousands grouping", "4,499", 4499},
		{"eu thousands grouping", "1.299", 1299},
		{"whitespace junk", "  42 . 50 something ", 42.50},
		{"zero is a real price", "0.00", 0},
		{"empty", "", models.PriceNotFound},
		{"no digits", "price unavailable", models.PriceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.in)
			if got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.in, got, tt.want)
			}
			// Parsing is deterministic: same input, same value.
			if again := ParsePrice(tt.in); again != got {
				t.Errorf("ParsePrice(%q) not deterministic: %v then %v", tt.in, got, again)
			}
		})
	}
}

func TestParsePriceNeverPanicsOnJunk(t *testing.T) {
	junk := []string{"!!!", "....", ",,,,", "€€€", "NaN", "12..34,,56", "\x00\x01"}
	for _, in := range junk {
		got := ParsePrice(in)
		if got != models.PriceNotFound && got < 0 {
			t.Errorf("ParsePrice(%q) = %v, want non-negative or sentinel", in, got)
		}
	}
}

func TestCurrencyFromSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"$", "USD"},
		{"£", "GBP"},
		{"€", "EUR"},
		{"₹", "INR"},
		{"¥", "JPY"},
		{"", "INR"},
		{"weird", "INR"},
		{" € ", "EUR"},
	}
	for _, tt := range tests {
		if got := CurrencyFromSymbol(tt.symbol, "INR"); got != tt.want {
			t.Errorf("CurrencyFromSymbol(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestOutOfStock(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Currently unavailable", true},
		{"  currently   unavailable  ", true},
		{"Out of Stock", true},
		{"Temporarily out of stock", true},
		{"In Stock", false},
		{"Only 2 left in stock", false},
		// Unknown phrasings read as in-stock: known false-negative risk.
		{"ausverkauft", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := OutOfStock(tt.in); got != tt.want {
			t.Errorf("OutOfStock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFirstMatchOrder(t *testing.T) {
	doc := mustDoc(t, `
		<html><body>
			<h1 class="product-title">Fallback Title</h1>
			<span id="productTitle">  Primary Title  </span>
		</body></html>`)

	value, strategy, ok := FirstMatch(doc, TitleStrategies)
	if !ok {
		t.Fatal("expected a match")
	}
	if value != "Primary Title" {
		t.Errorf("value = %q, want %q", value, "Primary Title")
	}
	if strategy != "#productTitle" {
		t.Errorf("strategy = %q, want #productTitle", strategy)
	}
}

func TestFirstMatchFallsThrough(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>Only H1</h1></body></html>`)

	value, strategy, ok := FirstMatch(doc, TitleStrategies)
	if !ok || value != "Only H1" {
		t.Fatalf("value = %q ok = %v, want fallback match", value, ok)
	}
	if strategy != "h1" {
		t.Errorf("strategy = %q, want h1", strategy)
	}
}

func TestFirstMatchNotFound(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>nothing here</p></body></html>`)
	if _, _, ok := FirstMatch(doc, TitleStrategies); ok {
		t.Error("expected no match")
	}
}

func TestImageURLs(t *testing.T) {
	urls, err := ImageURLs(`{"https://img.example/b.jpg":[500,500],"https://img.example/a.jpg":[300,300]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://img.example/a.jpg" {
		t.Errorf("urls = %v, want sorted pair starting with a.jpg", urls)
	}
}

func TestImageURLsMalformed(t *testing.T) {
	if _, err := ImageURLs(`{not json`); err == nil {
		t.Error("expected error for malformed metadata")
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"-23%", 23},
		{"50%", 50},
		{"", models.RateUnknown},
		{"N/A", models.RateUnknown},
		{"150%", models.RateUnknown},
	}
	for _, tt := range tests {
		if got := ParseRate(tt.in); got != tt.want {
			t.Errorf("ParseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseCountAndStars(t *testing.T) {
	if got := ParseCount("1,234 ratings"); got != 1234 {
		t.Errorf("ParseCount = %d, want 1234", got)
	}
	if got := ParseCount("no ratings yet"); got != 0 {
		t.Errorf("ParseCount = %d, want 0", got)
	}
	if got := ParseStars("4.5 out of 5 stars"); got != 4.5 {
		t.Errorf("ParseStars = %v, want 4.5", got)
	}
	if got := ParseStars("4,3 von 5 Sternen"); got != 4.3 {
		t.Errorf("ParseStars = %v, want 4.3", got)
	}
	if got := ParseStars(""); got != 0 {
		t.Errorf("ParseStars = %v, want 0", got)
	}
}
