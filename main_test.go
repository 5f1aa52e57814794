package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LalitYangaldas/PriceWise/pkg/api"
	"github.com/LalitYangaldas/PriceWise/pkg/cron"
	"github.com/LalitYangaldas/PriceWise/pkg/models"
	"github.com/LalitYangaldas/PriceWise/pkg/notify"
	"github.com/LalitYangaldas/PriceWise/pkg/scraper"
	"github.com/LalitYangaldas/PriceWise/pkg/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sc := scraper.New(scraper.NewHTTPFetcher(10*time.Second, 0), scraper.Config{
		DefaultCurrency: "INR",
	})
	runner := cron.NewRunner(st, sc, notify.LogNotifier{}, cron.Config{
		Threshold:    0.6,
		StageTimeout: 10 * time.Second,
	})
	return &app{store: st, scraper: sc, runner: runner}
}

func TestAPIHandlerErrors(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "Unknown endpoint",
			method:         "GET",
			path:           "/api/unknown",
			expectedStatus: http.StatusNotFound,
			expectedDetail: "Unknown endpoint",
		},
		{
			name:           "Cron rejects POST",
			method:         "POST",
			path:           "/api/cron",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Method not allowed",
		},
		{
			name:           "Products rejects DELETE",
			method:         "DELETE",
			path:           "/api/products",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Method not allowed",
		},
	}

	a := newTestApp(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()

			a.apiHandler(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("content type = %q", ct)
			}

			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Fatalf("invalid problem JSON: %v. Body: %s", err, rr.Body.String())
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("detail = %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
			if pd.Instance != tt.path {
				t.Errorf("instance = %q, want %q", pd.Instance, tt.path)
			}
		})
	}
}

func TestCronEndpointEmptyCatalog(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest("GET", "/api/cron", nil)
	rr := httptest.NewRecorder()
	a.apiHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var res cron.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if res.Status != cron.StatusEmpty {
		t.Errorf("Status = %q, want empty", res.Status)
	}
}

func TestTrackRequestRejectsBadInput(t *testing.T) {
	a := newTestApp(t)

	for _, body := range []string{`not json`, `{"url":"ftp://x"}`, `{"url":""}`} {
		req := httptest.NewRequest("POST", "/api/products", strings.NewReader(body))
		rr := httptest.NewRecorder()
		a.apiHandler(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestTrackThenCronRoundTrip(t *testing.T) {
	listing := fmt.Sprintf(`
		<html><body>
			<span id="productTitle">Round Trip Widget</span>
			<span class="a-price-symbol">$</span>
			<div class="priceToPay"><span class="a-price-whole">%s</span></div>
			<div id="availability"><span>In Stock</span></div>
		</body></html>`, "19.99")

	var mu sync.Mutex
	price := "19.99"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		p := price
		mu.Unlock()
		fmt.Fprintf(w, strings.Replace(listing, "19.99", "%s", 1), p)
	}))
	defer ts.Close()

	a := newTestApp(t)

	// Track the listing with one subscriber.
	body := fmt.Sprintf(`{"url":%q,"email":"a@example.com"}`, ts.URL+"/p/1")
	req := httptest.NewRequest("POST", "/api/products", strings.NewReader(body))
	rr := httptest.NewRecorder()
	a.apiHandler(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("track status = %d, body %s", rr.Code, rr.Body.String())
	}

	var created models.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Title != "Round Trip Widget" || created.CurrentPrice != 19.99 {
		t.Fatalf("created = %+v", created)
	}
	if created.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", created.Currency)
	}
	if len(created.PriceHistory) != 1 {
		t.Fatalf("history = %v, want one seeded entry", created.PriceHistory)
	}

	// Drop the price and run one cycle.
	mu.Lock()
	price = "14.99"
	mu.Unlock()
	req = httptest.NewRequest("GET", "/api/cron", nil)
	rr = httptest.NewRecorder()
	a.apiHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("cron status = %d, body %s", rr.Code, rr.Body.String())
	}

	var res cron.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != cron.StatusOK {
		t.Fatalf("cycle = %q (%s), want ok", res.Status, res.Error)
	}
	if res.Product.CurrentPrice != 14.99 {
		t.Errorf("CurrentPrice = %v, want 14.99", res.Product.CurrentPrice)
	}
	if res.Product.LowestPrice != 14.99 {
		t.Errorf("LowestPrice = %v, want 14.99", res.Product.LowestPrice)
	}
	if len(res.Product.PriceHistory) != 2 {
		t.Errorf("history length = %d, want 2", len(res.Product.PriceHistory))
	}
	if res.Category != models.CategoryLowestPriceEver {
		t.Errorf("Category = %q, want lowest_price_ever", res.Category)
	}

	// Nothing else is eligible inside the freshness window.
	rr = httptest.NewRecorder()
	a.apiHandler(rr, httptest.NewRequest("GET", "/api/cron", nil))
	var second cron.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.Status != cron.StatusEmpty {
		t.Errorf("second cycle = %q, want empty", second.Status)
	}
}
