package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/joho/godotenv"

	"github.com/LalitYangaldas/PriceWise/pkg/api"
	"github.com/LalitYangaldas/PriceWise/pkg/cron"
	"github.com/LalitYangaldas/PriceWise/pkg/history"
	"github.com/LalitYangaldas/PriceWise/pkg/logger"
	"github.com/LalitYangaldas/PriceWise/pkg/models"
	"github.com/LalitYangaldas/PriceWise/pkg/notify"
	"github.com/LalitYangaldas/PriceWise/pkg/scraper"
	"github.com/LalitYangaldas/PriceWise/pkg/store"
)

type app struct {
	store   store.Store
	scraper *scraper.Scraper
	runner  *cron.Runner
}

func main() {
	_ = godotenv.Load() // .env is optional

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	st, err := openStore()
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	fetchTimeout := envDuration("FETCH_TIMEOUT_SECONDS", 30*time.Second)

	var fetcher scraper.Fetcher
	if os.Getenv("SCRAPER_ENGINE") == "browser" {
		fetcher = scraper.NewBrowserFetcher(fetchTimeout)
	} else {
		fetcher = scraper.NewHTTPFetcher(fetchTimeout, envFloat("FETCH_RPS", 1))
	}

	sc := scraper.New(fetcher, scraper.Config{
		DefaultCurrency: os.Getenv("DEFAULT_CURRENCY"),
	})

	var notifier notify.Notifier = notify.LogNotifier{}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     host,
			Port:     envOr("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envOr("SMTP_FROM", os.Getenv("SMTP_USERNAME")),
		})
	}

	runner := cron.NewRunner(st, sc, notifier, cron.Config{
		Threshold:    envFloat("DISCOUNT_THRESHOLD", 0.6),
		StaleAfter:   envDuration("SCRAPE_STALE_MINUTES", 24*time.Hour),
		StageTimeout: fetchTimeout,
	})

	a := &app{store: st, scraper: sc, runner: runner}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Internal scheduler is optional; deployments with an external cron
	// hit /api/cron instead.
	wg := &sync.WaitGroup{}
	if interval := envDuration("SCRAPE_INTERVAL_MINUTES", 0); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx, interval)
		}()
	}

	http.HandleFunc("/", a.rootHandler)

	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           nil,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server Shutdown: %v", err)
	}

	wg.Wait()
	logger.Flush()
}

func openStore() (store.Store, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := store.NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		log.Println("Store initialized (postgres)")
		return st, nil
	}

	path := envOr("DB_PATH", "./pricewise.db")
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	log.Printf("Store initialized (sqlite) at %s", path)
	return st, nil
}

func (a *app) rootHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		a.apiHandler(w, r)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("PriceWise API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func (a *app) apiHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/cron":
		a.handleCron(w, r)
	case r.URL.Path == "/api/products":
		a.handleProducts(w, r)
	default:
		api.WriteNotFound(w, "Unknown endpoint. Available: /api/cron, /api/products", r.URL.Path)
	}
}

// handleCron is the external trigger: one claimed product per call, cheap
// no-op when nothing is eligible.
func (a *app) handleCron(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}

	result := a.runner.RunCycle(r.Context())

	status := http.StatusOK
	if result.Status == cron.StatusError {
		status = http.StatusInternalServerError
	}
	api.WriteJSON(w, status, result)
}

type trackRequest struct {
	URL   string `json:"url"`
	Email string `json:"email,omitempty"`
}

func (a *app) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleGetProducts(w, r)
	case http.MethodPost:
		a.handleTrackRequest(w, r)
	default:
		api.WriteBadRequest(w, "Method not allowed. Use GET or POST.", r.URL.Path)
	}
}

func (a *app) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	if url := r.URL.Query().Get("url"); url != "" {
		p, err := a.store.GetByURL(r.Context(), url)
		if errors.Is(err, store.ErrNotFound) {
			api.WriteNotFound(w, "Product not tracked", r.URL.Path)
			return
		}
		if err != nil {
			api.WriteInternalServerError(w, err, r.URL.Path)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
		return
	}

	products, err := a.store.List(r.Context())
	if err != nil {
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	if products == nil {
		products = []*models.Product{}
	}
	api.WriteJSON(w, http.StatusOK, products)
}

// handleTrackRequest registers a listing URL for monitoring. A new URL is
// scraped immediately so the catalog entry starts with a real snapshot; a
// known URL just gains a subscriber.
func (a *app) handleTrackRequest(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected {url, email}.", r.URL.Path)
		return
	}
	defer r.Body.Close()

	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		api.WriteBadRequest(w, "url must be an absolute http(s) URL", r.URL.Path)
		return
	}

	_, err := a.store.GetByURL(r.Context(), req.URL)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p, err := a.trackNew(r.Context(), req)
		if err != nil {
			var extractionErr *models.ExtractionError
			if errors.As(err, &extractionErr) {
				api.WriteError(w, http.StatusUnprocessableEntity, "Extraction Failed",
					extractionErr.Error(), r.URL.Path)
				return
			}
			api.WriteInternalServerError(w, err, r.URL.Path)
			return
		}
		api.WriteJSON(w, http.StatusCreated, p)
	case err != nil:
		api.WriteInternalServerError(w, err, r.URL.Path)
	default:
		if req.Email != "" {
			if err := a.store.Subscribe(r.Context(), req.URL, req.Email); err != nil {
				api.WriteInternalServerError(w, err, r.URL.Path)
				return
			}
		}
		p, err := a.store.GetByURL(r.Context(), req.URL)
		if err != nil {
			api.WriteInternalServerError(w, err, r.URL.Path)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

func (a *app) trackNew(ctx context.Context, req trackRequest) (*models.Product, error) {
	snap, err := a.scraper.Snapshot(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	entries, stats := history.Append(nil, snap.CurrentPrice, snap.CapturedAt)

	rate := snap.DiscountRate
	if rate == models.RateUnknown {
		rate = 0
	}

	p := &models.Product{
		URL:           snap.URL,
		Currency:      snap.Currency,
		Title:         snap.Title,
		Image:         snap.ImageURL,
		CurrentPrice:  snap.CurrentPrice,
		OriginalPrice: snap.OriginalPrice,
		PriceHistory:  entries,
		LowestPrice:   stats.Lowest,
		HighestPrice:  stats.Highest,
		AveragePrice:  stats.Average,
		DiscountRate:  rate,
		Description:   snap.Description,
		ReviewsCount:  snap.ReviewsCount,
		Stars:         snap.Stars,
		IsOutOfStock:  snap.IsOutOfStock,
		CreatedAt:     time.Now().UTC(),
	}
	if req.Email != "" {
		p.Users = []models.Subscriber{{Email: req.Email}}
	}

	if err := a.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			if strings.HasSuffix(key, "_SECONDS") {
				return time.Duration(parsed) * time.Second
			}
			return time.Duration(parsed) * time.Minute
		}
	}
	return fallback
}
