// Package cron drives one scrape cycle per invocation: claim a product,
// snapshot its listing, extend the price history, decide whether subscribers
// are owed an alert, persist, deliver.
package cron

import (
	"context"
	"log"
	"time"

	"github.com/LalitYangaldas/PriceWise/pkg/history"
	"github.com/LalitYangaldas/PriceWise/pkg/logger"
	"github.com/LalitYangaldas/PriceWise/pkg/models"
	"github.com/LalitYangaldas/PriceWise/pkg/notify"
	"github.com/LalitYangaldas/PriceWise/pkg/store"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Result is the structured outcome of one cycle, returned to the trigger.
type Result struct {
	Status   Status          `json:"status"`
	Product  *models.Product `json:"product,omitempty"`
	Category models.Category `json:"category,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Snapshotter is the extraction collaborator; *scraper.Scraper satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context, url string) (*models.ProductSnapshot, error)
}

type Config struct {
	// Threshold is the ThresholdCrossed fraction of the original price;
	// 0 disables the rule.
	Threshold float64
	// StaleAfter is how long after a successful scrape a product becomes
	// eligible again. Zero means a product is scraped once and never again.
	StaleAfter time.Duration
	// StageTimeout bounds the fetch and each store operation.
	StageTimeout time.Duration
}

type Runner struct {
	store    store.Store
	scraper  Snapshotter
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
}

func NewRunner(st store.Store, sc Snapshotter, n notify.Notifier, cfg Config) *Runner {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}
	return &Runner{store: st, scraper: sc, notifier: n, cfg: cfg, now: time.Now}
}

// RunCycle processes at most one product. Repeated invocations with nothing
// to do are cheap no-ops. A failure after the claim releases it so the
// product is retried next cycle instead of starving claimed-forever.
func (r *Runner) RunCycle(ctx context.Context) Result {
	now := r.now().UTC()

	// Zero horizon readmits nothing: only never-scraped products qualify.
	var staleHorizon time.Time
	if r.cfg.StaleAfter > 0 {
		staleHorizon = now.Add(-r.cfg.StaleAfter)
	}

	claimCtx, cancelClaim := context.WithTimeout(ctx, r.cfg.StageTimeout)
	prev, err := r.store.Claim(claimCtx, now, staleHorizon)
	cancelClaim()
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}
	if prev == nil {
		logger.Dedup("cron: no eligible products")
		return Result{Status: StatusEmpty}
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, r.cfg.StageTimeout)
	snap, err := r.scraper.Snapshot(fetchCtx, prev.URL)
	cancelFetch()
	if err != nil {
		r.release(prev.URL)
		return Result{Status: StatusError, Error: err.Error()}
	}

	entries, stats := history.Append(prev.PriceHistory, snap.CurrentPrice, snap.CapturedAt)
	category := notify.Decide(prev, snap, r.cfg.Threshold)

	updated := merge(prev, snap, entries, stats, now)

	persistCtx, cancelPersist := context.WithTimeout(ctx, r.cfg.StageTimeout)
	err = r.store.Update(persistCtx, updated)
	cancelPersist()
	if err != nil {
		r.release(prev.URL)
		return Result{Status: StatusError, Error: err.Error()}
	}

	if category != models.CategoryNone && len(updated.Users) > 0 {
		n := notify.Notification{
			Recipients: updated.Emails(),
			ProductURL: updated.URL,
			Title:      updated.Title,
			Category:   category,
		}
		// Best-effort: the price update is already committed and a failed
		// delivery must not reverse it.
		if err := r.notifier.Send(ctx, n); err != nil {
			log.Printf("cron: notification for %s failed: %v", updated.URL, err)
		}
	}

	return Result{Status: StatusOK, Product: updated, Category: category}
}

// Run invokes RunCycle on a fixed interval until ctx is cancelled. The HTTP
// trigger calls RunCycle directly; Run serves standalone deployments.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("cron: started, interval %v", interval)
	r.logResult(r.RunCycle(ctx))

	for {
		select {
		case <-ctx.Done():
			log.Println("cron: stopping, context cancelled")
			return
		case <-ticker.C:
			r.logResult(r.RunCycle(ctx))
		}
	}
}

func (r *Runner) logResult(res Result) {
	switch res.Status {
	case StatusOK:
		log.Printf("cron: scraped %s, price %.2f, category %q",
			res.Product.URL, res.Product.CurrentPrice, res.Category)
	case StatusError:
		log.Printf("cron: cycle failed: %s", res.Error)
	}
}

// release lifts a claim after a failed cycle. Best-effort: if it fails the
// product stays claimed until the stale window readmits it.
func (r *Runner) release(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StageTimeout)
	defer cancel()
	if err := r.store.Release(ctx, url); err != nil {
		log.Printf("cron: failed to release claim on %s: %v", url, err)
	}
}

// merge folds the fresh snapshot and recomputed statistics into the
// persisted record. Identity, subscribers and creation time are kept.
func merge(prev *models.Product, snap *models.ProductSnapshot, entries []models.PriceHistoryEntry, stats history.Stats, scrapedAt time.Time) *models.Product {
	rate := snap.DiscountRate
	if rate == models.RateUnknown {
		rate = 0
	}

	image := snap.ImageURL
	if image == "" {
		image = prev.Image
	}
	description := snap.Description
	if description == "" {
		description = prev.Description
	}

	return &models.Product{
		URL:           prev.URL,
		Currency:      snap.Currency,
		Title:         snap.Title,
		Image:         image,
		CurrentPrice:  snap.CurrentPrice,
		OriginalPrice: snap.OriginalPrice,
		PriceHistory:  entries,
		LowestPrice:   stats.Lowest,
		HighestPrice:  stats.Highest,
		AveragePrice:  stats.Average,
		DiscountRate:  rate,
		Description:   description,
		Category:      prev.Category,
		ReviewsCount:  snap.ReviewsCount,
		Stars:         snap.Stars,
		IsOutOfStock:  snap.IsOutOfStock,
		Users:         prev.Users,
		LastScrapedAt: &scrapedAt,
		CreatedAt:     prev.CreatedAt,
	}
}
