// Package store persists the tracked-product catalog. It is the only
// shared resource between scrape cycles: claim serialization relies on the
// engine's atomic conditional update, not on in-process locks.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

var (
	ErrNotFound     = errors.New("store: product not found")
	ErrDuplicateURL = errors.New("store: url already tracked")
)

// Store is the product catalog. Claim and Update are the two mutation
// paths a scrape cycle uses; Insert and Subscribe serve tracking requests.
type Store interface {
	// Claim atomically selects one eligible product and stamps its
	// last_scraped_at in the same statement, so two overlapping cycles can
	// never take the same product. Eligible means never scraped, or last
	// scraped before staleHorizon; never-scraped products win ties, then
	// oldest created_at. Returns nil, nil when nothing is eligible.
	Claim(ctx context.Context, now, staleHorizon time.Time) (*models.Product, error)

	// Release clears the claim stamp so the product is eligible again on
	// the next cycle. Used when fetch or extraction fails after a
	// successful claim.
	Release(ctx context.Context, url string) error

	// Update persists the full merged record in a single statement.
	Update(ctx context.Context, p *models.Product) error

	Insert(ctx context.Context, p *models.Product) error
	GetByURL(ctx context.Context, url string) (*models.Product, error)
	List(ctx context.Context) ([]*models.Product, error)
	Subscribe(ctx context.Context, url, email string) error

	Close() error
}
