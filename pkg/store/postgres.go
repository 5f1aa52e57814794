package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

// PostgresStore backs the catalog with a pgx pool for deployments where the
// scraper runs alongside other services. Same single-statement claim and
// update contract as SQLiteStore; history and subscribers are JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			url             TEXT PRIMARY KEY,
			currency        TEXT NOT NULL,
			title           TEXT NOT NULL,
			image           TEXT NOT NULL DEFAULT '',
			current_price   DOUBLE PRECISION NOT NULL DEFAULT 0,
			original_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_history   JSONB NOT NULL DEFAULT '[]',
			lowest_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
			highest_price   DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_price   DOUBLE PRECISION NOT NULL DEFAULT 0,
			discount_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
			description     TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			reviews_count   INTEGER NOT NULL DEFAULT 0,
			stars           DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_out_of_stock BOOLEAN NOT NULL DEFAULT FALSE,
			users           JSONB NOT NULL DEFAULT '[]',
			last_scraped_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

const pgProductColumns = `url, currency, title, image, current_price, original_price,
	price_history, lowest_price, highest_price, average_price, discount_rate,
	description, category, reviews_count, stars, is_out_of_stock, users,
	last_scraped_at, created_at`

func (s *PostgresStore) Claim(ctx context.Context, now, staleHorizon time.Time) (*models.Product, error) {
	// SKIP LOCKED keeps two racing claims from ever waiting on, let alone
	// taking, the same row.
	row := s.pool.QueryRow(ctx, `
		UPDATE products SET last_scraped_at = $1
		WHERE url = (
			SELECT url FROM products
			WHERE last_scraped_at IS NULL OR last_scraped_at < $2
			ORDER BY last_scraped_at IS NOT NULL, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+pgProductColumns,
		now.UTC(), staleHorizon.UTC(),
	)

	p, err := scanPgProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Release(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE products SET last_scraped_at = NULL WHERE url = $1`, url)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Product) error {
	historyJSON, usersJSON, err := marshalSeqs(p)
	if err != nil {
		return err
	}

	var lastScraped *time.Time
	if p.LastScrapedAt != nil {
		t := p.LastScrapedAt.UTC()
		lastScraped = &t
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET
			currency = $1, title = $2, image = $3, current_price = $4,
			original_price = $5, price_history = $6, lowest_price = $7,
			highest_price = $8, average_price = $9, discount_rate = $10,
			description = $11, category = $12, reviews_count = $13,
			stars = $14, is_out_of_stock = $15, users = $16,
			last_scraped_at = $17
		WHERE url = $18`,
		p.Currency, p.Title, p.Image, p.CurrentPrice,
		p.OriginalPrice, historyJSON, p.LowestPrice,
		p.HighestPrice, p.AveragePrice, p.DiscountRate,
		p.Description, p.Category, p.ReviewsCount,
		p.Stars, p.IsOutOfStock, usersJSON,
		lastScraped, p.URL,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", p.URL, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, p *models.Product) error {
	historyJSON, usersJSON, err := marshalSeqs(p)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO products (url, currency, title, image, current_price,
			original_price, price_history, lowest_price, highest_price,
			average_price, discount_rate, description, category,
			reviews_count, stars, is_out_of_stock, users, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18)`,
		p.URL, p.Currency, p.Title, p.Image, p.CurrentPrice,
		p.OriginalPrice, historyJSON, p.LowestPrice, p.HighestPrice,
		p.AveragePrice, p.DiscountRate, p.Description, p.Category,
		p.ReviewsCount, p.Stars, p.IsOutOfStock, usersJSON, p.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateURL
		}
		return fmt.Errorf("insert %s: %w", p.URL, err)
	}
	return nil
}

func (s *PostgresStore) GetByURL(ctx context.Context, url string) (*models.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE url = $1`, url)
	p, err := scanPgProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgProductColumns+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanPgProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Subscribe(ctx context.Context, url, email string) error {
	// Deduplicates inside the statement: append only when the email is not
	// already present in the users array.
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET users = users || jsonb_build_array(jsonb_build_object('email', $1::text))
		WHERE url = $2
		AND NOT users @> jsonb_build_array(jsonb_build_object('email', $1::text))`,
		email, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either unknown url or already subscribed; distinguish for callers.
		if _, err := s.GetByURL(ctx, url); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgProduct(row pgx.Row) (*models.Product, error) {
	var (
		p           models.Product
		historyJSON []byte
		usersJSON   []byte
		lastScraped *time.Time
	)
	err := row.Scan(
		&p.URL, &p.Currency, &p.Title, &p.Image, &p.CurrentPrice,
		&p.OriginalPrice, &historyJSON, &p.LowestPrice, &p.HighestPrice,
		&p.AveragePrice, &p.DiscountRate, &p.Description, &p.Category,
		&p.ReviewsCount, &p.Stars, &p.IsOutOfStock, &usersJSON,
		&lastScraped, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(historyJSON, &p.PriceHistory); err != nil {
		return nil, fmt.Errorf("corrupt price_history for %s: %w", p.URL, err)
	}
	if err := json.Unmarshal(usersJSON, &p.Users); err != nil {
		return nil, fmt.Errorf("corrupt users for %s: %w", p.URL, err)
	}
	p.LastScrapedAt = lastScraped
	return &p, nil
}
