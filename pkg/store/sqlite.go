package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

// SQLiteStore keeps the catalog in a single-file database. Price history
// and subscribers live in JSON columns so Update stays one statement and a
// half-written record is impossible.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent claims; the
	// engine then serializes the conditional updates for us.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			url             TEXT PRIMARY KEY,
			currency        TEXT NOT NULL,
			title           TEXT NOT NULL,
			image           TEXT NOT NULL DEFAULT '',
			current_price   REAL NOT NULL DEFAULT 0,
			original_price  REAL NOT NULL DEFAULT 0,
			price_history   TEXT NOT NULL DEFAULT '[]',
			lowest_price    REAL NOT NULL DEFAULT 0,
			highest_price   REAL NOT NULL DEFAULT 0,
			average_price   REAL NOT NULL DEFAULT 0,
			discount_rate   REAL NOT NULL DEFAULT 0,
			description     TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			reviews_count   INTEGER NOT NULL DEFAULT 0,
			stars           REAL NOT NULL DEFAULT 0,
			is_out_of_stock INTEGER NOT NULL DEFAULT 0,
			users           TEXT NOT NULL DEFAULT '[]',
			last_scraped_at DATETIME,
			created_at      DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

const productColumns = `url, currency, title, image, current_price, original_price,
	price_history, lowest_price, highest_price, average_price, discount_rate,
	description, category, reviews_count, stars, is_out_of_stock, users,
	last_scraped_at, created_at`

func (s *SQLiteStore) Claim(ctx context.Context, now, staleHorizon time.Time) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products SET last_scraped_at = ?
		WHERE url = (
			SELECT url FROM products
			WHERE last_scraped_at IS NULL OR last_scraped_at < ?
			ORDER BY last_scraped_at IS NOT NULL, created_at
			LIMIT 1
		)
		AND (last_scraped_at IS NULL OR last_scraped_at < ?)
		RETURNING `+productColumns,
		now.UTC(), staleHorizon.UTC(), staleHorizon.UTC(),
	)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Release(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET last_scraped_at = NULL WHERE url = ?`, url)
	return err
}

func (s *SQLiteStore) Update(ctx context.Context, p *models.Product) error {
	historyJSON, usersJSON, err := marshalSeqs(p)
	if err != nil {
		return err
	}

	var lastScraped any
	if p.LastScrapedAt != nil {
		lastScraped = p.LastScrapedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			currency = ?, title = ?, image = ?, current_price = ?,
			original_price = ?, price_history = ?, lowest_price = ?,
			highest_price = ?, average_price = ?, discount_rate = ?,
			description = ?, category = ?, reviews_count = ?, stars = ?,
			is_out_of_stock = ?, users = ?, last_scraped_at = ?
		WHERE url = ?`,
		p.Currency, p.Title, p.Image, p.CurrentPrice,
		p.OriginalPrice, historyJSON, p.LowestPrice,
		p.HighestPrice, p.AveragePrice, p.DiscountRate,
		p.Description, p.Category, p.ReviewsCount, p.Stars,
		p.IsOutOfStock, usersJSON, lastScraped,
		p.URL,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", p.URL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, p *models.Product) error {
	historyJSON, usersJSON, err := marshalSeqs(p)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (url, currency, title, image, current_price,
			original_price, price_history, lowest_price, highest_price,
			average_price, discount_rate, description, category,
			reviews_count, stars, is_out_of_stock, users, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.URL, p.Currency, p.Title, p.Image, p.CurrentPrice,
		p.OriginalPrice, historyJSON, p.LowestPrice, p.HighestPrice,
		p.AveragePrice, p.DiscountRate, p.Description, p.Category,
		p.ReviewsCount, p.Stars, p.IsOutOfStock, usersJSON, p.CreatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateURL
		}
		return fmt.Errorf("insert %s: %w", p.URL, err)
	}
	return nil
}

func (s *SQLiteStore) GetByURL(ctx context.Context, url string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE url = ?`, url)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Subscribe(ctx context.Context, url, email string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var usersJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT users FROM products WHERE url = ?`, url).Scan(&usersJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var users []models.Subscriber
	if err := json.Unmarshal([]byte(usersJSON), &users); err != nil {
		return fmt.Errorf("subscribe %s: corrupt users column: %w", url, err)
	}
	for _, u := range users {
		if u.Email == email {
			return tx.Commit() // already subscribed, set semantics
		}
	}
	users = append(users, models.Subscriber{Email: email})

	updated, err := json.Marshal(users)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET users = ? WHERE url = ?`, string(updated), url); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalSeqs(p *models.Product) (historyJSON, usersJSON string, err error) {
	history := p.PriceHistory
	if history == nil {
		history = []models.PriceHistoryEntry{}
	}
	users := p.Users
	if users == nil {
		users = []models.Subscriber{}
	}

	h, err := json.Marshal(history)
	if err != nil {
		return "", "", err
	}
	u, err := json.Marshal(users)
	if err != nil {
		return "", "", err
	}
	return string(h), string(u), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p           models.Product
		historyJSON string
		usersJSON   string
		lastScraped sql.NullTime
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

	if err := json.Unmarshal([]byte(historyJSON), &p.PriceHistory); err != nil {
		return nil, fmt.Errorf("corrupt price_history for %s: %w", p.URL, err)
	}
	if err := json.Unmarshal([]byte(usersJSON), &p.Users); err != nil {
		return nil, fmt.Errorf("corrupt users for %s: %w", p.URL, err)
	}
	if lastScraped.Valid {
		t := lastScraped.Time
		p.LastScrapedAt = &t
	}
	return &p, nil
}
