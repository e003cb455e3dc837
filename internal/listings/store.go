// Package listings persists user-submitted marketplace listing metadata in
// PostgreSQL. Only listing records live here; offer verification state is
// cached alongside for display but the chain remains the source of truth.
package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the listings pool was not initialised.
var ErrNotConfigured = errors.New("listings: pool not configured")

const (
	upsertListingSQL = `INSERT INTO listings (
        id,
        created_at,
        title,
        description,
        collection,
        image_url,
        offer_txid,
        token_id,
        price_sats,
        amount_atoms,
        verification
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (id) DO UPDATE
    SET
        title        = EXCLUDED.title,
        description  = EXCLUDED.description,
        collection   = EXCLUDED.collection,
        image_url    = EXCLUDED.image_url,
        offer_txid   = EXCLUDED.offer_txid,
        token_id     = EXCLUDED.token_id,
        price_sats   = EXCLUDED.price_sats,
        amount_atoms = EXCLUDED.amount_atoms,
        verification = EXCLUDED.verification;`

	listRecentListingsSQL = `SELECT
        id,
        created_at,
        title,
        description,
        collection,
        image_url,
        offer_txid,
        token_id,
        price_sats,
        amount_atoms,
        verification,
        verified_at
    FROM listings
    ORDER BY created_at DESC
    LIMIT $1;`

	getListingSQL = `SELECT
        id,
        created_at,
        title,
        description,
        collection,
        image_url,
        offer_txid,
        token_id,
        price_sats,
        amount_atoms,
        verification,
        verified_at
    FROM listings
    WHERE id = $1;`

	updateVerificationSQL = `UPDATE listings
    SET verification = $2, verified_at = $3
    WHERE id = $1;`

	deleteListingSQL = `DELETE FROM listings WHERE id = $1;`

	countListingsSQL = `SELECT COUNT(*) FROM listings;`
)

// ListingStore defines listing persistence operations.
type ListingStore interface {
	UpsertListing(ctx context.Context, listing Listing) error
	ListRecentListings(ctx context.Context, limit int) ([]Listing, error)
	GetListing(ctx context.Context, id string) (Listing, error)
	UpdateVerification(ctx context.Context, id string, verification Verification, at time.Time) error
	DeleteListing(ctx context.Context, id string) error
	CountListings(ctx context.Context) (int64, error)
}

// Config encapsulates PostgreSQL connectivity for the listings registry.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Store is the pgx-backed listings registry.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertListing inserts or replaces a listing by id.
func (s *Store) UpsertListing(ctx context.Context, listing Listing) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	verification := listing.Verification
	if verification == "" {
		verification = VerificationUnknown
	}

	var priceSats, amountAtoms interface{}
	if listing.PriceSats != nil {
		priceSats = listing.PriceSats.String()
	}
	if listing.AmountAtoms != nil {
		amountAtoms = listing.AmountAtoms.String()
	}

	_, execErr := pool.Exec(ctx, upsertListingSQL,
		listing.ID,
		listing.CreatedAt,
		listing.Title,
		listing.Description,
		listing.Collection,
		listing.ImageURL,
		listing.OfferTxID,
		listing.TokenID,
		priceSats,
		amountAtoms,
		string(verification),
	)
	if execErr != nil {
		return fmt.Errorf("upsert listing: %w", execErr)
	}
	return nil
}

// ListRecentListings returns the newest listings first.
func (s *Store) ListRecentListings(ctx context.Context, limit int) ([]Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentListingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent listings: %w", queryErr)
	}
	defer rows.Close()

	result := make([]Listing, 0, limit)
	for rows.Next() {
		listing, scanErr := scanListing(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, listing)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return result, nil
}

// GetListing fetches one listing by id.
func (s *Store) GetListing(ctx context.Context, id string) (Listing, error) {
	pool, err := s.getPool()
	if err != nil {
		return Listing{}, err
	}

	rows, queryErr := pool.Query(ctx, getListingSQL, id)
	if queryErr != nil {
		return Listing{}, fmt.Errorf("get listing: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return Listing{}, rows.Err()
		}
		return Listing{}, pgx.ErrNoRows
	}
	return scanListing(rows)
}

// UpdateVerification records the latest verification state for a listing.
func (s *Store) UpdateVerification(ctx context.Context, id string, verification Verification, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateVerificationSQL, id, string(verification), at)
	if execErr != nil {
		return fmt.Errorf("update verification: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteListing removes a listing by id.
func (s *Store) DeleteListing(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteListingSQL, id); execErr != nil {
		return fmt.Errorf("delete listing: %w", execErr)
	}
	return nil
}

// CountListings counts stored listings.
func (s *Store) CountListings(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countListingsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count listings: %w", scanErr)
	}
	return count, nil
}

func scanListing(rows pgx.Rows) (Listing, error) {
	var (
		listing      Listing
		description  sql.NullString
		collection   sql.NullString
		imageURL     sql.NullString
		tokenID      sql.NullString
		priceStr     sql.NullString
		amountStr    sql.NullString
		verification string
		verifiedAt   sql.NullTime
	)

	if err := rows.Scan(
		&listing.ID,
		&listing.CreatedAt,
		&listing.Title,
		&description,
		&collection,
		&imageURL,
		&listing.OfferTxID,
		&tokenID,
		&priceStr,
		&amountStr,
		&verification,
		&verifiedAt,
	); err != nil {
		return Listing{}, err
	}

	listing.Verification = Verification(verification)

	if description.Valid {
		listing.Description = &description.String
	}
	if collection.Valid {
		listing.Collection = &collection.String
	}
	if imageURL.Valid {
		listing.ImageURL = &imageURL.String
	}
	if tokenID.Valid {
		listing.TokenID = &tokenID.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		listing.VerifiedAt = &t
	}

	if priceStr.Valid {
		price, err := decimal.NewFromString(priceStr.String)
		if err != nil {
			return Listing{}, fmt.Errorf("parse price sats: %w", err)
		}
		listing.PriceSats = &price
	}
	if amountStr.Valid {
		amount, err := decimal.NewFromString(amountStr.String)
		if err != nil {
			return Listing{}, fmt.Errorf("parse amount atoms: %w", err)
		}
		listing.AmountAtoms = &amount
	}

	return listing, nil
}

var _ ListingStore = (*Store)(nil)
