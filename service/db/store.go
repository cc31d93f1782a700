// Package db persists the wallet registry and the transfer ledger in
// Postgres. The Store exposes domain models only; SQL stays in this package.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// observe records query duration and outcome for one store operation.
// A not-found result counts as success; the query itself worked.
func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
}

// Wallet is a registered smart wallet whose balances the service tracks.
type Wallet struct {
	Address        string
	CredentialID   string
	PollInterval   time.Duration
	Status         string // "active" or "disconnected"
	LastRefreshAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateWalletParams contains the parameters for registering a wallet.
type CreateWalletParams struct {
	Address      string
	CredentialID string
	PollInterval time.Duration
	Status       string
}

// Transfer is one row in the transfer ledger. Every submission attempt is
// recorded, successful or not; Signature and ErrorCode are mutually exclusive.
type Transfer struct {
	ID                      int64
	WalletAddress           string
	Recipient               string
	AmountBaseUnits         int64
	Signature               *string
	Status                  string // "success" or "failed"
	ErrorCode               *string
	ErrorMessage            *string
	RecipientAccountCreated bool
	CreatedAt               time.Time
}

// CreateTransferParams contains the parameters for recording a transfer attempt.
type CreateTransferParams struct {
	WalletAddress           string
	Recipient               string
	AmountBaseUnits         int64
	Signature               *string
	Status                  string
	ErrorCode               *string
	ErrorMessage            *string
	RecipientAccountCreated bool
}

// ListTransfersParams contains pagination parameters for the ledger.
type ListTransfersParams struct {
	WalletAddress string
	Limit         int32
	Offset        int32
}

// CreateWallet registers a wallet. The address is the primary key, so
// registering the same address twice fails with a unique violation.
func (s *Store) CreateWallet(ctx context.Context, params CreateWalletParams) (*Wallet, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, credential_id, poll_interval_ms, status)
		VALUES ($1, $2, $3, $4)
		RETURNING address, credential_id, poll_interval_ms, status, last_refresh_at, created_at, updated_at`,
		params.Address, params.CredentialID, params.PollInterval.Milliseconds(), params.Status,
	)
	w, err := scanWallet(row)
	s.observe("create_wallet", "wallets", start, err)
	return w, err
}

// GetWallet retrieves a wallet by address.
func (s *Store) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT address, credential_id, poll_interval_ms, status, last_refresh_at, created_at, updated_at
		FROM wallets WHERE address = $1`,
		address,
	)
	w, err := scanWallet(row)
	s.observe("get_wallet", "wallets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

// ListWallets returns all registered wallets, newest first.
func (s *Store) ListWallets(ctx context.Context) (_ []*Wallet, retErr error) {
	start := time.Now()
	defer func() { s.observe("list_wallets", "wallets", start, retErr) }()

	rows, err := s.pool.Query(ctx, `
		SELECT address, credential_id, poll_interval_ms, status, last_refresh_at, created_at, updated_at
		FROM wallets ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// UpdateWalletStatus sets a wallet's status ("active" or "disconnected").
func (s *Store) UpdateWalletStatus(ctx context.Context, address, status string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets SET status = $2, updated_at = now() WHERE address = $1`,
		address, status,
	)
	s.observe("update_wallet_status", "wallets", start, err)
	if err != nil {
		return fmt.Errorf("failed to update wallet status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchWalletRefresh records a completed balance refresh for a wallet.
func (s *Store) TouchWalletRefresh(ctx context.Context, address string, at time.Time) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets SET last_refresh_at = $2, updated_at = now() WHERE address = $1`,
		address, at,
	)
	s.observe("touch_wallet_refresh", "wallets", start, err)
	if err != nil {
		return fmt.Errorf("failed to touch wallet refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWallet removes a wallet and its ledger rows.
func (s *Store) DeleteWallet(ctx context.Context, address string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE address = $1`, address)
	s.observe("delete_wallet", "wallets", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTransfer records a transfer attempt in the ledger.
func (s *Store) CreateTransfer(ctx context.Context, params CreateTransferParams) (*Transfer, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transfers (wallet_address, recipient, amount_base_units, signature, status, error_code, error_message, recipient_account_created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, wallet_address, recipient, amount_base_units, signature, status, error_code, error_message, recipient_account_created, created_at`,
		params.WalletAddress, params.Recipient, params.AmountBaseUnits,
		params.Signature, params.Status, params.ErrorCode, params.ErrorMessage,
		params.RecipientAccountCreated,
	)
	tr, err := scanTransfer(row)
	s.observe("create_transfer", "transfers", start, err)
	return tr, err
}

// GetTransfer retrieves one ledger row by id.
func (s *Store) GetTransfer(ctx context.Context, id int64) (*Transfer, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, recipient, amount_base_units, signature, status, error_code, error_message, recipient_account_created, created_at
		FROM transfers WHERE id = $1`,
		id,
	)
	tr, err := scanTransfer(row)
	s.observe("get_transfer", "transfers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tr, err
}

// ListTransfers returns ledger rows for a wallet, newest first.
// A Limit of zero defaults to 50.
func (s *Store) ListTransfers(ctx context.Context, params ListTransfersParams) (_ []*Transfer, retErr error) {
	start := time.Now()
	defer func() { s.observe("list_transfers", "transfers", start, retErr) }()

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet_address, recipient, amount_base_units, signature, status, error_code, error_message, recipient_account_created, created_at
		FROM transfers
		WHERE wallet_address = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		params.WalletAddress, limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, tr)
	}
	return transfers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var pollIntervalMs int64
	err := row.Scan(&w.Address, &w.CredentialID, &pollIntervalMs, &w.Status, &w.LastRefreshAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.PollInterval = time.Duration(pollIntervalMs) * time.Millisecond
	return &w, nil
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	var tr Transfer
	err := row.Scan(&tr.ID, &tr.WalletAddress, &tr.Recipient, &tr.AmountBaseUnits,
		&tr.Signature, &tr.Status, &tr.ErrorCode, &tr.ErrorMessage,
		&tr.RecipientAccountCreated, &tr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}
