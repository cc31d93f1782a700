// Package client provides a typed HTTP client for the gateway API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Session is an open passkey session.
type Session struct {
	SmartWallet  string    `json:"smart_wallet"`
	CredentialID string    `json:"credential_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Wallet is a registered wallet the gateway tracks.
type Wallet struct {
	Address       string     `json:"address"`
	CredentialID  string     `json:"credential_id"`
	PollInterval  string     `json:"poll_interval"`
	Status        string     `json:"status"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TransferResult is a successful transfer submission.
type TransferResult struct {
	Signature               string `json:"signature"`
	AmountBaseUnits         uint64 `json:"amount_base_units"`
	RecipientAccountCreated bool   `json:"recipient_account_created"`
}

// LedgerEntry is one row of the transfer ledger.
type LedgerEntry struct {
	ID                      int64     `json:"id"`
	WalletAddress           string    `json:"wallet_address"`
	Recipient               string    `json:"recipient"`
	AmountBaseUnits         int64     `json:"amount_base_units"`
	Signature               *string   `json:"signature,omitempty"`
	Status                  string    `json:"status"`
	ErrorCode               *string   `json:"error_code,omitempty"`
	ErrorMessage            *string   `json:"error_message,omitempty"`
	RecipientAccountCreated bool      `json:"recipient_account_created"`
	CreatedAt               time.Time `json:"created_at"`
}

// Balances is the cached balance view for a wallet. SOL is in lamports and
// USDC in base units; nil values mean no successful fetch is cached.
type Balances struct {
	SOL       *uint64   `json:"sol_lamports"`
	USDC      *uint64   `json:"usdc_base_units"`
	Loading   bool      `json:"loading"`
	FetchedAt time.Time `json:"fetched_at"`
}

// APIError is a non-2xx response from the gateway. For transfer failures the
// Code carries the stable failure class.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Client is the HTTP client for the gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new gateway client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Connect opens a passkey session for a credential and registers the wallet.
func (c *Client) Connect(ctx context.Context, credentialID string, pollInterval time.Duration) (*Session, error) {
	reqBody := map[string]interface{}{
		"credential_id": credentialID,
	}
	if pollInterval > 0 {
		reqBody["poll_interval"] = pollInterval.String()
	}

	var session Session
	if err := c.doJSON(ctx, "POST", "/api/v1/sessions", reqBody, http.StatusCreated, &session); err != nil {
		return nil, err
	}

	c.logger.Debug("wallet connected", "wallet", session.SmartWallet)
	return &session, nil
}

// Disconnect closes the session for a wallet.
func (c *Client) Disconnect(ctx context.Context, walletAddress string) error {
	path := "/api/v1/sessions/" + url.PathEscape(walletAddress)
	if err := c.doJSON(ctx, "DELETE", path, nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	c.logger.Debug("wallet disconnected", "wallet", walletAddress)
	return nil
}

// Transfer submits a USDC transfer from a connected wallet.
// Amount is a decimal string in whole USDC, e.g. "0.1".
func (c *Client) Transfer(ctx context.Context, walletAddress, recipient, amount string) (*TransferResult, error) {
	reqBody := map[string]string{
		"wallet_address": walletAddress,
		"recipient":      recipient,
		"amount":         amount,
	}

	var result TransferResult
	if err := c.doJSON(ctx, "POST", "/api/v1/transfers", reqBody, http.StatusCreated, &result); err != nil {
		return nil, err
	}

	c.logger.Debug("transfer submitted",
		"wallet", walletAddress,
		"signature", result.Signature,
	)
	return &result, nil
}

// ListTransfers retrieves ledger rows for a wallet, newest first.
func (c *Client) ListTransfers(ctx context.Context, walletAddress string, limit, offset int) ([]*LedgerEntry, error) {
	q := url.Values{}
	q.Set("wallet_address", walletAddress)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}

	var entries []*LedgerEntry
	if err := c.doJSON(ctx, "GET", "/api/v1/transfers?"+q.Encode(), nil, http.StatusOK, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetBalances retrieves the cached balance view for a wallet.
// When refresh is true the gateway fetches fresh values first.
func (c *Client) GetBalances(ctx context.Context, walletAddress string, refresh bool) (*Balances, error) {
	path := "/api/v1/balances/" + url.PathEscape(walletAddress)
	if refresh {
		path += "?refresh=true"
	}

	var balances Balances
	if err := c.doJSON(ctx, "GET", path, nil, http.StatusOK, &balances); err != nil {
		return nil, err
	}
	return &balances, nil
}

// GetWallet retrieves a registered wallet.
func (c *Client) GetWallet(ctx context.Context, walletAddress string) (*Wallet, error) {
	var wallet Wallet
	path := "/api/v1/wallets/" + url.PathEscape(walletAddress)
	if err := c.doJSON(ctx, "GET", path, nil, http.StatusOK, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ListWallets retrieves all registered wallets.
func (c *Client) ListWallets(ctx context.Context) ([]*Wallet, error) {
	var wallets []*Wallet
	if err := c.doJSON(ctx, "GET", "/api/v1/wallets", nil, http.StatusOK, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// DeleteWallet unregisters a wallet entirely.
func (c *Client) DeleteWallet(ctx context.Context, walletAddress string) error {
	path := "/api/v1/wallets/" + url.PathEscape(walletAddress)
	return c.doJSON(ctx, "DELETE", path, nil, http.StatusNoContent, nil)
}

// doJSON performs one request and decodes the response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody interface{}, wantStatus int, out interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse extracts an error from a non-2xx response.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("request failed with status %d", resp.StatusCode),
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       errResp.Code,
		Message:    errResp.Error,
	}
}
