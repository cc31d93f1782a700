package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode"

	"github.com/jasong-03/lazorkit-gateway/service/balance"
	"github.com/jasong-03/lazorkit-gateway/service/db"
	"github.com/jasong-03/lazorkit-gateway/service/lazorkit"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/jasong-03/lazorkit-gateway/service/temporal"
	"github.com/jasong-03/lazorkit-gateway/service/transfer"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100
	maxPollInterval    = 24 * time.Hour
)

// Valid Solana address characters: base58 (no 0, O, I, l).
var validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// TransferEngine runs the transfer submission flow.
type TransferEngine interface {
	Submit(ctx context.Context, session *lazorkit.Session, req transfer.Request) (*transfer.Result, error)
	Status(walletAddress string) transfer.Status
}

// WalletConnector manages passkey sessions against the Lazorkit portal.
type WalletConnector interface {
	Connect(ctx context.Context, credentialID string) (*lazorkit.Session, error)
	Disconnect(ctx context.Context, session *lazorkit.Session) error
}

// BalanceTracker exposes the cached per-wallet balance views.
type BalanceTracker interface {
	Track(ctx context.Context, address string, interval time.Duration) error
	Untrack(address string)
	Snapshot(address string) (balance.Snapshot, error)
	Refresh(ctx context.Context, address string) (balance.Snapshot, error)
}

type connectRequest struct {
	CredentialID string `json:"credential_id"`
	PollInterval string `json:"poll_interval,omitempty"`
}

type sessionResponse struct {
	SmartWallet  string    `json:"smart_wallet"`
	CredentialID string    `json:"credential_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

type transferRequest struct {
	WalletAddress string `json:"wallet_address"`
	Recipient     string `json:"recipient"`
	Amount        string `json:"amount"`
}

type transferResponse struct {
	Signature               string `json:"signature"`
	AmountBaseUnits         uint64 `json:"amount_base_units"`
	RecipientAccountCreated bool   `json:"recipient_account_created"`
}

type transferErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type walletResponse struct {
	Address       string     `json:"address"`
	CredentialID  string     `json:"credential_id"`
	PollInterval  string     `json:"poll_interval"`
	Status        string     `json:"status"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ledgerEntryResponse struct {
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

// handleConnect returns a handler that opens a passkey session and registers
// the wallet for balance tracking.
// POST /api/v1/sessions
func handleConnect(connector WalletConnector, sessions *SessionStore, store *db.Store, scheduler temporal.Scheduler, balances BalanceTracker, defaultInterval, minInterval time.Duration, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.CredentialID == "" {
			writeError(w, "credential_id is required", http.StatusBadRequest)
			return
		}

		interval := defaultInterval
		if req.PollInterval != "" {
			parsed, err := time.ParseDuration(req.PollInterval)
			if err != nil {
				writeError(w, "invalid poll_interval", http.StatusBadRequest)
				return
			}
			if err := validatePollInterval(parsed, minInterval); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			interval = parsed
		}

		session, err := connector.Connect(r.Context(), req.CredentialID)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to connect session",
				"credential_id", req.CredentialID,
				"error", err,
			)
			writeError(w, "failed to connect wallet", http.StatusBadGateway)
			return
		}

		// Register the wallet; reconnecting an existing wallet just
		// reactivates it.
		_, err = store.CreateWallet(r.Context(), db.CreateWalletParams{
			Address:      session.SmartWallet,
			CredentialID: session.CredentialID,
			PollInterval: interval,
			Status:       "active",
		})
		if err != nil {
			if statusErr := store.UpdateWalletStatus(r.Context(), session.SmartWallet, "active"); statusErr != nil {
				logger.ErrorContext(r.Context(), "failed to register wallet",
					"wallet", session.SmartWallet,
					"error", err,
				)
				writeError(w, "failed to register wallet", http.StatusInternalServerError)
				return
			}
		}

		if err := scheduler.UpsertWalletSchedule(r.Context(), session.SmartWallet, interval); err != nil {
			logger.ErrorContext(r.Context(), "failed to create refresh schedule",
				"wallet", session.SmartWallet,
				"error", err,
			)
			writeError(w, "failed to schedule balance refreshes", http.StatusInternalServerError)
			return
		}

		if err := balances.Track(context.WithoutCancel(r.Context()), session.SmartWallet, interval); err != nil {
			logger.WarnContext(r.Context(), "failed to start balance tracking",
				"wallet", session.SmartWallet,
				"error", err,
			)
		}

		sessions.Put(session)

		logger.InfoContext(r.Context(), "wallet connected",
			"wallet", session.SmartWallet,
			"poll_interval", interval,
		)

		writeJSON(w, sessionResponse{
			SmartWallet:  session.SmartWallet,
			CredentialID: session.CredentialID,
			ConnectedAt:  session.ConnectedAt,
		}, http.StatusCreated)
	})
}

// handleDisconnect returns a handler that closes a wallet's session.
// DELETE /api/v1/sessions/{address}
func handleDisconnect(connector WalletConnector, sessions *SessionStore, store *db.Store, balances BalanceTracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		session := sessions.Delete(address)
		if session == nil {
			writeError(w, "no active session for wallet", http.StatusNotFound)
			return
		}

		balances.Untrack(address)

		if err := connector.Disconnect(r.Context(), session); err != nil {
			// The local session is already gone; log and continue.
			logger.WarnContext(r.Context(), "failed to close portal session",
				"wallet", address,
				"error", err,
			)
		}

		if err := store.UpdateWalletStatus(r.Context(), address, "disconnected"); err != nil && !errors.Is(err, db.ErrNotFound) {
			logger.ErrorContext(r.Context(), "failed to mark wallet disconnected",
				"wallet", address,
				"error", err,
			)
		}

		logger.InfoContext(r.Context(), "wallet disconnected", "wallet", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleSubmitTransfer returns a handler that runs the transfer flow.
// POST /api/v1/transfers
//
// Every attempt that passes validation is recorded in the ledger and
// published to NATS, successful or not.
func handleSubmitTransfer(engine TransferEngine, sessions *SessionStore, store *db.Store, publisher natspkg.Publisher, balances BalanceTracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.WalletAddress); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		session := sessions.Get(req.WalletAddress)

		result, err := engine.Submit(r.Context(), session, transfer.Request{
			Recipient: req.Recipient,
			Amount:    req.Amount,
		})
		if err != nil {
			var terr *transfer.Error
			if !errors.As(err, &terr) {
				logger.ErrorContext(r.Context(), "transfer failed with unclassified error", "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}

			recordTransferOutcome(r.Context(), store, publisher, logger, req, nil, terr)
			writeJSON(w, transferErrorResponse{
				Error: terr.Message,
				Code:  string(terr.Code),
			}, transferErrorStatus(terr.Code))
			return
		}

		recordTransferOutcome(r.Context(), store, publisher, logger, req, result, nil)

		// Kick a refresh so the sender sees the new balance promptly.
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 15*time.Second)
			defer cancel()
			if _, err := balances.Refresh(ctx, req.WalletAddress); err != nil && !errors.Is(err, balance.ErrNotTracked) {
				logger.Debug("post-transfer balance refresh failed", "wallet", req.WalletAddress, "error", err)
			}
		}()

		writeJSON(w, transferResponse{
			Signature:               result.Signature,
			AmountBaseUnits:         result.AmountBaseUnits,
			RecipientAccountCreated: result.RecipientAccountCreated,
		}, http.StatusCreated)
	})
}

// recordTransferOutcome writes the ledger row and publishes the event.
// Recording failures never change the client-facing outcome.
func recordTransferOutcome(ctx context.Context, store *db.Store, publisher natspkg.Publisher, logger *slog.Logger, req transferRequest, result *transfer.Result, terr *transfer.Error) {
	params := db.CreateTransferParams{
		WalletAddress: req.WalletAddress,
		Recipient:     req.Recipient,
	}
	if result != nil {
		params.AmountBaseUnits = int64(result.AmountBaseUnits)
		params.Signature = &result.Signature
		params.Status = "success"
		params.RecipientAccountCreated = result.RecipientAccountCreated
	} else {
		code := string(terr.Code)
		msg := terr.Message
		params.Status = "failed"
		params.ErrorCode = &code
		params.ErrorMessage = &msg
	}

	row, err := store.CreateTransfer(ctx, params)
	if err != nil {
		logger.ErrorContext(ctx, "failed to record transfer in ledger",
			"wallet", req.WalletAddress,
			"error", err,
		)
		return
	}

	if publisher != nil {
		if err := publisher.PublishTransfer(ctx, natspkg.FromDBTransfer(row)); err != nil {
			logger.WarnContext(ctx, "failed to publish transfer event",
				"wallet", req.WalletAddress,
				"error", err,
			)
		}
	}
}

// transferErrorStatus maps a transfer failure code to an HTTP status.
func transferErrorStatus(code transfer.Code) int {
	switch code {
	case transfer.CodeNoSession:
		return http.StatusUnauthorized
	case transfer.CodeInvalidRecipient, transfer.CodeInvalidAmount:
		return http.StatusBadRequest
	case transfer.CodeInFlight:
		return http.StatusConflict
	case transfer.CodeTimeout:
		return http.StatusGatewayTimeout
	case transfer.CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleListTransfers returns a handler for the transfer ledger.
// GET /api/v1/transfers?wallet_address={address}&limit={n}&offset={n}
func handleListTransfers(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("wallet_address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, err := parseQueryInt(r, "limit", 50)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseQueryInt(r, "offset", 0)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		transfers, err := store.ListTransfers(r.Context(), db.ListTransfersParams{
			WalletAddress: address,
			Limit:         int32(limit),
			Offset:        int32(offset),
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list transfers", "wallet", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]ledgerEntryResponse, len(transfers))
		for i, tr := range transfers {
			resp[i] = ledgerEntryResponse{
				ID:                      tr.ID,
				WalletAddress:           tr.WalletAddress,
				Recipient:               tr.Recipient,
				AmountBaseUnits:         tr.AmountBaseUnits,
				Signature:               tr.Signature,
				Status:                  tr.Status,
				ErrorCode:               tr.ErrorCode,
				ErrorMessage:            tr.ErrorMessage,
				RecipientAccountCreated: tr.RecipientAccountCreated,
				CreatedAt:               tr.CreatedAt,
			}
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleGetBalances returns a handler for the cached balance view.
// GET /api/v1/balances/{address}?refresh=true
func handleGetBalances(balances BalanceTracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var snap balance.Snapshot
		var err error
		if r.URL.Query().Get("refresh") == "true" {
			snap, err = balances.Refresh(r.Context(), address)
		} else {
			snap, err = balances.Snapshot(address)
		}
		if err != nil {
			if errors.Is(err, balance.ErrNotTracked) {
				writeError(w, "wallet not tracked", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to read balances", "wallet", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, snap, http.StatusOK)
	})
}

// handleGetWallet returns a handler that retrieves a registered wallet.
// GET /api/v1/wallets/{address}
func handleGetWallet(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallet, err := store.GetWallet(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get wallet", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, walletToResponse(wallet), http.StatusOK)
	})
}

// handleListWallets returns a handler that lists registered wallets.
// GET /api/v1/wallets
func handleListWallets(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallets, err := store.ListWallets(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list wallets", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]walletResponse, len(wallets))
		for i, wallet := range wallets {
			resp[i] = walletToResponse(wallet)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleDeleteWallet returns a handler that unregisters a wallet entirely:
// ledger rows, refresh schedule, balance tracking, and any open session.
// DELETE /api/v1/wallets/{address}
func handleDeleteWallet(store *db.Store, scheduler temporal.Scheduler, sessions *SessionStore, balances BalanceTracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeleteWallet(r.Context(), address); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "wallet not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to delete wallet", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if err := scheduler.DeleteWalletSchedule(r.Context(), address); err != nil {
			logger.WarnContext(r.Context(), "failed to delete refresh schedule",
				"address", address,
				"error", err,
			)
		}

		sessions.Delete(address)
		balances.Untrack(address)

		logger.InfoContext(r.Context(), "wallet unregistered", "address", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

func walletToResponse(wallet *db.Wallet) walletResponse {
	return walletResponse{
		Address:       wallet.Address,
		CredentialID:  wallet.CredentialID,
		PollInterval:  wallet.PollInterval.String(),
		Status:        wallet.Status,
		LastRefreshAt: wallet.LastRefreshAt,
		CreatedAt:     wallet.CreatedAt,
	}
}

// decodeJSON decodes a JSON request body with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large: maximum size is %d bytes", maxRequestBodySize)
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for format and size.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in address: control characters not allowed")
		}
	}
	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: must contain only valid base58 characters")
	}
	return nil
}

// validatePollInterval validates a poll interval against the configured
// minimum and the hard upper bound.
func validatePollInterval(interval, min time.Duration) error {
	if interval < min {
		return fmt.Errorf("poll_interval must be at least %v", min)
	}
	if interval > maxPollInterval {
		return fmt.Errorf("poll_interval cannot exceed %v", maxPollInterval)
	}
	return nil
}

func parseQueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}
