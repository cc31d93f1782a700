package nats

import (
	"time"

	"github.com/jasong-03/lazorkit-gateway/service/db"
)

// TransferEvent represents a transfer outcome published to NATS.
// It is published to the subject "transfers.{wallet_address}" in JetStream.
type TransferEvent struct {
	WalletAddress           string  `json:"wallet_address"`
	Recipient               string  `json:"recipient"`
	AmountBaseUnits         int64   `json:"amount_base_units"`
	Signature               *string `json:"signature,omitempty"`
	Status                  string  `json:"status"`
	ErrorCode               *string `json:"error_code,omitempty"`
	ErrorMessage            *string `json:"error_message,omitempty"`
	RecipientAccountCreated bool    `json:"recipient_account_created"`

	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// BalanceEvent represents a refreshed balance snapshot published to NATS.
// It is published to the subject "balances.{wallet_address}" in JetStream.
// SOL is in lamports and USDC in base units; both are nil when the refresh
// failed, so subscribers never mix values from different fetches.
type BalanceEvent struct {
	WalletAddress string  `json:"wallet_address"`
	SOLLamports   *uint64 `json:"sol_lamports"`
	USDCBaseUnits *uint64 `json:"usdc_base_units"`

	FetchedAt   time.Time `json:"fetched_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromDBTransfer converts a ledger row to a TransferEvent for publishing.
func FromDBTransfer(tr *db.Transfer) *TransferEvent {
	return &TransferEvent{
		WalletAddress:           tr.WalletAddress,
		Recipient:               tr.Recipient,
		AmountBaseUnits:         tr.AmountBaseUnits,
		Signature:               tr.Signature,
		Status:                  tr.Status,
		ErrorCode:               tr.ErrorCode,
		ErrorMessage:            tr.ErrorMessage,
		RecipientAccountCreated: tr.RecipientAccountCreated,
		Timestamp:               tr.CreatedAt,
		PublishedAt:             time.Now().UTC(),
	}
}
