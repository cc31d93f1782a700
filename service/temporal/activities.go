package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
)

// RefreshBalancesInput contains the input parameters for refreshing a
// wallet's balances.
type RefreshBalancesInput struct {
	WalletAddress string `json:"wallet_address"`
}

// RefreshBalancesResult contains the result of a balance refresh.
type RefreshBalancesResult struct {
	WalletAddress string    `json:"wallet_address"`
	SOLLamports   *uint64   `json:"sol_lamports"`
	USDCBaseUnits *uint64   `json:"usdc_base_units"`
	RefreshTime   time.Time `json:"refresh_time"`
	Error         *string   `json:"error,omitempty"`
}

// FetchBalancesInput contains parameters for the FetchBalances activity.
type FetchBalancesInput struct {
	WalletAddress string `json:"wallet_address"`
}

// FetchBalancesResult contains the result of the FetchBalances activity.
// Both values are set together or not at all.
type FetchBalancesResult struct {
	SOLLamports   uint64    `json:"sol_lamports"`
	USDCBaseUnits uint64    `json:"usdc_base_units"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// PublishBalanceInput contains parameters for the PublishBalance activity.
// WorkflowStartedAt carries the workflow's start time so the activity can
// record the end-to-end refresh duration; metrics cannot be recorded from
// workflow code because it replays.
type PublishBalanceInput struct {
	WalletAddress     string    `json:"wallet_address"`
	SOLLamports       *uint64   `json:"sol_lamports"`
	USDCBaseUnits     *uint64   `json:"usdc_base_units"`
	FetchedAt         time.Time `json:"fetched_at"`
	WorkflowStartedAt time.Time `json:"workflow_started_at,omitempty"`
}

// RecordRefreshInput contains parameters for the RecordRefresh activity.
type RecordRefreshInput struct {
	WalletAddress string    `json:"wallet_address"`
	RefreshedAt   time.Time `json:"refreshed_at"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	TouchWalletRefresh(ctx context.Context, address string, at time.Time) error
}

// ChainInterface defines the Solana reads needed by activities.
type ChainInterface interface {
	LamportBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishBalance(ctx context.Context, event *natspkg.BalanceEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store     StoreInterface
	chain     ChainInterface
	publisher PublisherInterface
	mint      solanago.PublicKey
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	chain ChainInterface,
	publisher PublisherInterface,
	mint solanago.PublicKey,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		chain:     chain,
		publisher: publisher,
		mint:      mint,
		metrics:   m,
		logger:    logger,
	}
}

// FetchBalances reads the wallet's SOL and USDC balances from the chain.
// A missing USDC token account yields a zero balance rather than an error.
func (a *Activities) FetchBalances(ctx context.Context, input FetchBalancesInput) (*FetchBalancesResult, error) {
	owner, err := solanago.PublicKeyFromBase58(input.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", input.WalletAddress, err)
	}

	lamports, err := a.chain.LamportBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lamport balance: %w", err)
	}

	var usdc uint64
	token, err := a.chain.TokenBalance(ctx, owner, a.mint)
	if err != nil {
		if !errors.Is(err, solana.ErrNoTokenAccount) {
			return nil, fmt.Errorf("failed to fetch token balance: %w", err)
		}
	} else {
		usdc = token.Amount
	}

	a.logger.DebugContext(ctx, "fetched balances",
		"wallet", input.WalletAddress,
		"sol_lamports", lamports,
		"usdc_base_units", usdc,
	)

	return &FetchBalancesResult{
		SOLLamports:   lamports,
		USDCBaseUnits: usdc,
		FetchedAt:     time.Now().UTC(),
	}, nil
}

// PublishBalance publishes a balance snapshot to NATS.
func (a *Activities) PublishBalance(ctx context.Context, input PublishBalanceInput) error {
	event := &natspkg.BalanceEvent{
		WalletAddress: input.WalletAddress,
		SOLLamports:   input.SOLLamports,
		USDCBaseUnits: input.USDCBaseUnits,
		FetchedAt:     input.FetchedAt,
		PublishedAt:   time.Now().UTC(),
	}

	start := time.Now()
	if err := a.publisher.PublishBalance(ctx, event); err != nil {
		if a.metrics != nil {
			a.metrics.RecordNATSPublish("balances", "error", time.Since(start).Seconds())
		}
		a.recordWorkflowOutcome(input, "publish_failed")
		return fmt.Errorf("failed to publish balance event: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordNATSPublish("balances", "success", time.Since(start).Seconds())
	}
	status := "success"
	if input.SOLLamports == nil {
		status = "fetch_failed"
	}
	a.recordWorkflowOutcome(input, status)
	return nil
}

// recordWorkflowOutcome records the refresh workflow's duration and terminal
// status, measured from the workflow start time the caller passed along.
func (a *Activities) recordWorkflowOutcome(input PublishBalanceInput, status string) {
	if a.metrics == nil || input.WorkflowStartedAt.IsZero() {
		return
	}
	a.metrics.RecordWorkflowDuration(input.WalletAddress, status, time.Since(input.WorkflowStartedAt).Seconds())
}

// RecordRefresh stamps the wallet row with the refresh time.
func (a *Activities) RecordRefresh(ctx context.Context, input RecordRefreshInput) error {
	if err := a.store.TouchWalletRefresh(ctx, input.WalletAddress, input.RefreshedAt); err != nil {
		return fmt.Errorf("failed to record wallet refresh: %w", err)
	}
	return nil
}
