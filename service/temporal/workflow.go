package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// RefreshBalancesWorkflow is the Temporal workflow that refreshes a wallet's
// SOL and USDC balances. It is triggered by a per-wallet schedule at the
// wallet's configured interval.
//
// The workflow performs these steps:
// 1. Fetch both balances from the chain (FetchBalances activity)
// 2. Publish the snapshot to NATS (PublishBalance activity)
// 3. Stamp the wallet row with the refresh time (RecordRefresh activity)
//
// A failed fetch still publishes an event, with both values nil, so
// subscribers see the cache invalidation rather than stale numbers.
func RefreshBalancesWorkflow(ctx workflow.Context, input RefreshBalancesInput) (*RefreshBalancesResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("RefreshBalancesWorkflow started", "wallet", input.WalletAddress)

	result := &RefreshBalancesResult{
		WalletAddress: input.WalletAddress,
		RefreshTime:   workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: fetch balances from the chain.
	var fetchResult *FetchBalancesResult
	fetchErr := workflow.ExecuteActivity(ctx, a.FetchBalances, FetchBalancesInput{
		WalletAddress: input.WalletAddress,
	}).Get(ctx, &fetchResult)

	publishInput := PublishBalanceInput{
		WalletAddress:     input.WalletAddress,
		FetchedAt:         workflow.Now(ctx),
		WorkflowStartedAt: result.RefreshTime,
	}
	if fetchErr != nil {
		logger.Warn("failed to fetch balances", "wallet", input.WalletAddress, "error", fetchErr)
		errMsg := fmt.Sprintf("failed to fetch balances: %v", fetchErr)
		result.Error = &errMsg
	} else {
		publishInput.SOLLamports = &fetchResult.SOLLamports
		publishInput.USDCBaseUnits = &fetchResult.USDCBaseUnits
		publishInput.FetchedAt = fetchResult.FetchedAt
		result.SOLLamports = &fetchResult.SOLLamports
		result.USDCBaseUnits = &fetchResult.USDCBaseUnits
	}

	// Step 2: publish the snapshot (nil values on fetch failure).
	if err := workflow.ExecuteActivity(ctx, a.PublishBalance, publishInput).Get(ctx, nil); err != nil {
		logger.Error("failed to publish balance event", "wallet", input.WalletAddress, "error", err)
		errMsg := fmt.Sprintf("failed to publish balance event: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to publish balance event: %w", err)
	}

	// Step 3: stamp the wallet row, only on a successful fetch.
	if fetchErr == nil {
		if err := workflow.ExecuteActivity(ctx, a.RecordRefresh, RecordRefreshInput{
			WalletAddress: input.WalletAddress,
			RefreshedAt:   publishInput.FetchedAt,
		}).Get(ctx, nil); err != nil {
			logger.Warn("failed to record refresh time", "wallet", input.WalletAddress, "error", err)
		}
	}

	logger.Info("RefreshBalancesWorkflow completed",
		"wallet", input.WalletAddress,
		"fetch_failed", fetchErr != nil,
	)

	return result, nil
}
