package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for wallet balance refreshes.
// Each registered wallet gets its own schedule that triggers the
// RefreshBalancesWorkflow.
type Scheduler interface {
	// CreateWalletSchedule creates a new schedule for refreshing a wallet's
	// balances on the given interval.
	CreateWalletSchedule(ctx context.Context, address string, interval time.Duration) error

	// UpsertWalletSchedule creates the schedule or updates its interval if it
	// already exists.
	UpsertWalletSchedule(ctx context.Context, address string, interval time.Duration) error

	// DeleteWalletSchedule deletes the schedule for a wallet.
	DeleteWalletSchedule(ctx context.Context, address string) error
}

// scheduleID returns the Temporal schedule ID for a wallet address.
func scheduleID(address string) string {
	return "refresh-balances-" + address
}
