package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const activityTestWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

var activityTestMint = solanago.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

// Mock chain reader
type MockChain struct {
	mock.Mock
}

func (m *MockChain) LamportBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChain) TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error) {
	args := m.Called(ctx, owner, mint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*solana.TokenBalance), args.Error(1)
}

// Mock store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) TouchWalletRefresh(ctx context.Context, address string, at time.Time) error {
	args := m.Called(ctx, address, at)
	return args.Error(0)
}

func newTestActivities(chain ChainInterface, store StoreInterface, publisher PublisherInterface) *Activities {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewActivities(store, chain, publisher, activityTestMint, nil, logger)
}

func TestFetchBalances(t *testing.T) {
	chain := &MockChain{}
	chain.On("LamportBalance", mock.Anything, mock.Anything).Return(uint64(5_000_000), nil)
	chain.On("TokenBalance", mock.Anything, mock.Anything, mock.Anything).Return(&solana.TokenBalance{Amount: 1_500_000, Decimals: 6}, nil)

	activities := newTestActivities(chain, &MockStore{}, natspkg.NewMockPublisher())

	result, err := activities.FetchBalances(context.Background(), FetchBalancesInput{WalletAddress: activityTestWallet})
	require.NoError(t, err)

	assert.Equal(t, uint64(5_000_000), result.SOLLamports)
	assert.Equal(t, uint64(1_500_000), result.USDCBaseUnits)
	assert.False(t, result.FetchedAt.IsZero())
	chain.AssertExpectations(t)
}

func TestFetchBalances_NoTokenAccountIsZero(t *testing.T) {
	chain := &MockChain{}
	chain.On("LamportBalance", mock.Anything, mock.Anything).Return(uint64(5_000_000), nil)
	chain.On("TokenBalance", mock.Anything, mock.Anything, mock.Anything).Return(nil, solana.ErrNoTokenAccount)

	activities := newTestActivities(chain, &MockStore{}, natspkg.NewMockPublisher())

	result, err := activities.FetchBalances(context.Background(), FetchBalancesInput{WalletAddress: activityTestWallet})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.USDCBaseUnits)
}

func TestFetchBalances_InvalidAddress(t *testing.T) {
	activities := newTestActivities(&MockChain{}, &MockStore{}, natspkg.NewMockPublisher())

	_, err := activities.FetchBalances(context.Background(), FetchBalancesInput{WalletAddress: "bogus"})
	require.Error(t, err)
}

func TestFetchBalances_RPCError(t *testing.T) {
	chain := &MockChain{}
	chain.On("LamportBalance", mock.Anything, mock.Anything).Return(uint64(0), errors.New("rpc unavailable"))

	activities := newTestActivities(chain, &MockStore{}, natspkg.NewMockPublisher())

	_, err := activities.FetchBalances(context.Background(), FetchBalancesInput{WalletAddress: activityTestWallet})
	require.Error(t, err)
}

func TestPublishBalance(t *testing.T) {
	publisher := natspkg.NewMockPublisher()
	activities := newTestActivities(&MockChain{}, &MockStore{}, publisher)

	sol := uint64(5_000_000)
	usdc := uint64(1_500_000)
	err := activities.PublishBalance(context.Background(), PublishBalanceInput{
		WalletAddress: activityTestWallet,
		SOLLamports:   &sol,
		USDCBaseUnits: &usdc,
		FetchedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	events := publisher.BalanceEvents()
	require.Len(t, events, 1)
	assert.Equal(t, activityTestWallet, events[0].WalletAddress)
	require.NotNil(t, events[0].SOLLamports)
	assert.Equal(t, sol, *events[0].SOLLamports)
}

func TestPublishBalance_PublisherError(t *testing.T) {
	publisher := natspkg.NewMockPublisher()
	publisher.SetPublishError(errors.New("nats unavailable"))
	activities := newTestActivities(&MockChain{}, &MockStore{}, publisher)

	err := activities.PublishBalance(context.Background(), PublishBalanceInput{
		WalletAddress: activityTestWallet,
		FetchedAt:     time.Now().UTC(),
	})
	require.Error(t, err)
}

func TestPublishBalance_RecordsWorkflowDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	publisher := natspkg.NewMockPublisher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	activities := NewActivities(&MockStore{}, &MockChain{}, publisher, activityTestMint, m, logger)

	sol := uint64(5_000_000)
	usdc := uint64(1_500_000)
	err := activities.PublishBalance(context.Background(), PublishBalanceInput{
		WalletAddress:     activityTestWallet,
		SOLLamports:       &sol,
		USDCBaseUnits:     &usdc,
		FetchedAt:         time.Now().UTC(),
		WorkflowStartedAt: time.Now().UTC().Add(-2 * time.Second),
	})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "refresh_workflow_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPublishBalance_FetchFailureStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	publisher := natspkg.NewMockPublisher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	activities := NewActivities(&MockStore{}, &MockChain{}, publisher, activityTestMint, m, logger)

	// Nil balances mean the fetch failed; the event still publishes and the
	// workflow outcome is recorded under the fetch_failed status.
	err := activities.PublishBalance(context.Background(), PublishBalanceInput{
		WalletAddress:     activityTestWallet,
		FetchedAt:         time.Now().UTC(),
		WorkflowStartedAt: time.Now().UTC().Add(-time.Second),
	})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, fam := range families {
		if fam.GetName() != "refresh_workflow_executions_total" {
			continue
		}
		require.Len(t, fam.GetMetric(), 1)
		for _, label := range fam.GetMetric()[0].GetLabel() {
			if label.GetName() == "status" {
				assert.Equal(t, "fetch_failed", label.GetValue())
				found = true
			}
		}
	}
	assert.True(t, found, "expected a refresh_workflow_executions_total sample with a status label")
}

func TestRecordRefresh(t *testing.T) {
	store := &MockStore{}
	at := time.Now().UTC()
	store.On("TouchWalletRefresh", mock.Anything, activityTestWallet, at).Return(nil)

	activities := newTestActivities(&MockChain{}, store, natspkg.NewMockPublisher())

	require.NoError(t, activities.RecordRefresh(context.Background(), RecordRefreshInput{
		WalletAddress: activityTestWallet,
		RefreshedAt:   at,
	}))
	store.AssertExpectations(t)
}
