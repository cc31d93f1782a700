package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	balance      uint64
	balanceErr   error
	tokenAmount  *rpc.UiTokenAmount
	tokenErr     error
	accountInfo  *rpc.GetAccountInfoResult
	accountErr   error
}

func (m *mockRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return &rpc.GetBalanceResult{Value: m.balance}, nil
}

func (m *mockRPCClient) GetTokenAccountBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetTokenAccountBalanceResult, error) {
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	return &rpc.GetTokenAccountBalanceResult{Value: m.tokenAmount}, nil
}

func (m *mockRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
) (*rpc.GetAccountInfoResult, error) {
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	return m.accountInfo, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "devnet", nil, logger)
}

// rateLimitedRPCClient fails the first `failures` calls with a 429 error,
// then delegates to the embedded mock. It counts every call it sees.
type rateLimitedRPCClient struct {
	mockRPCClient
	failures int
	calls    int
}

func (f *rateLimitedRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("too many requests: 429")
	}
	return f.mockRPCClient.GetBalance(ctx, account, commitment)
}

func newRateLimitedClient(mock *rateLimitedRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(mock, "devnet", nil, logger)
	client.retryBackoff = time.Millisecond
	return client
}

var (
	testOwner = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testMint  = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

func TestLamportBalance(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{balance: 5_000_000}
	client := newTestClient(mock)

	balance, err := client.LamportBalance(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), balance)
}

func TestLamportBalance_RPCError(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{balanceErr: assert.AnError}
	client := newTestClient(mock)

	_, err := client.LamportBalance(ctx, testOwner)
	require.Error(t, err)
}

func TestLamportBalance_RetriesRateLimit(t *testing.T) {
	ctx := context.Background()

	mock := &rateLimitedRPCClient{
		mockRPCClient: mockRPCClient{balance: 5_000_000},
		failures:      2,
	}
	client := newRateLimitedClient(mock)

	balance, err := client.LamportBalance(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), balance)
	assert.Equal(t, 3, mock.calls)
}

func TestLamportBalance_RateLimitExhausted(t *testing.T) {
	ctx := context.Background()

	mock := &rateLimitedRPCClient{failures: 10}
	client := newRateLimitedClient(mock)

	_, err := client.LamportBalance(ctx, testOwner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 3, mock.calls)
}

func TestLamportBalance_NoRetryOnOtherErrors(t *testing.T) {
	ctx := context.Background()

	mock := &rateLimitedRPCClient{
		mockRPCClient: mockRPCClient{balanceErr: errors.New("connection refused")},
	}
	client := newRateLimitedClient(mock)

	_, err := client.LamportBalance(ctx, testOwner)
	require.Error(t, err)
	assert.Equal(t, 1, mock.calls)
}

func TestTokenBalance(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		tokenAmount: &rpc.UiTokenAmount{
			Amount:   "2500000",
			Decimals: 6,
		},
	}
	client := newTestClient(mock)

	balance, err := client.TokenBalance(ctx, testOwner, testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000), balance.Amount)
	assert.Equal(t, uint8(6), balance.Decimals)
}

func TestTokenBalance_AccountNotFound(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		tokenErr: errors.New("could not find account"),
	}
	client := newTestClient(mock)

	_, err := client.TokenBalance(ctx, testOwner, testMint)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTokenAccount)
}

func TestTokenBalance_NotFoundSentinel(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{tokenErr: rpc.ErrNotFound}
	client := newTestClient(mock)

	_, err := client.TokenBalance(ctx, testOwner, testMint)
	assert.ErrorIs(t, err, ErrNoTokenAccount)
}

func TestTokenBalance_BadAmountString(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		tokenAmount: &rpc.UiTokenAmount{Amount: "not-a-number", Decimals: 6},
	}
	client := newTestClient(mock)

	_, err := client.TokenBalance(ctx, testOwner, testMint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse token amount")
}

func TestAccountExists(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{
		accountInfo: &rpc.GetAccountInfoResult{Value: &rpc.Account{}},
	}
	client := newTestClient(mock)

	exists, err := client.AccountExists(ctx, testOwner)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAccountExists_NotFound(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{accountErr: rpc.ErrNotFound}
	client := newTestClient(mock)

	exists, err := client.AccountExists(ctx, testOwner)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAccountExists_RPCError(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{accountErr: errors.New("connection refused")}
	client := newTestClient(mock)

	_, err := client.AccountExists(ctx, testOwner)
	require.Error(t, err)
}
