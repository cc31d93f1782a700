package balance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testOwner = solanago.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testMint  = solanago.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

type mockChain struct {
	mu          sync.Mutex
	lamports    uint64
	lamportsErr error
	token       *solana.TokenBalance
	tokenErr    error
	fetches     int
}

func (m *mockChain) LamportBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	return m.lamports, m.lamportsErr
}

func (m *mockChain) TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	return m.token, nil
}

func (m *mockChain) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func (m *mockChain) set(lamports uint64, lamportsErr error, token *solana.TokenBalance, tokenErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lamports = lamports
	m.lamportsErr = lamportsErr
	m.token = token
	m.tokenErr = tokenErr
}

func newTestPoller(chain *mockChain, interval time.Duration) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller(chain, testOwner, testMint, interval, nil, logger)
}

func TestPoller_InitialFetchOnStart(t *testing.T) {
	chain := &mockChain{
		lamports: 5_000_000,
		token:    &solana.TokenBalance{Amount: 1_500_000, Decimals: 6},
	}
	p := newTestPoller(chain, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	snap := p.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.SOL)
	require.NotNil(t, snap.USDC)
	assert.Equal(t, uint64(5_000_000), *snap.SOL)
	assert.Equal(t, uint64(1_500_000), *snap.USDC)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestPoller_LoadingBeforeStart(t *testing.T) {
	p := newTestPoller(&mockChain{}, time.Hour)
	snap := p.Snapshot()
	assert.True(t, snap.Loading)
	assert.Nil(t, snap.SOL)
	assert.Nil(t, snap.USDC)
}

func TestPoller_MissingTokenAccountIsZeroBalance(t *testing.T) {
	chain := &mockChain{
		lamports: 5_000_000,
		tokenErr: solana.ErrNoTokenAccount,
	}
	p := newTestPoller(chain, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	snap := p.Snapshot()
	require.NotNil(t, snap.SOL)
	require.NotNil(t, snap.USDC)
	assert.Equal(t, uint64(0), *snap.USDC)
}

func TestPoller_FailureNilsBothValues(t *testing.T) {
	chain := &mockChain{
		lamports: 5_000_000,
		token:    &solana.TokenBalance{Amount: 1_500_000, Decimals: 6},
	}
	p := newTestPoller(chain, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	require.NotNil(t, p.Snapshot().SOL)

	// One read failing must invalidate both cached values.
	chain.set(5_000_000, nil, nil, errors.New("rpc unavailable"))
	snap := p.Refresh(context.Background())
	assert.Nil(t, snap.SOL)
	assert.Nil(t, snap.USDC)
	assert.False(t, snap.Loading)
}

func TestPoller_RefreshPicksUpNewValues(t *testing.T) {
	chain := &mockChain{
		lamports: 1_000_000,
		token:    &solana.TokenBalance{Amount: 100, Decimals: 6},
	}
	p := newTestPoller(chain, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	chain.set(2_000_000, nil, &solana.TokenBalance{Amount: 200, Decimals: 6}, nil)
	snap := p.Refresh(context.Background())
	require.NotNil(t, snap.SOL)
	assert.Equal(t, uint64(2_000_000), *snap.SOL)
	assert.Equal(t, uint64(200), *snap.USDC)
}

func TestPoller_PollsOnInterval(t *testing.T) {
	chain := &mockChain{
		lamports: 1,
		token:    &solana.TokenBalance{Amount: 1, Decimals: 6},
	}
	p := newTestPoller(chain, 10*time.Millisecond)
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return chain.fetchCount() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPoller_StopHaltsPolling(t *testing.T) {
	chain := &mockChain{
		lamports: 1,
		token:    &solana.TokenBalance{Amount: 1, Decimals: 6},
	}
	p := newTestPoller(chain, 5*time.Millisecond)
	p.Start(context.Background())
	p.Stop()

	count := chain.fetchCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, chain.fetchCount())
}
