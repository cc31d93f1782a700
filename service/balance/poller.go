// Package balance maintains a cached view of a wallet's SOL and USDC
// balances, refreshed on a fixed interval and on demand.
package balance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
)

// ChainReader provides the two balance reads the poller needs.
type ChainReader interface {
	LamportBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error)
}

// Snapshot is the cached balance view for one wallet. SOL is in lamports and
// USDC in base units; both are nil until the first successful fetch, and both
// revert to nil together when any fetch fails so a stale pair is never shown.
type Snapshot struct {
	SOL       *uint64   `json:"sol_lamports"`
	USDC      *uint64   `json:"usdc_base_units"`
	Loading   bool      `json:"loading"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Poller refreshes one wallet's balances on an interval.
// A missing USDC token account is reported as a zero balance, not an error.
type Poller struct {
	chain    ChainReader
	owner    solanago.PublicKey
	mint     solanago.PublicKey
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller for a single wallet. Call Start to begin
// polling; the first fetch happens immediately, not after one interval.
func NewPoller(chain ChainReader, owner, mint solanago.PublicKey, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		chain:    chain,
		owner:    owner,
		mint:     mint,
		interval: interval,
		metrics:  m,
		logger:   logger,
		snapshot: Snapshot{Loading: true},
		done:     make(chan struct{}),
	}
}

// Start begins the polling loop. It returns after the initial fetch has
// completed, so a snapshot is available as soon as Start returns.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.refresh(ctx, "initial")

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.refresh(ctx, "interval")
			}
		}
	}()
}

// Stop cancels the polling loop and waits for it to exit.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Refresh fetches both balances immediately, outside the interval schedule.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	p.refresh(ctx, "manual")
	return p.Snapshot()
}

// Snapshot returns the current cached view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

func (p *Poller) refresh(ctx context.Context, trigger string) {
	start := time.Now()

	lamports, lamportsErr := p.chain.LamportBalance(ctx, p.owner)

	var usdc uint64
	token, tokenErr := p.chain.TokenBalance(ctx, p.owner, p.mint)
	if tokenErr == solana.ErrNoTokenAccount {
		// No token account means a zero balance, not a failure.
		usdc = 0
		tokenErr = nil
	} else if tokenErr == nil {
		usdc = token.Amount
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot.Loading = false
	p.snapshot.FetchedAt = time.Now()

	if lamportsErr != nil || tokenErr != nil {
		// Either read failing invalidates the whole pair.
		p.snapshot.SOL = nil
		p.snapshot.USDC = nil
		p.record(trigger, "error", start)
		p.logger.DebugContext(ctx, "balance refresh failed",
			"wallet", p.owner.String(),
			"trigger", trigger,
			"lamports_error", lamportsErr,
			"token_error", tokenErr,
		)
		return
	}

	p.snapshot.SOL = &lamports
	p.snapshot.USDC = &usdc
	p.record(trigger, "success", start)
}

func (p *Poller) record(trigger, status string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordBalanceRefresh(trigger, status, time.Since(start).Seconds())
	}
}
