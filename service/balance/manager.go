package balance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
)

// ErrNotTracked is returned when no poller exists for a wallet.
var ErrNotTracked = errors.New("wallet not tracked")

// Manager owns one Poller per tracked wallet.
type Manager struct {
	chain           ChainReader
	mint            solanago.PublicKey
	defaultInterval time.Duration
	metrics         *metrics.Metrics
	logger          *slog.Logger

	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewManager creates a poller manager.
func NewManager(chain ChainReader, mint solanago.PublicKey, defaultInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		chain:           chain,
		mint:            mint,
		defaultInterval: defaultInterval,
		metrics:         m,
		logger:          logger,
		pollers:         make(map[string]*Poller),
	}
}

// Track starts polling a wallet. Tracking an already-tracked wallet is a
// no-op. A non-positive interval falls back to the manager default.
func (m *Manager) Track(ctx context.Context, address string, interval time.Duration) error {
	owner, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = m.defaultInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pollers[address]; ok {
		return nil
	}

	p := NewPoller(m.chain, owner, m.mint, interval, m.metrics, m.logger)
	p.Start(ctx)
	m.pollers[address] = p

	m.logger.InfoContext(ctx, "tracking wallet balances",
		"wallet", address,
		"interval", interval,
	)
	return nil
}

// Untrack stops and removes the poller for a wallet.
func (m *Manager) Untrack(address string) {
	m.mu.Lock()
	p, ok := m.pollers[address]
	delete(m.pollers, address)
	m.mu.Unlock()

	if ok {
		p.Stop()
		m.logger.Info("stopped tracking wallet balances", "wallet", address)
	}
}

// Snapshot returns the cached view for a wallet.
func (m *Manager) Snapshot(address string) (Snapshot, error) {
	m.mu.Lock()
	p, ok := m.pollers[address]
	m.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrNotTracked
	}
	return p.Snapshot(), nil
}

// Refresh fetches fresh balances for a wallet immediately.
func (m *Manager) Refresh(ctx context.Context, address string) (Snapshot, error) {
	m.mu.Lock()
	p, ok := m.pollers[address]
	m.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrNotTracked
	}
	return p.Refresh(ctx), nil
}

// Close stops all pollers.
func (m *Manager) Close() {
	m.mu.Lock()
	pollers := make([]*Poller, 0, len(m.pollers))
	for _, p := range m.pollers {
		pollers = append(pollers, p)
	}
	m.pollers = make(map[string]*Poller)
	m.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
