package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
)

// ErrNoTokenAccount is returned when the queried associated token account
// does not exist on chain. Callers distinguish "no account" from "zero
// balance" because the transfer flow reacts differently to each.
var ErrNoTokenAccount = errors.New("token account not found")

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetTokenAccountBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetTokenAccountBalanceResult, error)

	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
	) (*rpc.GetAccountInfoResult, error)
}

// maxReadAttempts bounds how many times a rate-limited read is attempted.
// Only reads retry; transaction submission never does.
const maxReadAttempts = 3

// Client provides read access to Solana account state.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "devnet", rpc host)

	// retryBackoff is the delay before the first rate-limit retry; each
	// subsequent retry doubles it. Shortened in tests.
	retryBackoff time.Duration
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		retryBackoff: 2 * time.Second,
	}
}

// LamportBalance returns the native SOL balance of an account in lamports.
func (c *Client) LamportBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var result *rpc.GetBalanceResult
	err := c.readWithRetry(ctx, "GetBalance", func(ctx context.Context) error {
		var err error
		result, err = c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get lamport balance",
			"owner", owner.String(),
			"error", err,
		)
		return 0, fmt.Errorf("get balance for %s: %w", owner, err)
	}

	c.logger.DebugContext(ctx, "fetched lamport balance",
		"owner", owner.String(),
		"lamports", result.Value,
	)
	return result.Value, nil
}

// TokenBalance returns the balance of the owner's associated token account
// for the given mint. Returns ErrNoTokenAccount if the account does not exist.
func (c *Client) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*TokenBalance, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token address: %w", err)
	}

	var result *rpc.GetTokenAccountBalanceResult
	err = c.readWithRetry(ctx, "GetTokenAccountBalance", func(ctx context.Context) error {
		var err error
		result, err = c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		if isAccountNotFound(err) {
			c.logger.DebugContext(ctx, "token account does not exist",
				"owner", owner.String(),
				"ata", ata.String(),
			)
			return nil, ErrNoTokenAccount
		}
		c.logger.ErrorContext(ctx, "failed to get token balance",
			"owner", owner.String(),
			"ata", ata.String(),
			"error", err,
		)
		return nil, fmt.Errorf("get token balance for %s: %w", ata, err)
	}

	if result.Value == nil {
		return nil, ErrNoTokenAccount
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse token amount %q: %w", result.Value.Amount, err)
	}

	c.logger.DebugContext(ctx, "fetched token balance",
		"owner", owner.String(),
		"ata", ata.String(),
		"amount", amount,
		"decimals", result.Value.Decimals,
	)

	return &TokenBalance{
		Amount:   amount,
		Decimals: result.Value.Decimals,
	}, nil
}

// AccountExists reports whether an account exists on chain.
// Used by the transfer flow to decide whether the recipient's associated
// token account must be created before funds can be sent.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	var result *rpc.GetAccountInfoResult
	err := c.readWithRetry(ctx, "GetAccountInfo", func(ctx context.Context) error {
		var err error
		result, err = c.rpc.GetAccountInfo(ctx, account)
		return err
	})
	if err != nil {
		if isAccountNotFound(err) {
			return false, nil
		}
		c.logger.ErrorContext(ctx, "failed to get account info",
			"account", account.String(),
			"error", err,
		)
		return false, fmt.Errorf("get account info for %s: %w", account, err)
	}

	return result != nil && result.Value != nil, nil
}

// readWithRetry runs a single RPC read, retrying rate-limited attempts with
// exponential backoff (2s, 4s, 8s at the default base). Any other error is
// returned to the caller immediately.
func (c *Client) readWithRetry(ctx context.Context, method string, call func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		start := time.Now()
		err = call(ctx)
		c.recordCall(method, start, err)
		if err == nil || !isRateLimited(err) {
			return err
		}
		if attempt == maxReadAttempts-1 {
			break
		}
		backoff := c.retryBackoff << uint(attempt)
		c.logger.WarnContext(ctx, "rate limited by RPC endpoint, sleeping before retry",
			"method", method,
			"endpoint", c.endpoint,
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// recordCall records RPC call metrics and rate-limit hits.
func (c *Client) recordCall(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		if isRateLimited(err) {
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// isRateLimited reports whether an RPC error is an HTTP 429 response.
func isRateLimited(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}

// isAccountNotFound reports whether an RPC error means the account is absent
// rather than the call having failed.
func isAccountNotFound(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "account not found")
}
