// Package transfer implements the USDC transfer submission flow: validation,
// base-unit conversion, preflight balance and account checks, instruction
// assembly, and submission through the Lazorkit paymaster. Every failure is
// terminal for that attempt; nothing here retries a submission.
package transfer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/lazorkit"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
)

// Status is the lifecycle state of a transfer attempt for a wallet.
// There are no recovery branches: idle -> pending -> terminal(success|error).
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
)

// ChainReader provides the read-only chain queries the flow needs.
type ChainReader interface {
	LamportBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error)
	AccountExists(ctx context.Context, account solanago.PublicKey) (bool, error)
}

// Signer submits an instruction batch for signing and broadcast.
type Signer interface {
	SignAndSendTransaction(ctx context.Context, session *lazorkit.Session, instructions []solanago.Instruction, opts lazorkit.SignOptions) (string, error)
}

// Request is a transfer submission. Recipient and Amount are raw user input.
type Request struct {
	Recipient string
	Amount    string
}

// Result is a successful submission.
type Result struct {
	Signature               string
	AmountBaseUnits         uint64
	RecipientAccountCreated bool
}

// Engine runs the transfer submission flow.
// It enforces at most one in-flight submission per smart wallet; it makes no
// idempotency guarantee about the underlying transaction, so resubmission
// after an ambiguous failure can duplicate a transfer.
type Engine struct {
	chain       ChainReader
	signer      Signer
	mint        solanago.PublicKey
	decimals    int32
	rentMinimum uint64
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates a transfer engine.
// rentMinimum is the lamport balance a sender must hold before the engine
// will create a recipient token account on their behalf.
func NewEngine(chain ChainReader, signer Signer, mint solanago.PublicKey, decimals int32, rentMinimum uint64, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		chain:       chain,
		signer:      signer,
		mint:        mint,
		decimals:    decimals,
		rentMinimum: rentMinimum,
		metrics:     m,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
	}
}

// Status reports whether a submission is currently in flight for a wallet.
func (e *Engine) Status(walletAddress string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[walletAddress]; ok {
		return StatusPending
	}
	return StatusIdle
}

// Submit runs the full submission flow for one transfer attempt.
//
// Validation happens in order with no side effects: session, recipient,
// amount. Only then do network reads begin (sender token balance, recipient
// account existence), followed by instruction assembly and the single
// signing call. On failure the returned error is always a *Error carrying
// the classified user-facing message.
func (e *Engine) Submit(ctx context.Context, session *lazorkit.Session, req Request) (*Result, error) {
	// (a) signer identity present
	if session == nil || session.SmartWallet == "" {
		e.reject(CodeNoSession)
		return nil, newError(CodeNoSession, MsgNoSession)
	}

	sender, err := solanago.PublicKeyFromBase58(session.SmartWallet)
	if err != nil {
		e.logger.DebugContext(ctx, "session carries malformed smart wallet address",
			"smart_wallet", session.SmartWallet,
			"error", err,
		)
		e.reject(CodeNoSession)
		return nil, newError(CodeNoSession, MsgNoSession)
	}

	// (b) recipient parses as a valid address
	recipient, err := solanago.PublicKeyFromBase58(strings.TrimSpace(req.Recipient))
	if err != nil {
		e.logger.DebugContext(ctx, "invalid recipient address",
			"recipient", req.Recipient,
			"error", err,
		)
		e.reject(CodeInvalidRecipient)
		return nil, newError(CodeInvalidRecipient, MsgInvalidRecipient)
	}

	// (c) amount parses to a positive finite decimal
	amountBase, err := ToBaseUnits(req.Amount, e.decimals)
	if err != nil {
		e.logger.DebugContext(ctx, "invalid transfer amount",
			"amount", req.Amount,
			"error", err,
		)
		e.reject(CodeInvalidAmount)
		return nil, newError(CodeInvalidAmount, MsgInvalidAmount)
	}

	// Single-slot guard: at most one in-flight submission per wallet.
	if !e.acquire(session.SmartWallet) {
		e.reject(CodeInFlight)
		return nil, newError(CodeInFlight, MsgInFlight)
	}
	defer e.release(session.SmartWallet)

	start := time.Now()

	// Preflight: sender must hold enough of the token.
	balance, err := e.chain.TokenBalance(ctx, sender, e.mint)
	if err != nil {
		if err == solana.ErrNoTokenAccount {
			return nil, e.fail(ctx, start, newError(CodeNoTokenBalance, MsgNoTokenBalance))
		}
		return nil, e.fail(ctx, start, Classify(err))
	}
	if balance.Amount < amountBase {
		return nil, e.fail(ctx, start, insufficientBalanceError(balance.Amount, e.decimals))
	}

	// Preflight: does the recipient's token account exist?
	recipientATA, err := solana.AssociatedTokenAddress(recipient, e.mint)
	if err != nil {
		return nil, e.fail(ctx, start, Classify(err))
	}

	exists, err := e.chain.AccountExists(ctx, recipientATA)
	if err != nil {
		return nil, e.fail(ctx, start, Classify(err))
	}

	createRecipientAccount := false
	if !exists {
		// Creating the account costs rent; the sender pays it in SOL.
		lamports, err := e.chain.LamportBalance(ctx, sender)
		if err != nil {
			return nil, e.fail(ctx, start, Classify(err))
		}
		if lamports < e.rentMinimum {
			return nil, e.fail(ctx, start, insufficientRentError(e.rentMinimum))
		}
		createRecipientAccount = true
	}

	instructions, err := solana.BuildTransferInstructions(solana.TransferParams{
		Sender:                 sender,
		Recipient:              recipient,
		Mint:                   e.mint,
		Amount:                 amountBase,
		CreateRecipientAccount: createRecipientAccount,
	})
	if err != nil {
		return nil, e.fail(ctx, start, Classify(err))
	}

	// Single signing call; the fee is paid in the transferred token.
	signature, err := e.signer.SignAndSendTransaction(ctx, session, instructions, lazorkit.SignOptions{
		FeeToken: lazorkit.FeeTokenUSDC,
	})
	if err != nil {
		return nil, e.fail(ctx, start, Classify(err))
	}

	if e.metrics != nil {
		e.metrics.RecordTransferSubmitted("success", time.Since(start).Seconds())
	}
	e.logger.InfoContext(ctx, "transfer submitted",
		"smart_wallet", session.SmartWallet,
		"recipient", recipient.String(),
		"amount_base_units", amountBase,
		"signature", signature,
		"recipient_account_created", createRecipientAccount,
	)

	return &Result{
		Signature:               signature,
		AmountBaseUnits:         amountBase,
		RecipientAccountCreated: createRecipientAccount,
	}, nil
}

// fail records a terminal failure and returns it.
// Raw error detail stays at debug level; callers surface only the message.
func (e *Engine) fail(ctx context.Context, start time.Time, terr *Error) *Error {
	if e.metrics != nil {
		e.metrics.RecordTransferSubmitted(string(terr.Code), time.Since(start).Seconds())
	}
	e.logger.DebugContext(ctx, "transfer failed",
		"code", terr.Code,
		"cause", terr.cause,
	)
	return terr
}

// reject records a validation rejection (no network call was made).
func (e *Engine) reject(code Code) {
	if e.metrics != nil {
		e.metrics.RecordTransferRejected(string(code))
	}
}

func (e *Engine) acquire(walletAddress string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[walletAddress]; ok {
		return false
	}
	e.inFlight[walletAddress] = struct{}{}
	return true
}

func (e *Engine) release(walletAddress string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, walletAddress)
}
