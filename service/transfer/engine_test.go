package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/lazorkit"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSender    = solanago.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testRecipient = solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testMint      = solanago.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

// mockChain implements ChainReader and counts reads so tests can assert
// that rejected submissions never reach the network.
type mockChain struct {
	lamports    uint64
	lamportsErr error
	token       *solana.TokenBalance
	tokenErr    error
	ataExists   bool
	existsErr   error

	reads int
}

func (m *mockChain) LamportBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error) {
	m.reads++
	return m.lamports, m.lamportsErr
}

func (m *mockChain) TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error) {
	m.reads++
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	return m.token, nil
}

func (m *mockChain) AccountExists(ctx context.Context, account solanago.PublicKey) (bool, error) {
	m.reads++
	return m.ataExists, m.existsErr
}

// mockSigner implements Signer.
type mockSigner struct {
	signature string
	err       error

	calls        int
	instructions []solanago.Instruction
	opts         lazorkit.SignOptions
	block        chan struct{} // when non-nil, the call blocks until closed
}

func (m *mockSigner) SignAndSendTransaction(ctx context.Context, session *lazorkit.Session, instructions []solanago.Instruction, opts lazorkit.SignOptions) (string, error) {
	m.calls++
	m.instructions = instructions
	m.opts = opts
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return "", m.err
	}
	return m.signature, nil
}

func newTestEngine(chain *mockChain, signer *mockSigner) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(chain, signer, testMint, 6, 2_000_000, nil, logger)
}

func testSession() *lazorkit.Session {
	return &lazorkit.Session{
		SmartWallet:  testSender.String(),
		CredentialID: "cred-1",
		Token:        "sess-1",
	}
}

func TestSubmit_NoSession(t *testing.T) {
	chain := &mockChain{}
	signer := &mockSigner{}
	engine := newTestEngine(chain, signer)

	_, err := engine.Submit(context.Background(), nil, Request{Recipient: testRecipient.String(), Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeNoSession, terr.Code)
	assert.Equal(t, MsgNoSession, terr.Message)
	assert.Zero(t, chain.reads)
	assert.Zero(t, signer.calls)
}

func TestSubmit_InvalidRecipient(t *testing.T) {
	chain := &mockChain{}
	signer := &mockSigner{}
	engine := newTestEngine(chain, signer)

	_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: "not-an-address", Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeInvalidRecipient, terr.Code)

	// No network call, no instructions constructed.
	assert.Zero(t, chain.reads)
	assert.Zero(t, signer.calls)
}

func TestSubmit_InvalidAmount(t *testing.T) {
	chain := &mockChain{}
	signer := &mockSigner{}
	engine := newTestEngine(chain, signer)

	for _, amount := range []string{"", "abc", "0", "-5", "1.2.3"} {
		_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: amount})
		require.Error(t, err, "amount %q", amount)

		var terr *Error
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, CodeInvalidAmount, terr.Code)
	}

	// Rejections happen before any network call.
	assert.Zero(t, chain.reads)
	assert.Zero(t, signer.calls)
}

func TestSubmit_InsufficientBalance(t *testing.T) {
	chain := &mockChain{
		token: &solana.TokenBalance{Amount: 500_000, Decimals: 6}, // 0.5 USDC
	}
	signer := &mockSigner{}
	engine := newTestEngine(chain, signer)

	_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeInsufficientBalance, terr.Code)
	assert.Contains(t, terr.Message, "0.5")

	// Must not submit any transaction.
	assert.Zero(t, signer.calls)
}

func TestSubmit_NoTokenAccount(t *testing.T) {
	chain := &mockChain{tokenErr: solana.ErrNoTokenAccount}
	signer := &mockSigner{}
	engine := newTestEngine(chain, signer)

	_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeNoTokenBalance, terr.Code)
	assert.Zero(t, signer.calls)
}

func TestSubmit_MissingRecipientAccountInsufficientRent(t *testing.T) {
	chain := &mockChain{
		token:     &solana.TokenBalance{Amount: 5_000_000, Decimals: 6},
		ataExists: false,
		lamports:  1_000_000, // below the 2_000_000 threshold
	}
	signer := &mockSigner{}
	engine := newTestEngine(chain, signer)

	_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeInsufficientRent, terr.Code)
	assert.Contains(t, terr.Message, "0.002")
	assert.Zero(t, signer.calls)
}

func TestSubmit_MissingRecipientAccountCreatesIt(t *testing.T) {
	chain := &mockChain{
		token:     &solana.TokenBalance{Amount: 5_000_000, Decimals: 6},
		ataExists: false,
		lamports:  3_000_000,
	}
	signer := &mockSigner{signature: "5j7s6NiJS3JAkvgk"}
	engine := newTestEngine(chain, signer)

	result, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
	require.NoError(t, err)

	assert.True(t, result.RecipientAccountCreated)
	require.Equal(t, 1, signer.calls)

	// Account creation precedes the transfer instruction.
	require.Len(t, signer.instructions, 2)
	assert.Equal(t, solanago.SPLAssociatedTokenAccountProgramID, signer.instructions[0].ProgramID())
	assert.Equal(t, solanago.TokenProgramID, signer.instructions[1].ProgramID())
}

func TestSubmit_Success(t *testing.T) {
	chain := &mockChain{
		token:     &solana.TokenBalance{Amount: 5_000_000, Decimals: 6},
		ataExists: true,
	}
	signer := &mockSigner{signature: "5j7s6NiJS3JAkvgk"}
	engine := newTestEngine(chain, signer)

	result, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "0.1"})
	require.NoError(t, err)

	assert.Equal(t, "5j7s6NiJS3JAkvgk", result.Signature)
	assert.Equal(t, uint64(100_000), result.AmountBaseUnits)
	assert.False(t, result.RecipientAccountCreated)

	// Fee is requested in the transferred token.
	assert.Equal(t, lazorkit.FeeTokenUSDC, signer.opts.FeeToken)
	require.Len(t, signer.instructions, 1)
	assert.Equal(t, solanago.TokenProgramID, signer.instructions[0].ProgramID())
}

func TestSubmit_ClassifiesSDKError(t *testing.T) {
	chain := &mockChain{
		token:     &solana.TokenBalance{Amount: 5_000_000, Decimals: 6},
		ataExists: true,
	}
	signer := &mockSigner{err: errors.New("User rejected the request")}
	engine := newTestEngine(chain, signer)

	_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeRejected, terr.Code)
	assert.Equal(t, MsgRejected, terr.Message)
}

func TestSubmit_SingleInFlightPerWallet(t *testing.T) {
	block := make(chan struct{})
	chain := &mockChain{
		token:     &solana.TokenBalance{Amount: 5_000_000, Decimals: 6},
		ataExists: true,
	}
	signer := &mockSigner{signature: "sig", block: block}
	engine := newTestEngine(chain, signer)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
		assert.NoError(t, err)
	}()

	// Wait for the first submission to reach the signing call.
	require.Eventually(t, func() bool {
		return engine.Status(testSender.String()) == StatusPending
	}, 2e9, 1e6)

	_, err := engine.Submit(context.Background(), testSession(), Request{Recipient: testRecipient.String(), Amount: "1"})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeInFlight, terr.Code)

	close(block)
	wg.Wait()
	assert.Equal(t, StatusIdle, engine.Status(testSender.String()))
}
