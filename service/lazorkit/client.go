// Package lazorkit is the boundary to the Lazorkit smart-wallet stack: the
// portal (passkey ceremony) and the paymaster (transaction signing, fee
// sponsorship, and broadcast). This service never holds private keys; every
// signing operation is delegated across this boundary.
package lazorkit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
)

// FeeTokenUSDC requests that the paymaster take its fee in USDC instead of
// deducting SOL from the smart wallet.
const FeeTokenUSDC = "usdc"

// Session is an authenticated smart-wallet session. The smart wallet is a
// program-derived address controlled by the user's passkey credential.
type Session struct {
	SmartWallet  string    `json:"smart_wallet"`
	CredentialID string    `json:"credential_id"`
	Token        string    `json:"token"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// SignOptions configures a sign-and-send request.
type SignOptions struct {
	// FeeToken selects the token the paymaster fee is denominated in.
	// Empty means the paymaster default (SOL).
	FeeToken string
}

// Client talks to the Lazorkit paymaster HTTP API.
type Client struct {
	paymasterURL string
	portalURL    string
	httpClient   *http.Client
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewClient creates a new Lazorkit client.
// If httpClient is nil a default client with a 60s timeout is used; the
// paymaster holds the request open while the passkey confirmation and
// broadcast complete, so the timeout is deliberately generous.
func NewClient(paymasterURL, portalURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		paymasterURL: paymasterURL,
		portalURL:    portalURL,
		httpClient:   httpClient,
		metrics:      m,
		logger:       logger,
	}
}

// Connect establishes a smart-wallet session for a passkey credential.
// The passkey ceremony itself happens against the portal on the user's
// device; this call exchanges the resulting credential for a session.
func (c *Client) Connect(ctx context.Context, credentialID string) (*Session, error) {
	if credentialID == "" {
		return nil, errors.New("credential id is required")
	}

	reqBody := map[string]string{
		"credential_id": credentialID,
		"portal_url":    c.portalURL,
	}

	var resp struct {
		SmartWallet string `json:"smart_wallet"`
		Token       string `json:"token"`
	}
	if err := c.post(ctx, "connect", "/v1/sessions", reqBody, &resp); err != nil {
		return nil, err
	}

	session := &Session{
		SmartWallet:  resp.SmartWallet,
		CredentialID: credentialID,
		Token:        resp.Token,
		ConnectedAt:  time.Now().UTC(),
	}

	c.logger.InfoContext(ctx, "smart wallet session established",
		"smart_wallet", session.SmartWallet,
	)
	return session, nil
}

// Disconnect tears down a smart-wallet session.
func (c *Client) Disconnect(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}

	u := fmt.Sprintf("%s/v1/sessions/%s", c.paymasterURL, url.PathEscape(session.Token))
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.recordCall("disconnect", start, err)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	c.logger.InfoContext(ctx, "smart wallet session closed",
		"smart_wallet", session.SmartWallet,
	)
	return nil
}

// SignAndSendTransaction submits an instruction batch to the paymaster for
// signing, fee sponsorship, and broadcast. Returns the transaction signature.
//
// The call is not cancellable once dispatched: even if ctx is cancelled the
// paymaster may still broadcast the transaction. Callers must treat an
// ambiguous failure as possibly-submitted.
func (c *Client) SignAndSendTransaction(ctx context.Context, session *Session, instructions []solana.Instruction, opts SignOptions) (string, error) {
	if session == nil {
		return "", errors.New("session is required")
	}
	if len(instructions) == 0 {
		return "", errors.New("at least one instruction is required")
	}

	wireInstructions := make([]wireInstruction, 0, len(instructions))
	for i, ix := range instructions {
		wire, err := encodeInstruction(ix)
		if err != nil {
			return "", fmt.Errorf("encode instruction %d: %w", i, err)
		}
		wireInstructions = append(wireInstructions, wire)
	}

	reqBody := signRequest{
		SessionToken: session.Token,
		SmartWallet:  session.SmartWallet,
		Instructions: wireInstructions,
		FeeToken:     opts.FeeToken,
	}

	var resp struct {
		Signature string `json:"signature"`
	}
	if err := c.post(ctx, "sign_and_send", "/v1/transactions", reqBody, &resp); err != nil {
		return "", err
	}

	c.logger.InfoContext(ctx, "transaction submitted via paymaster",
		"smart_wallet", session.SmartWallet,
		"signature", resp.Signature,
		"instruction_count", len(instructions),
		"fee_token", opts.FeeToken,
	)
	return resp.Signature, nil
}

// wireInstruction is the JSON encoding of a Solana instruction accepted by
// the paymaster API.
type wireInstruction struct {
	ProgramID string        `json:"program_id"`
	Accounts  []wireAccount `json:"accounts"`
	Data      string        `json:"data"` // base64
}

type wireAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

type signRequest struct {
	SessionToken string            `json:"session_token"`
	SmartWallet  string            `json:"smart_wallet"`
	Instructions []wireInstruction `json:"instructions"`
	FeeToken     string            `json:"fee_token,omitempty"`
}

// encodeInstruction converts a solana.Instruction to its wire form.
func encodeInstruction(ix solana.Instruction) (wireInstruction, error) {
	data, err := ix.Data()
	if err != nil {
		return wireInstruction{}, fmt.Errorf("serialize instruction data: %w", err)
	}

	accounts := ix.Accounts()
	wireAccounts := make([]wireAccount, len(accounts))
	for i, acct := range accounts {
		wireAccounts[i] = wireAccount{
			Pubkey:     acct.PublicKey.String(),
			IsSigner:   acct.IsSigner,
			IsWritable: acct.IsWritable,
		}
	}

	return wireInstruction{
		ProgramID: ix.ProgramID().String(),
		Accounts:  wireAccounts,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

// post sends a JSON request to the paymaster and decodes the response.
func (c *Client) post(ctx context.Context, operation, path string, reqBody, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.paymasterURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.recordCall(operation, start, err)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) recordCall(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordPaymasterCall(operation, status, time.Since(start).Seconds())
}

// parseErrorResponse surfaces the paymaster's error message verbatim so the
// transfer flow can classify it.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("paymaster request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return errors.New(errResp.Error)
}
