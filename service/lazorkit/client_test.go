package lazorkit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSender = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testDest   = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "https://portal.example.com", srv.Client(), nil, nil), srv
}

func TestConnect(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cred-123", req["credential_id"])

		json.NewEncoder(w).Encode(map[string]string{
			"smart_wallet": testSender.String(),
			"token":        "sess-token",
		})
	})

	session, err := client.Connect(context.Background(), "cred-123")
	require.NoError(t, err)
	assert.Equal(t, testSender.String(), session.SmartWallet)
	assert.Equal(t, "cred-123", session.CredentialID)
	assert.Equal(t, "sess-token", session.Token)
	assert.False(t, session.ConnectedAt.IsZero())
}

func TestConnect_EmptyCredential(t *testing.T) {
	client := NewClient("http://localhost:1", "http://localhost:2", nil, nil, nil)
	_, err := client.Connect(context.Background(), "")
	require.Error(t, err)
}

func TestDisconnect(t *testing.T) {
	var called bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "/v1/sessions/sess-token", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	session := &Session{SmartWallet: testSender.String(), Token: "sess-token"}
	require.NoError(t, client.Disconnect(context.Background(), session))
	assert.True(t, called)
}

func TestDisconnect_NilSession(t *testing.T) {
	client := NewClient("http://localhost:1", "http://localhost:2", nil, nil, nil)
	assert.NoError(t, client.Disconnect(context.Background(), nil))
}

func TestSignAndSendTransaction(t *testing.T) {
	instructions := []solana.Instruction{
		token.NewTransferInstruction(100_000, testSender, testDest, testSender, nil).Build(),
	}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)

		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-token", req.SessionToken)
		assert.Equal(t, "usdc", req.FeeToken)
		require.Len(t, req.Instructions, 1)
		assert.Equal(t, solana.TokenProgramID.String(), req.Instructions[0].ProgramID)
		assert.NotEmpty(t, req.Instructions[0].Accounts)

		// Data must be valid base64.
		_, err := base64.StdEncoding.DecodeString(req.Instructions[0].Data)
		require.NoError(t, err)

		json.NewEncoder(w).Encode(map[string]string{"signature": "5j7s6NiJS3JAkvgk"})
	})

	session := &Session{SmartWallet: testSender.String(), Token: "sess-token"}
	sig, err := client.SignAndSendTransaction(context.Background(), session, instructions, SignOptions{FeeToken: FeeTokenUSDC})
	require.NoError(t, err)
	assert.Equal(t, "5j7s6NiJS3JAkvgk", sig)
}

func TestSignAndSendTransaction_PaymasterErrorIsVerbatim(t *testing.T) {
	instructions := []solana.Instruction{
		token.NewTransferInstruction(100_000, testSender, testDest, testSender, nil).Build(),
	}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds for rent"})
	})

	session := &Session{SmartWallet: testSender.String(), Token: "sess-token"}
	_, err := client.SignAndSendTransaction(context.Background(), session, instructions, SignOptions{})
	require.Error(t, err)

	// The raw paymaster message must survive so callers can classify it.
	assert.Equal(t, "insufficient funds for rent", err.Error())
}

func TestSignAndSendTransaction_RequiresSessionAndInstructions(t *testing.T) {
	client := NewClient("http://localhost:1", "http://localhost:2", nil, nil, nil)

	_, err := client.SignAndSendTransaction(context.Background(), nil, nil, SignOptions{})
	require.Error(t, err)

	session := &Session{SmartWallet: testSender.String(), Token: "sess-token"}
	_, err = client.SignAndSendTransaction(context.Background(), session, nil, SignOptions{})
	require.Error(t, err)
}
