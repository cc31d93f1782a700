package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet    = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	testRecipient = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestConnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cred-1", body["credential_id"])
		assert.Equal(t, "45s", body["poll_interval"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Session{
			SmartWallet:  testWallet,
			CredentialID: "cred-1",
			ConnectedAt:  time.Now().UTC(),
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	session, err := c.Connect(context.Background(), "cred-1", 45*time.Second)
	require.NoError(t, err)
	assert.Equal(t, testWallet, session.SmartWallet)
}

func TestTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/transfers", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testWallet, body["wallet_address"])
		assert.Equal(t, testRecipient, body["recipient"])
		assert.Equal(t, "0.1", body["amount"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(TransferResult{
			Signature:       "5j7s6NiJS3JAkvgk",
			AmountBaseUnits: 100_000,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	result, err := c.Transfer(context.Background(), testWallet, testRecipient, "0.1")
	require.NoError(t, err)
	assert.Equal(t, "5j7s6NiJS3JAkvgk", result.Signature)
	assert.Equal(t, uint64(100_000), result.AmountBaseUnits)
}

func TestTransfer_ErrorCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Insufficient USDC balance. You have 0.5 USDC.",
			"code":  "insufficient_balance",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Transfer(context.Background(), testWallet, testRecipient, "1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "insufficient_balance", apiErr.Code)
	assert.Contains(t, apiErr.Message, "0.5 USDC")
}

func TestGetBalances_Refresh(t *testing.T) {
	sol := uint64(5_000_000)
	usdc := uint64(1_500_000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/balances/"+testWallet, r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Balances{
			SOL:       &sol,
			USDC:      &usdc,
			FetchedAt: time.Now().UTC(),
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	balances, err := c.GetBalances(context.Background(), testWallet, true)
	require.NoError(t, err)
	require.NotNil(t, balances.SOL)
	assert.Equal(t, sol, *balances.SOL)
}

func TestListTransfers_Pagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testWallet, r.URL.Query().Get("wallet_address"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*LedgerEntry{
			{ID: 1, WalletAddress: testWallet, Status: "success"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	entries, err := c.ListTransfers(context.Background(), testWallet, 10, 20)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "success", entries[0].Status)
}

func TestDeleteWallet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "wallet not found"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	err := c.DeleteWallet(context.Background(), testWallet)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "wallet not found", apiErr.Message)
}
