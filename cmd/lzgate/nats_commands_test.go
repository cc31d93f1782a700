package main

import (
	"encoding/json"
	"testing"
)

func TestMatchesJQFilters(t *testing.T) {
	transferEvent := []byte(`{
		"wallet_address": "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		"recipient": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"amount_base_units": 100000,
		"signature": "5j7s6NiJS3JAkvgk",
		"status": "success",
		"recipient_account_created": false
	}`)

	tests := []struct {
		name        string
		jqFilters   []string
		data        []byte
		expectMatch bool
		expectErr   bool
	}{
		{
			name:        "no filters matches everything",
			jqFilters:   nil,
			data:        transferEvent,
			expectMatch: true,
		},
		{
			name:        "status equality matches",
			jqFilters:   []string{`.status == "success"`},
			data:        transferEvent,
			expectMatch: true,
		},
		{
			name:        "status equality does not match",
			jqFilters:   []string{`.status == "failed"`},
			data:        transferEvent,
			expectMatch: false,
		},
		{
			name:        "numeric comparison matches",
			jqFilters:   []string{`.amount_base_units > 50000`},
			data:        transferEvent,
			expectMatch: true,
		},
		{
			name:        "all filters must match",
			jqFilters:   []string{`.status == "success"`, `.amount_base_units > 200000`},
			data:        transferEvent,
			expectMatch: false,
		},
		{
			name:        "field extraction is truthy",
			jqFilters:   []string{`.signature`},
			data:        transferEvent,
			expectMatch: true,
		},
		{
			name:        "missing field yields null which is falsy",
			jqFilters:   []string{`.memo`},
			data:        transferEvent,
			expectMatch: false,
		},
		{
			name:        "false boolean field is falsy",
			jqFilters:   []string{`.recipient_account_created`},
			data:        transferEvent,
			expectMatch: false,
		},
		{
			name:      "invalid JSON errors",
			jqFilters: []string{`.status`},
			data:      []byte(`not json`),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := compileJQFilters(tt.jqFilters)
			if err != nil {
				t.Fatalf("failed to compile filters: %v", err)
			}

			matched, err := matchesJQFilters(tt.data, filters)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got match=%v", matched)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if matched != tt.expectMatch {
				t.Errorf("expected match=%v, got match=%v", tt.expectMatch, matched)
			}
		})
	}
}

func TestCompileJQFilters_InvalidExpression(t *testing.T) {
	_, err := compileJQFilters([]string{`.status ==`})
	if err == nil {
		t.Fatal("expected parse error for invalid jq expression")
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		expect bool
	}{
		{"nil is falsy", nil, false},
		{"false is falsy", false, false},
		{"true is truthy", true, true},
		{"zero is truthy", float64(0), true},
		{"empty string is truthy", "", true},
		{"object is truthy", map[string]interface{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTruthy(tt.value); got != tt.expect {
				t.Errorf("isTruthy(%v) = %v, want %v", tt.value, got, tt.expect)
			}
		})
	}
}

func TestMatchesJQFilters_BalanceEvent(t *testing.T) {
	event := map[string]interface{}{
		"wallet_address":  "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		"sol_lamports":    uint64(5_000_000),
		"usdc_base_units": uint64(1_500_000),
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}

	filters, err := compileJQFilters([]string{`.usdc_base_units >= 1000000`})
	if err != nil {
		t.Fatalf("failed to compile filters: %v", err)
	}

	matched, err := matchesJQFilters(data, filters)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Error("expected balance event to match filter")
	}
}
