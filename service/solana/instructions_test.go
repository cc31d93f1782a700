package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender    = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	recipient = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	usdcMint  = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

func TestBuildTransferInstructions_TransferOnly(t *testing.T) {
	instructions, err := BuildTransferInstructions(TransferParams{
		Sender:    sender,
		Recipient: recipient,
		Mint:      usdcMint,
		Amount:    100_000,
	})
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Equal(t, solana.TokenProgramID, instructions[0].ProgramID())
}

func TestBuildTransferInstructions_WithAccountCreation(t *testing.T) {
	instructions, err := BuildTransferInstructions(TransferParams{
		Sender:                 sender,
		Recipient:              recipient,
		Mint:                   usdcMint,
		Amount:                 100_000,
		CreateRecipientAccount: true,
	})
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	// Account creation must precede the transfer.
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, instructions[0].ProgramID())
	assert.Equal(t, solana.TokenProgramID, instructions[1].ProgramID())
}

func TestBuildTransferInstructions_ZeroAmount(t *testing.T) {
	_, err := BuildTransferInstructions(TransferParams{
		Sender:    sender,
		Recipient: recipient,
		Mint:      usdcMint,
		Amount:    0,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "greater than zero")
}

func TestAssociatedTokenAddress_Deterministic(t *testing.T) {
	first, err := AssociatedTokenAddress(sender, usdcMint)
	require.NoError(t, err)

	second, err := AssociatedTokenAddress(sender, usdcMint)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := AssociatedTokenAddress(recipient, usdcMint)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}
