package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
)

// TransferParams describes a single SPL token transfer between two wallets.
// Amount is in base units of the mint.
type TransferParams struct {
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Mint      solana.PublicKey
	Amount    uint64

	// CreateRecipientAccount prepends an instruction creating the
	// recipient's associated token account, paid for by the sender.
	CreateRecipientAccount bool
}

// BuildTransferInstructions assembles the instruction list for a token
// transfer: an optional associated-token-account creation followed by the
// transfer itself. The sender's smart wallet is both the funding payer and
// the transfer authority.
func BuildTransferInstructions(params TransferParams) ([]solana.Instruction, error) {
	if params.Amount == 0 {
		return nil, fmt.Errorf("transfer amount must be greater than zero")
	}

	senderATA, _, err := solana.FindAssociatedTokenAddress(params.Sender, params.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive sender token account: %w", err)
	}

	recipientATA, _, err := solana.FindAssociatedTokenAddress(params.Recipient, params.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive recipient token account: %w", err)
	}

	var instructions []solana.Instruction

	if params.CreateRecipientAccount {
		createIx := associatedtokenaccount.NewCreateInstruction(
			params.Sender,
			params.Recipient,
			params.Mint,
		).Build()
		instructions = append(instructions, createIx)
	}

	transferIx := token.NewTransferInstruction(
		params.Amount,
		senderATA,
		recipientATA,
		params.Sender,
		nil,
	).Build()
	instructions = append(instructions, transferIx)

	return instructions, nil
}

// AssociatedTokenAddress derives the associated token account address for an
// owner and mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return ata, nil
}
