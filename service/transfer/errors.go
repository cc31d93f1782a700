package transfer

import (
	"fmt"
	"strings"
)

// Code identifies the terminal failure class of a transfer attempt.
// Codes are stable identifiers used in the ledger and metrics; the Message
// on the Error is the only text shown to end users.
type Code string

const (
	// Validation rejections (no network call has been made).
	CodeNoSession        Code = "no_session"
	CodeInvalidRecipient Code = "invalid_recipient"
	CodeInvalidAmount    Code = "invalid_amount"
	CodeInFlight         Code = "transfer_in_flight"

	// Preflight failures (read-only network calls only).
	CodeNoTokenBalance      Code = "no_token_balance"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeInsufficientRent    Code = "insufficient_rent_funds"

	// Submission failures classified from the SDK/paymaster error.
	CodeRent         Code = "rent"
	CodeInsufficient Code = "insufficient_funds"
	CodeRejected     Code = "user_rejected"
	CodeTimeout      Code = "timeout"
	CodeNetwork      Code = "network"
	CodeOffCurve     Code = "off_curve"
	CodeCancelled    Code = "cancelled"
	CodeUnknown      Code = "unknown"
)

// User-facing messages. These are the literal strings surfaced to users;
// raw error detail is only ever logged.
const (
	MsgNoSession        = "Wallet not connected. Please connect your wallet first."
	MsgInvalidRecipient = "Invalid recipient address."
	MsgInvalidAmount    = "Please enter a valid amount."
	MsgInFlight         = "A transfer is already in progress. Please wait for it to finish."
	MsgNoTokenBalance   = "No USDC balance found for your wallet."

	MsgRent         = "Insufficient SOL to cover rent. Please add SOL to your wallet and try again."
	MsgInsufficient = "Insufficient funds to complete the transfer."
	MsgRejected     = "Transfer was rejected."
	MsgTimeout      = "The request timed out. Please try again."
	MsgNetwork      = "Network error. Please check your connection and try again."
	MsgOffCurve     = "The recipient address is not a valid wallet address."
	MsgCancelled    = "Transfer was cancelled."
	MsgGeneric      = "Transfer failed. Please try again."
)

// Error is a terminal transfer failure carrying a stable code and the
// user-facing message. The underlying cause is retained for logging only.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// classification maps SDK error substrings to failure classes.
// First match wins, so more specific patterns come first ("insufficient
// funds for rent" must be matched before the generic "insufficient").
var classification = []struct {
	code     Code
	message  string
	patterns []string
}{
	{CodeRent, MsgRent, []string{"insufficient funds for rent"}},
	{CodeInsufficient, MsgInsufficient, []string{"insufficient", "0x1"}},
	{CodeRejected, MsgRejected, []string{"user rejected", "user declined"}},
	{CodeTimeout, MsgTimeout, []string{"timeout", "timed out"}},
	{CodeNetwork, MsgNetwork, []string{"network", "connection", "fetch"}},
	{CodeOffCurve, MsgOffCurve, []string{"off-curve", "off curve"}},
	{CodeCancelled, MsgCancelled, []string{"cancelled", "canceled"}},
}

// Classify maps a raw submission error to a terminal transfer Error.
// Unrecognized errors fall through to the generic message.
func Classify(err error) *Error {
	msg := strings.ToLower(err.Error())
	for _, entry := range classification {
		for _, pattern := range entry.patterns {
			if strings.Contains(msg, pattern) {
				return &Error{Code: entry.code, Message: entry.message, cause: err}
			}
		}
	}
	return &Error{Code: CodeUnknown, Message: MsgGeneric, cause: err}
}

// insufficientBalanceError builds the insufficient-balance message carrying
// the sender's current balance.
func insufficientBalanceError(balanceBaseUnits uint64, decimals int32) *Error {
	return newError(
		CodeInsufficientBalance,
		fmt.Sprintf("Insufficient USDC balance. You have %s USDC.", FormatBaseUnits(balanceBaseUnits, decimals)),
	)
}

// insufficientRentError builds the funding-prompt message shown when the
// recipient's token account is missing and the sender cannot pay for it.
func insufficientRentError(rentMinimumLamports uint64) *Error {
	return newError(
		CodeInsufficientRent,
		fmt.Sprintf("The recipient has no USDC account. You need at least %s SOL to create it. Please fund your wallet with SOL and try again.",
			FormatBaseUnits(rentMinimumLamports, 9)),
	)
}
