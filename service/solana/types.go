package solana

// TokenBalance is a parsed SPL token-account balance.
// Amount is in base units (10^-Decimals of the token).
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
}
