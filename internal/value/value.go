// Package value implements the arbitrary-precision amount encoding used
// for feedback values: a raw big-integer string paired with a decimal
// exponent, reconstructed into a sign-aware, zero-padded decimal string
// on read. Modeled on the teacher's "redundancy fields" pattern of
// storing a raw representation alongside a derived one
// (internal/ingester/worker.go marshals ProposalKey/Signatures the same
// way: store what you got, rebuild the readable form on demand).
package value

import (
	"math/big"
	"strings"
)

// Encode returns the raw base-10 string for raw and the decimal exponent
// (decimals) to store alongside it. raw must already be a valid base-10
// integer (the decoder hands us one); this function only normalizes sign
// and strips leading zeros.
func Encode(raw *big.Int, decimals int32) (rawStr string, exponent int32) {
	if raw == nil {
		return "0", decimals
	}
	return raw.String(), decimals
}

// Decimal reconstructs the human-readable decimal string for (rawStr,
// decimals): sign-aware, zero-padded to decimals+1 digits, with trailing
// zeros after the decimal point stripped. decimals <= 0 returns the raw
// integer string with leading zeros removed (no fractional part).
func Decimal(rawStr string, decimals int32) string {
	rawStr = strings.TrimSpace(rawStr)
	if rawStr == "" {
		rawStr = "0"
	}

	neg := false
	if strings.HasPrefix(rawStr, "-") {
		neg = true
		rawStr = rawStr[1:]
	}
	rawStr = strings.TrimLeft(rawStr, "0")
	if rawStr == "" {
		rawStr = "0"
	}

	if decimals <= 0 {
		out := rawStr
		if neg && out != "0" {
			out = "-" + out
		}
		return out
	}

	// Zero-pad to exponent+1 digits so there's always at least one digit
	// before the decimal point.
	for int32(len(rawStr)) < decimals+1 {
		rawStr = "0" + rawStr
	}

	intPart := rawStr[:int32(len(rawStr))-decimals]
	fracPart := rawStr[int32(len(rawStr))-decimals:]
	fracPart = strings.TrimRight(fracPart, "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// Raw parses a big-integer string back into a *big.Int, returning nil and
// false if it isn't valid base-10.
func Raw(rawStr string) (*big.Int, bool) {
	n := new(big.Int)
	_, ok := n.SetString(strings.TrimSpace(rawStr), 10)
	if !ok {
		return nil, false
	}
	return n, true
}
