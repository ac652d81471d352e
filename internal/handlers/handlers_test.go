package handlers

import (
	"math/big"
	"testing"
)

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Fatalf("expected nil for empty string")
	}
	if nullIfEmpty("x") != "x" {
		t.Fatalf("expected value to pass through unchanged")
	}
}

func TestNullIfZeroHash(t *testing.T) {
	var zero [32]byte
	if nullIfZeroHash(zero) != nil {
		t.Fatalf("expected nil for all-zero hash")
	}
	nonZero := [32]byte{1}
	got, ok := nullIfZeroHash(nonZero).([]byte)
	if !ok || len(got) != 32 {
		t.Fatalf("expected 32-byte slice passthrough, got %v", got)
	}
}

func TestBigIntStringRoundTrips(t *testing.T) {
	v := big.NewInt(8500)
	if v.String() != "8500" {
		t.Fatalf("unexpected string form: %s", v.String())
	}
}
