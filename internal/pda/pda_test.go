package pda

import "testing"

func TestDeriveIsDeterministic(t *testing.T) {
	a1 := Agent("prog1", "assetA")
	a2 := Agent("prog1", "assetA")
	if a1 != a2 {
		t.Fatalf("expected deterministic derivation, got %q and %q", a1, a2)
	}
}

func TestDeriveDistinguishesSeeds(t *testing.T) {
	agent := Agent("prog1", "assetA")
	validation := Validation("prog1", "assetA", "validatorX", 0)
	if agent == Address(validation) {
		t.Fatalf("agent and validation PDAs collided")
	}
}

func TestMetadataKeyHashStable(t *testing.T) {
	h1 := MetadataKeyHash("display_name")
	h2 := MetadataKeyHash("display_name")
	if h1 != h2 {
		t.Fatalf("key hash not stable")
	}
	if len(h1) != 32 {
		t.Fatalf("expected 32 hex chars (16 bytes), got %d", len(h1))
	}
}
