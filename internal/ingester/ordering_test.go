package ingester

import (
	"testing"

	"github.com/gagliardetto/solana-go"

	"agentindex/internal/ledger"
)

func sig(s string) solana.Signature {
	var out solana.Signature
	copy(out[:], s)
	return out
}

func TestSortOrderedBySlotThenTxIndexThenSignature(t *testing.T) {
	idx0 := int32ptr(0)
	idx1 := int32ptr(1)

	sigs := []orderedSignature{
		{Info: ledger.SignatureInfo{Signature: sig("bbb"), Slot: 10}, TxIndex: idx1},
		{Info: ledger.SignatureInfo{Signature: sig("aaa"), Slot: 10}, TxIndex: idx0},
		{Info: ledger.SignatureInfo{Signature: sig("zzz"), Slot: 5}, TxIndex: nil},
		{Info: ledger.SignatureInfo{Signature: sig("ccc"), Slot: 10}, TxIndex: nil},
	}

	sortOrdered(sigs)

	want := []string{sig("zzz").String(), sig("aaa").String(), sig("bbb").String(), sig("ccc").String()}
	for i, w := range want {
		if got := sigs[i].Info.Signature.String(); got != w {
			t.Fatalf("position %d: got %s want %s", i, got, w)
		}
	}
}

func TestSortOrderedNilTxIndexSortsLast(t *testing.T) {
	sigs := []orderedSignature{
		{Info: ledger.SignatureInfo{Signature: sig("b"), Slot: 1}, TxIndex: nil},
		{Info: ledger.SignatureInfo{Signature: sig("a"), Slot: 1}, TxIndex: int32ptr(3)},
	}
	sortOrdered(sigs)
	if sigs[0].Info.Signature.String() != sig("a").String() {
		t.Fatalf("expected resolved tx_index to sort before NULL sentinel")
	}
}

func TestReverseSignaturesOddAndEvenLength(t *testing.T) {
	odd := []ledger.SignatureInfo{{Slot: 1}, {Slot: 2}, {Slot: 3}}
	reverseSignatures(odd)
	if odd[0].Slot != 3 || odd[2].Slot != 1 {
		t.Fatalf("odd-length reverse failed: %+v", odd)
	}

	even := []ledger.SignatureInfo{{Slot: 1}, {Slot: 2}}
	reverseSignatures(even)
	if even[0].Slot != 2 || even[1].Slot != 1 {
		t.Fatalf("even-length reverse failed: %+v", even)
	}
}
