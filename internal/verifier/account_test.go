package verifier

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildAccount(wallet bool, feedback, response, revoke chainTriplet) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 8))  // discriminator
	buf.Write(make([]byte, 32)) // collection
	buf.Write(make([]byte, 32)) // owner
	buf.Write(make([]byte, 32)) // asset
	buf.WriteByte(0)            // bump
	buf.WriteByte(1)            // atom_enabled
	if wallet {
		buf.WriteByte(1)
		buf.Write(make([]byte, 32))
	} else {
		buf.WriteByte(0)
	}
	writeTriplet := func(t chainTriplet) {
		d := make([]byte, 32)
		copy(d, t.Digest)
		buf.Write(d)
		var countBytes [8]byte
		binary.LittleEndian.PutUint64(countBytes[:], t.Count)
		buf.Write(countBytes[:])
	}
	writeTriplet(feedback)
	writeTriplet(response)
	writeTriplet(revoke)
	return buf.Bytes()
}

func TestDecodeAccountRoundTrip(t *testing.T) {
	feedback := chainTriplet{Digest: bytes.Repeat([]byte{0xAA}, 32), Count: 3}
	response := chainTriplet{Digest: bytes.Repeat([]byte{0xBB}, 32), Count: 1}
	revoke := chainTriplet{Digest: bytes.Repeat([]byte{0xCC}, 32), Count: 0}

	data := buildAccount(true, feedback, response, revoke)
	got, err := decodeAccount(data)
	if err != nil {
		t.Fatalf("decodeAccount: %v", err)
	}
	if got.Feedback.Count != 3 || !bytes.Equal(got.Feedback.Digest, feedback.Digest) {
		t.Errorf("feedback mismatch: %+v", got.Feedback)
	}
	if got.Response.Count != 1 || !bytes.Equal(got.Response.Digest, response.Digest) {
		t.Errorf("response mismatch: %+v", got.Response)
	}
	if got.Revoke.Count != 0 {
		t.Errorf("revoke mismatch: %+v", got.Revoke)
	}
}

func TestDecodeAccountNoWallet(t *testing.T) {
	data := buildAccount(false, chainTriplet{Digest: make([]byte, 32)}, chainTriplet{Digest: make([]byte, 32)}, chainTriplet{Digest: make([]byte, 32)})
	if _, err := decodeAccount(data); err != nil {
		t.Fatalf("decodeAccount: %v", err)
	}
}

func TestDecodeAccountTooShort(t *testing.T) {
	_, err := decodeAccount(make([]byte, minAccountSize-1))
	if err == nil {
		t.Fatal("expected error for undersized account")
	}
}

func TestCompareChain(t *testing.T) {
	digest := bytes.Repeat([]byte{1}, 32)
	other := bytes.Repeat([]byte{2}, 32)

	cases := []struct {
		name        string
		localCount  uint64
		localDigest []byte
		onChain     chainTriplet
		want        chainVerdict
	}{
		{"behind", 1, digest, chainTriplet{Digest: digest, Count: 5}, chainBehind},
		{"ahead", 5, digest, chainTriplet{Digest: digest, Count: 1}, chainMismatchCount},
		{"equal count digest mismatch", 3, digest, chainTriplet{Digest: other, Count: 3}, chainMismatchDigest},
		{"equal count digest match", 3, digest, chainTriplet{Digest: digest, Count: 3}, chainMatch},
		{"both zero trivially ok", 0, nil, chainTriplet{Digest: nil, Count: 0}, chainMatch},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := compareChain(c.localCount, c.localDigest, c.onChain)
			if got != c.want {
				t.Errorf("compareChain() = %v, want %v", got, c.want)
			}
		})
	}
}
