package verifier

import (
	"encoding/binary"
	"fmt"
)

// minAccountSize is the smallest a well-formed agent account can be:
// discriminator + fixed identity fields + absent-optional-pubkey tag +
// three digest/count triplets (spec.md §6.3).
const minAccountSize = 8 + 32 + 32 + 32 + 1 + 1 + 1 + 3*(32+8)

// chainTriplet is one on-chain (digest, count) pair.
type chainTriplet struct {
	Digest []byte
	Count  uint64
}

// accountView is the subset of the on-chain agent account the verifier
// reads: the three hash-chain triplets in fixed order (spec.md §6.3).
type accountView struct {
	Feedback chainTriplet
	Response chainTriplet
	Revoke   chainTriplet
}

// decodeAccount parses raw account bytes per the fixed layout. Any
// account shorter than minAccountSize is undecodable and treated as a
// hard verification failure for that cycle (not existence-absent —
// existence was already confirmed by the caller).
func decodeAccount(data []byte) (accountView, error) {
	if len(data) < minAccountSize {
		return accountView{}, fmt.Errorf("verifier: account too short (%d bytes, want >= %d)", len(data), minAccountSize)
	}

	off := 8 // discriminator
	off += 32 // collection
	off += 32 // owner
	off += 32 // asset
	off += 1  // bump
	off += 1  // atom_enabled

	tag := data[off]
	off++
	if tag == 1 {
		off += 32
	}

	readTriplet := func() chainTriplet {
		digest := make([]byte, 32)
		copy(digest, data[off:off+32])
		off += 32
		count := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return chainTriplet{Digest: digest, Count: count}
	}

	return accountView{
		Feedback: readTriplet(),
		Response: readTriplet(),
		Revoke:   readTriplet(),
	}, nil
}
