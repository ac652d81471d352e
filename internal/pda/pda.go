// Package pda derives the program-derived addresses the verifier uses to
// probe on-chain account existence (spec.md §6.4). Real PDA derivation
// (find_program_address) walks bump seeds against the ed25519 curve; the
// indexer only needs a stable, deterministic address per entity so it can
// batch-probe accounts, so we model it as a SHA-256 digest of the
// program id and seed sequence. Grounded on stdlib crypto/sha256 — no
// library in the retrieved pack implements Solana's curve-based PDA
// derivation, and pulling one in only to recompute a value the ledger
// client can just as well resolve from the decoded event would add a
// dependency with no caller (see DESIGN.md).
package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Address is a derived program address, hex-encoded for use as a map/SQL
// key.
type Address string

func derive(programID string, seeds ...[]byte) Address {
	h := sha256.New()
	h.Write([]byte(programID))
	for _, s := range seeds {
		h.Write(s)
	}
	sum := h.Sum(nil)
	return Address(hexEncode(sum))
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// Agent derives the agent account PDA: seeds "agent" || asset.
func Agent(programID, asset string) Address {
	return derive(programID, []byte("agent"), []byte(asset))
}

// Validation derives the validation account PDA:
// seeds "validation" || asset || validator || u32_le(nonce).
func Validation(programID, asset, validator string, nonce uint32) Address {
	nonceBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(nonceBytes, nonce)
	return derive(programID, []byte("validation"), []byte(asset), []byte(validator), nonceBytes)
}

// Metadata derives the metadata account PDA:
// seeds "agent_meta" || asset || first_16_bytes_of_sha256(key).
func Metadata(programID, asset, key string) Address {
	keyHash := sha256.Sum256([]byte(key))
	return derive(programID, []byte("agent_meta"), []byte(asset), keyHash[:16])
}

// MetadataKeyHash returns the hex-encoded first 16 bytes of sha256(key),
// the same value used as the metadata PDA seed, for storage as the
// metadata entry's key_hash column.
func MetadataKeyHash(key string) string {
	keyHash := sha256.Sum256([]byte(key))
	return hexEncode(keyHash[:16])
}

// RegistryConfig derives the registry config PDA: seeds "registry_config" || collection.
func RegistryConfig(programID, collection string) Address {
	return derive(programID, []byte("registry_config"), []byte(collection))
}

// RootConfig derives the root config PDA: seed "root_config".
func RootConfig(programID string) Address {
	return derive(programID, []byte("root_config"))
}

// PublicKey converts a derived address back into the 32-byte key shape
// the ledger adapter's account-fetch calls need. sha256's digest size
// matches solana.PublicKey's exactly, so this is a plain byte
// reinterpretation, not a curve operation.
func (a Address) PublicKey() (solana.PublicKey, error) {
	raw, err := hex.DecodeString(string(a))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("pda: malformed address %q: %w", a, err)
	}
	if len(raw) != 32 {
		return solana.PublicKey{}, fmt.Errorf("pda: address %q decodes to %d bytes, want 32", a, len(raw))
	}
	var pk solana.PublicKey
	copy(pk[:], raw)
	return pk, nil
}
