// Package compress implements the storage framing used for metadata
// values: a one-byte prefix ([prefix:1][payload]) where 0x00 means the
// payload is stored raw and 0x01 means it was zstd-compressed. Readers
// also accept legacy unprefixed data as raw, for backwards compatibility
// with rows written before this framing existed.
//
// The encoder/decoder pair is a module-level singleton initialized once
// rather than a new zstd encoder allocated per call. It has no shutdown
// function; it lives for the life of the process.
package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	PrefixRaw  byte = 0x00
	PrefixZstd byte = 0x01

	// maxCompressedInput bounds the compressed payload we will attempt to
	// decompress, to avoid a small malicious/corrupt blob expanding
	// unboundedly (zip-bomb style).
	maxCompressedInput = 10 * 1024 // 10 KiB

	// maxDecompressedOutput bounds the decompressed result.
	maxDecompressedOutput = 1 * 1024 * 1024 // 1 MiB
)

var (
	encOnce sync.Once
	enc     *zstd.Encoder

	decOnce sync.Once
	dec     *zstd.Decoder
)

func encoder() *zstd.Encoder {
	encOnce.Do(func() {
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			// zstd.NewWriter(nil, ...) only fails on invalid options; our
			// options are static and known-good.
			panic(fmt.Sprintf("compress: failed to initialize zstd encoder: %v", err))
		}
		enc = e
	})
	return enc
}

func decoder() *zstd.Decoder {
	decOnce.Do(func() {
		d, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("compress: failed to initialize zstd decoder: %v", err))
		}
		dec = d
	})
	return dec
}

// Compress frames b as zstd-compressed (prefix 0x01). Empty input returns
// empty output, with no prefix byte. Callers that need a raw fallback on
// compress failure should use CompressOrRaw instead.
func Compress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	compressed := encoder().EncodeAll(b, make([]byte, 0, len(b)))
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, PrefixZstd)
	out = append(out, compressed...)
	return out, nil
}

// CompressOrRaw compresses b, falling back to raw framing (prefix 0x00)
// if compression fails or doesn't actually shrink the payload. This is
// the entry point metadata writers should use (spec.md §4.6: "custom
// keys are compressed if payload exceeds 256 bytes and compression
// actually shrinks the payload").
func CompressOrRaw(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	compressed, err := Compress(b)
	if err != nil || len(compressed) >= len(b)+1 {
		return Raw(b)
	}
	return compressed
}

// Raw frames b as uncompressed (prefix 0x00).
func Raw(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, PrefixRaw)
	out = append(out, b...)
	return out
}

// Decompress reverses the framing written by Compress/Raw/CompressOrRaw.
// Legacy unprefixed data (no framing at all) is treated as raw, for
// backwards compatibility with rows written before this codec existed.
// Enforces both bomb-protection limits from spec.md §4.7.
func Decompress(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, nil
	}

	prefix := framed[0]
	payload := framed[1:]

	switch prefix {
	case PrefixRaw:
		return payload, nil
	case PrefixZstd:
		if len(payload) > maxCompressedInput {
			return nil, fmt.Errorf("compress: compressed payload too large (%d bytes > %d)", len(payload), maxCompressedInput)
		}
		out, err := decoder().DecodeAll(payload, make([]byte, 0, len(payload)*3))
		if err != nil {
			return nil, fmt.Errorf("compress: zstd decode failed: %w", err)
		}
		if len(out) > maxDecompressedOutput {
			return nil, fmt.Errorf("compress: decompressed output too large (%d bytes > %d)", len(out), maxDecompressedOutput)
		}
		return out, nil
	default:
		// Legacy unprefixed data: treat the whole blob (prefix byte
		// included) as raw.
		return framed, nil
	}
}
