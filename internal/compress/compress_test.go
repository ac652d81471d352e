package compress

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTripRaw(t *testing.T) {
	in := []byte("hello world")
	framed := Raw(in)
	out, err := Decompress(framed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("got %q, want %q", out, in)
	}
}

func TestRoundTripZstd(t *testing.T) {
	in := []byte(strings.Repeat("quick brown fox ", 200))
	framed, err := Compress(in)
	if err != nil {
		t.Fatal(err)
	}
	if framed[0] != PrefixZstd {
		t.Fatalf("expected zstd prefix, got %x", framed[0])
	}
	out, err := Decompress(framed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEmptyInput(t *testing.T) {
	if out := Raw(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
	out, err := Decompress(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil got %v, %v", out, err)
	}
}

func TestLegacyUnprefixedIsRaw(t *testing.T) {
	legacy := []byte("old-style-value-with-no-prefix")
	out, err := Decompress(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, legacy) {
		t.Fatalf("legacy decode mismatch: got %q want %q", out, legacy)
	}
}

func TestCompressOrRawPrefersRawForSmallInput(t *testing.T) {
	small := []byte("tiny")
	out := CompressOrRaw(small)
	if out[0] != PrefixRaw {
		t.Fatalf("expected raw prefix for small input, got %x", out[0])
	}
}

func TestDecompressRejectsOversizedCompressedInput(t *testing.T) {
	huge := make([]byte, maxCompressedInput+2)
	huge[0] = PrefixZstd
	if _, err := Decompress(huge); err == nil {
		t.Fatal("expected error for oversized compressed payload")
	}
}
