package uriworker

import (
	"strings"
	"testing"

	"agentindex/internal/compress"
)

func TestEncodeFieldStandardKeyAlwaysRaw(t *testing.T) {
	value := []byte(strings.Repeat("x", 1000))
	got := encodeField("name", value)
	if got[0] != 0x00 {
		t.Errorf("standard key not stored raw, prefix = %x", got[0])
	}
}

func TestEncodeFieldCustomKeySmallStaysRaw(t *testing.T) {
	value := []byte("short")
	got := encodeField("services", value)
	if got[0] != 0x00 {
		t.Errorf("small custom value should stay raw, prefix = %x", got[0])
	}
}

func TestEncodeFieldCustomKeyLargeCompressesWhenItShrinks(t *testing.T) {
	value := []byte(strings.Repeat("a", customValueSizeGate+100))
	got := encodeField("services", value)
	if got[0] != 0x01 {
		t.Errorf("large compressible custom value should compress, prefix = %x", got[0])
	}
	if len(got) >= len(value) {
		t.Errorf("compressed output not smaller than input: %d >= %d", len(got), len(value))
	}
	decoded, err := compress.Decompress(got)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decoded) != string(value) {
		t.Error("round-trip mismatch")
	}
}

func TestDocumentFieldsOmitsEmptyArrays(t *testing.T) {
	fields := documentFields(agentDocument{Name: "a"})
	for _, f := range fields {
		if f.Key == "services" || f.Key == "registrations" || f.Key == "trustModels" {
			t.Errorf("empty array field %q should be omitted", f.Key)
		}
	}
}
