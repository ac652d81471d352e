package value

import "testing"

func TestDecimalRoundTrip(t *testing.T) {
	cases := []struct {
		raw      string
		decimals int32
		want     string
	}{
		{"8500", 2, "85"},
		{"8550", 2, "85.5"},
		{"0", 2, "0"},
		{"5", 2, "0.05"},
		{"-5", 2, "-0.05"},
		{"100", 0, "100"},
		{"007", 0, "7"},
	}
	for _, c := range cases {
		got := Decimal(c.raw, c.decimals)
		if got != c.want {
			t.Errorf("Decimal(%q, %d) = %q, want %q", c.raw, c.decimals, got, c.want)
		}
	}
}

func TestRawParsesBackModuloTrailingZeros(t *testing.T) {
	n, ok := Raw("8500")
	if !ok || n.String() != "8500" {
		t.Fatalf("Raw(8500) = %v, %v", n, ok)
	}
	if _, ok := Raw("not-a-number"); ok {
		t.Fatalf("expected Raw to reject invalid input")
	}
}
