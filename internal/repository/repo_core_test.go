package repository

import "testing"

func TestSanitizeForPG(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "no change", in: `{"k":"v"}`, want: `{"k":"v"}`},
		{name: "raw null byte", in: "ab\x00cd", want: "abcd"},
		{name: "valid utf8 passthrough", in: "héllo", want: "héllo"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SanitizeForPG(tc.in)
			if got != tc.want {
				t.Fatalf("SanitizeForPG(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeBytesForPGStripsNulAndNilIsNil(t *testing.T) {
	if SanitizeBytesForPG(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
	got := SanitizeBytesForPG([]byte("ab\x00cd"))
	if string(got) != "abcd" {
		t.Fatalf("expected NUL byte stripped, got %q", got)
	}
}
