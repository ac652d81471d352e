package uriworker

import (
	"context"
	"net"
	"net/url"
	"testing"
)

func TestIsPrivateOrReserved(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fe80::1", true},
		{"::ffff:10.0.0.1", true},   // IPv4-mapped private
		{"::ffff:8.8.8.8", false},   // IPv4-mapped public
	}
	for _, c := range cases {
		ip := net.ParseIP(c.ip)
		if ip == nil {
			t.Fatalf("test bug: %q did not parse", c.ip)
		}
		if got := isPrivateOrReserved(ip); got != c.want {
			t.Errorf("isPrivateOrReserved(%q) = %v, want %v", c.ip, got, c.want)
		}
	}
}

func TestParseNumericIPv4Literal(t *testing.T) {
	cases := []struct {
		host string
		want string // "" means nil (not recognized as a numeric literal)
	}{
		{"0x7f000001", "127.0.0.1"},
		{"2130706433", "127.0.0.1"},
		{"017700000001", "127.0.0.1"},
		{"example.com", ""},
		{"127.0.0.1", ""}, // dotted-decimal: net.ParseIP already handles this
		{"::1", ""},       // colon form: not this parser's job
		{"", ""},
	}
	for _, c := range cases {
		got := parseNumericIPv4Literal(c.host)
		if c.want == "" {
			if got != nil {
				t.Errorf("parseNumericIPv4Literal(%q) = %v, want nil", c.host, got)
			}
			continue
		}
		want := net.ParseIP(c.want)
		if got == nil || !got.Equal(want) {
			t.Errorf("parseNumericIPv4Literal(%q) = %v, want %v", c.host, got, want)
		}
	}
}

func TestResolveHostBlocksAlternateIPv4Encodings(t *testing.T) {
	cases := []string{"0x7f000001", "2130706433", "017700000001"}
	for _, host := range cases {
		ips, err := resolveHost(context.Background(), host)
		if err != nil {
			t.Fatalf("resolveHost(%q): %v", host, err)
		}
		if len(ips) != 1 || !isPrivateOrReserved(ips[0]) {
			t.Errorf("resolveHost(%q) = %v, want a single loopback address", host, ips)
		}
	}
}

func TestRewriteScheme(t *testing.T) {
	const ipfsGW = "https://ipfs.io/ipfs"
	const arGW = "https://arweave.net"

	if got := rewriteScheme("ipfs://bafy123", ipfsGW, arGW); got != "https://ipfs.io/ipfs/bafy123" {
		t.Errorf("ipfs rewrite = %q", got)
	}
	if got := rewriteScheme("ar://abc123", ipfsGW, arGW); got != "https://arweave.net/abc123" {
		t.Errorf("ar rewrite = %q", got)
	}
	if got := rewriteScheme("https://example.com/x", ipfsGW, arGW); got != "https://example.com/x" {
		t.Errorf("passthrough changed: %q", got)
	}
}

func TestValidateSchemeBlocksUnknown(t *testing.T) {
	cases := []struct {
		raw           string
		allowInsecure bool
		wantErr       bool
	}{
		{"https://example.com", false, false},
		{"http://example.com", false, true},
		{"http://example.com", true, false},
		{"ftp://example.com", false, true},
		{"javascript:alert(1)", false, true},
	}
	for _, c := range cases {
		u, err := url.Parse(c.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", c.raw, err)
		}
		gotErr := validateScheme(u, c.allowInsecure)
		if (gotErr != nil) != c.wantErr {
			t.Errorf("validateScheme(%q, insecure=%v) err=%v, wantErr=%v", c.raw, c.allowInsecure, gotErr, c.wantErr)
		}
	}
}
