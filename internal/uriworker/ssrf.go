// Package uriworker fetches and indexes off-chain agent metadata at the
// URI an agent publishes on-chain. It is a single-owner background
// queue (spec.md §4.6), grounded structurally on the teacher's
// ingester/nft_item_metadata_worker.go queue-and-backfill shape, with a
// from-scratch SSRF-hardened fetch path: no library in the retrieved
// pack implements outbound-fetch SSRF defense, so this is built
// directly on net/http and net (see DESIGN.md).
package uriworker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// blockedHostnames is the static hostname blacklist (spec.md §4.6):
// loopback names and the common cloud metadata endpoints.
var blockedHostnames = map[string]bool{
	"localhost":          true,
	"metadata.google.internal": true,
	"metadata":           true,
}

// fetchResult is the outcome of one SecureFetch call.
type fetchResult struct {
	Body       []byte
	StatusCode int
}

// rewriteScheme maps ipfs:// and ar:// URIs onto their configured HTTP
// gateways; every other scheme passes through unchanged for the caller
// to validate.
func rewriteScheme(raw string, ipfsGateway, arGateway string) string {
	switch {
	case strings.HasPrefix(raw, "ipfs://"):
		return strings.TrimRight(ipfsGateway, "/") + "/" + strings.TrimPrefix(raw, "ipfs://")
	case strings.HasPrefix(raw, "ar://"):
		return strings.TrimRight(arGateway, "/") + "/" + strings.TrimPrefix(raw, "ar://")
	default:
		return raw
	}
}

// validateScheme enforces the allowed-scheme list (spec.md §4.6):
// https always, http only behind allowInsecure.
func validateScheme(u *url.URL, allowInsecure bool) error {
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
		return fmt.Errorf("uriworker: http scheme blocked (allow_insecure_uri is false)")
	default:
		return fmt.Errorf("uriworker: unsupported scheme %q", u.Scheme)
	}
}

// parseNumericIPv4Literal recognizes an IPv4 address written as a bare
// hex, octal, or decimal integer — 0x7f000001, 017700000001, and
// 2130706433 all mean 127.0.0.1. net.ParseIP rejects all three forms
// (it only accepts dotted-decimal and colon-hex), so without this they
// fall through to DNS as literal hostnames and only fail closed by
// accident, when resolution happens to error. strconv.ParseUint's base
// 0 already applies the 0x/0-prefix/decimal convention, so this just
// guards against dotted or colon input reaching it.
func parseNumericIPv4Literal(host string) net.IP {
	if host == "" || strings.ContainsAny(host, ".:") {
		return nil
	}
	n, err := strconv.ParseUint(host, 0, 32)
	if err != nil {
		return nil
	}
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// resolveHost resolves hostname to its A/AAAA records, failing closed on
// any resolution error (spec.md §4.6: "fail-closed on resolution
// error").
func resolveHost(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	if ip := parseNumericIPv4Literal(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("uriworker: dns resolution failed for %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("uriworker: no addresses resolved for %q", host)
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// checkHostAllowed resolves host and rejects it if the hostname is
// blacklisted or any resolved address is private/reserved (spec.md
// §4.6's exhaustive private-IP coverage is delegated to isPrivateOrReserved,
// which inspects every textual IPv4/IPv6 form after resolution, not the
// literal string).
func checkHostAllowed(ctx context.Context, host string) ([]net.IP, error) {
	if blockedHostnames[strings.ToLower(host)] {
		return nil, fmt.Errorf("uriworker: hostname %q is blacklisted", host)
	}
	ips, err := resolveHost(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateOrReserved(ip) {
			return nil, fmt.Errorf("uriworker: resolved address %s for %q is private/reserved", ip, host)
		}
	}
	return ips, nil
}

// isPrivateOrReserved covers RFC 1918, link-local, loopback, unspecified,
// and IPv4-mapped/-compatible IPv6 forms (spec.md §4.6). It operates on
// the already-parsed 16/4-byte form, so it doesn't matter whether the
// IP came from net.ParseIP, parseNumericIPv4Literal, or DNS — every
// textual encoding converges here before this check runs.
func isPrivateOrReserved(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.IsPrivate() || v4.IsLoopback() || v4.IsLinkLocalUnicast() || v4.IsUnspecified()
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() || ip.IsLoopback() {
		return true
	}
	// IPv4-compatible form (::a.b.c.d): twelve zero bytes, then the IPv4 address.
	if len(ip) == net.IPv6len {
		for _, b := range ip[:12] {
			if b != 0 {
				return false
			}
		}
		return isPrivateOrReserved(net.IP(ip[12:]))
	}
	return false
}

// secureTransport builds an http.Transport that dials the pre-resolved,
// pre-validated IP directly (IP pinning) while preserving the original
// Host header for SNI/vhost routing, and that re-validates the peer on
// every redirect hop (manual redirect handling, max 3 hops).
func secureTransport(pinnedIP net.IP, host string) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				port = "443"
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(pinnedIP.String(), port))
		},
		TLSClientConfig: &tls.Config{ServerName: host},
	}
}

// SecureFetch performs the full SSRF-hardened fetch described in
// spec.md §4.6: scheme allowlisting/gateway rewriting, hostname/IP
// blocking (re-checked on every redirect), IP pinning, a 3-hop manual
// redirect limit, and a streamed body read capped at maxBytes.
func SecureFetch(ctx context.Context, rawURL string, maxBytes int64, allowInsecure bool, ipfsGateway, arGateway string, timeout time.Duration) (fetchResult, error) {
	current := rewriteScheme(rawURL, ipfsGateway, arGateway)

	for hop := 0; ; hop++ {
		if hop > 3 {
			return fetchResult{}, fmt.Errorf("uriworker: too many redirects (>3)")
		}

		u, err := url.Parse(current)
		if err != nil {
			return fetchResult{}, fmt.Errorf("uriworker: malformed URL: %w", err)
		}
		if err := validateScheme(u, allowInsecure); err != nil {
			return fetchResult{}, err
		}

		host := u.Hostname()
		ips, err := checkHostAllowed(ctx, host)
		if err != nil {
			return fetchResult{}, err
		}

		client := &http.Client{
			Timeout:   timeout,
			Transport: secureTransport(ips[0], host),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
		if err != nil {
			cancel()
			return fetchResult{}, err
		}
		req.Host = host

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			return fetchResult{}, fmt.Errorf("uriworker: fetch failed: %w", err)
		}

		if loc := resp.Header.Get("Location"); isRedirect(resp.StatusCode) && loc != "" {
			next, err := u.Parse(loc)
			resp.Body.Close()
			cancel()
			if err != nil {
				return fetchResult{}, fmt.Errorf("uriworker: malformed redirect target: %w", err)
			}
			current = next.String()
			continue
		}

		body, err := readCapped(resp, maxBytes)
		resp.Body.Close()
		cancel()
		if err != nil {
			return fetchResult{}, err
		}
		return fetchResult{Body: body, StatusCode: resp.StatusCode}, nil
	}
}

func isRedirect(code int) bool {
	return code == http.StatusMovedPermanently || code == http.StatusFound ||
		code == http.StatusSeeOther || code == http.StatusTemporaryRedirect ||
		code == http.StatusPermanentRedirect
}

// readCapped enforces both the declared-length and streamed-length caps
// (spec.md §4.6: "enforce Content-Length ≤ metadata_max_bytes before
// reading; stream-read and cap cumulative bytes").
func readCapped(resp *http.Response, maxBytes int64) ([]byte, error) {
	if resp.ContentLength > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("uriworker: declared content-length %d exceeds cap %d", resp.ContentLength, maxBytes)
	}
	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("uriworker: body read failed: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("uriworker: body exceeds cap %d bytes", maxBytes)
	}
	return body, nil
}
