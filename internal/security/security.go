// Package security guards outbound fetches of remote source images against
// SSRF: only http(s) URLs are accepted and private, loopback and reserved
// addresses are refused both when the URL is checked and when it is dialed.
package security

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

var (
	ErrScheme       = errors.New("only http and https URLs are allowed")
	ErrEmptyHost    = errors.New("empty hostname")
	ErrBlockedHost  = errors.New("host resolves to a blocked address")
	ErrUnresolvable = errors.New("hostname not resolvable")
)

var blockedNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8", "::1/128",
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
		"169.254.0.0/16", "100.64.0.0/10",
		"0.0.0.0/8", "224.0.0.0/4", "240.0.0.0/4",
		"::/128", "fe80::/10", "fc00::/7", "ff00::/8",
	} {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			blockedNets = append(blockedNets, n)
		}
	}
}

// IsBlockedIP reports whether ip is loopback, private, link-local or
// otherwise reserved.
func IsBlockedIP(ip net.IP) bool {
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Guard validates URLs and dials on behalf of the fetch client.
// AllowPrivate disables address filtering, for local development and tests.
type Guard struct {
	AllowPrivate bool
	Resolver     *net.Resolver
	DialTimeout  time.Duration
}

func (g *Guard) resolver() *net.Resolver {
	if g.Resolver != nil {
		return g.Resolver
	}
	return net.DefaultResolver
}

func (g *Guard) blocked(ip net.IP) bool {
	return !g.AllowPrivate && IsBlockedIP(ip)
}

// AllowedScheme reports whether u is http or https.
func AllowedScheme(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https")
}

// LooksLikeURL reports whether s is meant as a remote source rather than a
// local path.
func LooksLikeURL(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// CheckURL parses raw and rejects URLs the client must not fetch. The host
// is resolved so names pointing only at blocked ranges fail early; the
// dialer checks again at connect time.
func (g *Guard) CheckURL(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if !AllowedScheme(u) {
		return nil, ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return nil, ErrEmptyHost
	}
	if g.AllowPrivate {
		return u, nil
	}
	if strings.EqualFold(host, "localhost") {
		return nil, ErrBlockedHost
	}
	if ip := net.ParseIP(host); ip != nil {
		if g.blocked(ip) {
			return nil, ErrBlockedHost
		}
		return u, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ips, err := g.resolver().LookupIPAddr(lookupCtx, host)
	if err != nil || len(ips) == 0 {
		return nil, ErrUnresolvable
	}
	for _, ipa := range ips {
		if !g.blocked(ipa.IP) {
			return u, nil
		}
	}
	return nil, ErrBlockedHost
}

// DialContext resolves address once and connects to the first allowed IP,
// so a DNS answer that changes between check and dial cannot reach a
// blocked range.
func (g *Guard) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	timeout := g.DialTimeout
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	if ip := net.ParseIP(host); ip != nil {
		if g.blocked(ip) {
			return nil, ErrBlockedHost
		}
		return dialer.DialContext(ctx, network, address)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ips, err := g.resolver().LookupIPAddr(lookupCtx, host)
	if err != nil {
		return nil, err
	}
	for _, ipa := range ips {
		if !g.blocked(ipa.IP) {
			return dialer.DialContext(ctx, network, net.JoinHostPort(ipa.IP.String(), port))
		}
	}
	return nil, ErrBlockedHost
}
