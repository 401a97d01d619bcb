// Package security はURL検証とHTMLサニタイズを提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// MaxURLLength は受け付けるURLの最大長。
const MaxURLLength = 2048

// URLGuardService はユーザー入力URLの検証と、SSRF対策済みHTTPクライアントの生成を行う。
// イベントURL・記事URLの保存時とリンクプレビュー取得時に使用する。
type URLGuardService interface {
	// ValidateURL はDNS解決を伴わない静的検証を行う。
	ValidateURL(rawURL string) error
	// NewSafeClient はsafeurlによりプライベートIPやループバックへの接続を
	// ダイヤル時に拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client
}

// blockedPrefixes はホストにIPアドレスが直接指定された場合に拒否する範囲。
// DNS解決後の検証はsafeurlのDialerが行う。
var blockedPrefixes = mustParsePrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

// blockedHostSuffixes は拒否するホスト名の接尾辞。
var blockedHostSuffixes = []string{".localhost", ".local", ".internal"}

func mustParsePrefixes(cidrs ...string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		prefixes = append(prefixes, netip.MustParsePrefix(c))
	}
	return prefixes
}

// URLGuard はURLGuardServiceの実装。
type URLGuard struct {
	allowedPorts []int
}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() *URLGuard {
	return &URLGuard{allowedPorts: []int{80, 443}}
}

// ValidateURL はスキーム（http / https）、ホスト、長さを検証する。
func (g *URLGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("URL too long: %d > %d", len(rawURL), MaxURLLength)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("empty host in URL")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
		return nil
	}

	if host == "localhost" {
		return fmt.Errorf("blocked host: %s", host)
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("blocked host: %s", host)
		}
	}
	return nil
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
func (g *URLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(g.allowedPorts...).
		Build()

	return safeurl.Client(config).Client
}

// compile-time interface check
var _ URLGuardService = (*URLGuard)(nil)
