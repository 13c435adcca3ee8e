package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// EndpointGuardService は同期APIの送信先に対するSSRF防止機能のインターフェース。
// 送信先URLは設定で差し替え可能なため、起動時の検証と送信用クライアントの両方で使用する。
type EndpointGuardService interface {
	// NewSafeClient はプライベートIP・ループバック・リンクローカル宛ての接続を
	// Dialerレベルで拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateEndpoint は送信先URLを静的に検証する。
	ValidateEndpoint(rawURL string) error
}

// blockedNetworks は送信先として許可しないネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// endpointGuard はEndpointGuardServiceの実装。
type endpointGuard struct {
	allowedSchemes []string
}

// NewEndpointGuard はEndpointGuardServiceを生成する。
// allowInsecureがfalseの場合はhttpsのみを許可する。
func NewEndpointGuard(allowInsecure bool) *endpointGuard {
	schemes := []string{"https"}
	if allowInsecure {
		schemes = append(schemes, "http")
	}
	return &endpointGuard{allowedSchemes: schemes}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// safeurlはDNS解決後のIPをDialerのControlフックで検証するため、DNS再バインディングも防げる。
func (g *endpointGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateEndpoint は送信先URLのスキーム・ホスト・IPアドレスを検証する。
func (g *endpointGuard) ValidateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !g.isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, g.allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func (g *endpointGuard) isAllowedScheme(scheme string) bool {
	for _, allowed := range g.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

var _ EndpointGuardService = (*endpointGuard)(nil)
