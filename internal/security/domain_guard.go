// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// DomainGuardService はユーザー指定のカスタムドメイン検証のインターフェースを定義する。
// サイト公開リクエストの受付時に使用される。
type DomainGuardService interface {
	// ValidateDomain はカスタムドメインの安全性を検証する。
	// 内部ネットワークを指すドメインや不正な形式のドメインはエラーを返す。
	ValidateDomain(domain string) error

	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// 公開済みサイトの疎通確認に使用する。safeurlライブラリにより
	// プライベートIP、ループバック、メタデータIPへのリクエストがブロックされる。
	NewSafeClient(timeout time.Duration) *http.Client
}

// blockedNetworks はブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// domainPattern はDNSホスト名として妥当なラベル列のパターン。
var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)

// domainGuard はDomainGuardServiceの実装。
type domainGuard struct{}

// NewDomainGuard はDomainGuardServiceの新しいインスタンスを生成する。
func NewDomainGuard() *domainGuard {
	return &domainGuard{}
}

// ValidateDomain はカスタムドメインの安全性を検証する。
// DNS解決を伴わない静的な検証を行う。疎通確認時のDNS再バインディング攻撃は
// NewSafeClientが生成するHTTPクライアント側のDialer検証で防止される。
func (g *domainGuard) ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("empty domain")
	}

	lower := strings.ToLower(domain)

	// IPアドレス直指定の場合: ブロック対象CIDRとの照合
	if ip := net.ParseIP(lower); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		// IP直指定のサイト公開は許可しない
		return fmt.Errorf("domain must be a hostname, not an IP address")
	}

	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("blocked host: %s", lower)
	}

	if !domainPattern.MatchString(lower) {
		return fmt.Errorf("malformed domain: %s", domain)
	}

	return nil
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func (g *domainGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
