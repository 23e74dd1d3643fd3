// Package security はPeloton APIとの通信と保存データの安全性に関わる機能を提供する。
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

// blockedNetworks はAPIのベースURLとして許可しないネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
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

// NewAPIClient はPeloton API用のHTTPクライアントを生成する。
// httpsの443番ポートのみ許可し、プライベートIPやループバックへの接続は
// DNS解決後のDialer検証でブロックされる。
func NewAPIClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateBaseURL はAPIのベースURLを事前に検証する。
// DNS解決を伴わない静的なチェックのみ行う。
func ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("APIのベースURLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("APIのベースURLが不正です: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("APIのベースURLはhttpsである必要があります: %s", rawURL)
	}
	if parsed.User != nil {
		return fmt.Errorf("APIのベースURLに認証情報を含めることはできません")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("APIのベースURLにホストがありません: %s", rawURL)
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return fmt.Errorf("APIのベースURLのポートは443のみ許可されています: %s", port)
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
