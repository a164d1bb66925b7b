// Package edge はCDNエッジ相当のリクエスト前処理を提供する。
// 旧URL形式のリダイレクトと静的アセットへのヘッダー注入をルーターの手前で行う。
package edge

import (
	"net/http"
	"strings"
)

// RedirectRule はパスプレフィックスの301リダイレクトルール。
type RedirectRule struct {
	Prefix string // 一致対象のパスプレフィックス
	Target string // リダイレクト先のプレフィックス
}

// HeaderRule はパスサフィックスに応じたヘッダー注入ルール。
type HeaderRule struct {
	Suffix  string
	Headers map[string]string
}

// DefaultRedirectRules は旧URL形式のリダイレクトルールを返す。
func DefaultRedirectRules() []RedirectRule {
	return []RedirectRule{
		// 旧ダウンロードURL形式
		{Prefix: "/downloads/", Target: "/api/extensions/"},
		// 旧ドキュメントURL形式
		{Prefix: "/docs/", Target: "/extensions/"},
	}
}

// DefaultHeaderRules は静的アセットのヘッダー注入ルールを返す。
func DefaultHeaderRules() []HeaderRule {
	return []HeaderRule{
		{Suffix: ".js", Headers: map[string]string{
			"Cache-Control": "public, max-age=3600",
		}},
		{Suffix: ".css", Headers: map[string]string{
			"Cache-Control": "public, max-age=3600",
		}},
		{Suffix: ".zip", Headers: map[string]string{
			"Cache-Control":       "public, max-age=86400",
			"Content-Disposition": "attachment",
		}},
		{Suffix: ".md", Headers: map[string]string{
			"Cache-Control": "public, max-age=300",
		}},
	}
}

// NewMiddleware はエッジルールを適用するミドルウェアを返す。
// リダイレクトルールに一致したリクエストは301で応答し、後続の処理を行わない。
// ヘッダールールはレスポンスヘッダーに注入してから委譲する。
func NewMiddleware(redirects []RedirectRule, headers []HeaderRule) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, rule := range redirects {
				if strings.HasPrefix(r.URL.Path, rule.Prefix) {
					target := rule.Target + strings.TrimPrefix(r.URL.Path, rule.Prefix)
					if r.URL.RawQuery != "" {
						target += "?" + r.URL.RawQuery
					}
					http.Redirect(w, r, target, http.StatusMovedPermanently)
					return
				}
			}

			for _, rule := range headers {
				if strings.HasSuffix(r.URL.Path, rule.Suffix) {
					for k, v := range rule.Headers {
						w.Header().Set(k, v)
					}
					break
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
