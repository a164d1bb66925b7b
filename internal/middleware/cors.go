package middleware

import "net/http"

// NewCORSMiddleware は全レスポンスに固定のCORSヘッダーを付与するミドルウェアを返す。
// APIはブラウザ拡張機能など任意のオリジンから呼び出されるため、
// ワイルドカードオリジンを許可する。credentialsは使用しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
