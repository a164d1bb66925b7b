package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// OperatorAlerter は予期しないエラーの運用者通知インターフェース。
// mailer.Clientの部分集合として定義する。
type OperatorAlerter interface {
	SendOperatorAlert(ctx context.Context, operatorEmail, subject, detail string)
}

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// alerterとoperatorEmailが設定されている場合は運用者にメール通知する。
// 通知は応答をブロックしない。
func NewRecoveryMiddleware(alerter OperatorAlerter, operatorEmail string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)

					if alerter != nil && operatorEmail != "" {
						subject := fmt.Sprintf("Unexpected error on %s %s", r.Method, r.URL.Path)
						detail := fmt.Sprintf("panic: %v", rec)
						go alerter.SendOperatorAlert(context.WithoutCancel(r.Context()), operatorEmail, subject, detail)
					}

					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
