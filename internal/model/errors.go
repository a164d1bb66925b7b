package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ステータスコード判定に使う原因カテゴリとエラーコードを含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, auth, conflict, upstream, system
	Status   int    // 上流エラーのパススルー用。0の場合はカテゴリから導出する
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNoActiveSession  = "NO_ACTIVE_SESSION"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInvalidLimit     = "INVALID_LIMIT"
	ErrCodeInvalidPage      = "INVALID_PAGE"
	ErrCodePathUnavailable  = "PATH_UNAVAILABLE"
	ErrCodeAlreadyCancelled = "ALREADY_CANCELLED"
	ErrCodePriceNotFound    = "PRICE_NOT_FOUND"
	ErrCodeUpstreamFailure  = "UPSTREAM_FAILURE"
	ErrCodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewNoActiveSessionError はセッション資格情報が欠落・無効な場合のエラーを生成する。
func NewNoActiveSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActiveSession,
		Message:  "No Active Session",
		Category: "auth",
	}
}

// NewUnauthorizedError はコールバックトークン不一致など認可失敗のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
	}
}

// NewValidationError は入力検証失敗のエラーを生成する。
func NewValidationError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: "validation",
	}
}

// NewInvalidLimitError はバージョン一覧のlimitが不正な場合のエラーを生成する。
func NewInvalidLimitError() *APIError {
	return NewValidationError(ErrCodeInvalidLimit, "Limit must be greater than 0")
}

// NewInvalidPageError はバージョン一覧のpageが不正な場合のエラーを生成する。
func NewInvalidPageError() *APIError {
	return NewValidationError(ErrCodeInvalidPage, "Page must be greater than or equal to 0")
}

// NewPathUnavailableError は要求されたパスが予約済みの場合のエラーを生成する。
func NewPathUnavailableError() *APIError {
	return NewValidationError(ErrCodePathUnavailable, "Requested path is not available")
}

// NewAlreadyCancelledError はサブスクリプションの二重解約エラーを生成する。
func NewAlreadyCancelledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyCancelled,
		Message:  "Subscription is already cancelled",
		Category: "conflict",
	}
}

// NewPriceNotFoundError はサービスに対応する価格が存在しない場合のエラーを生成する。
func NewPriceNotFoundError(service string) *APIError {
	return &APIError{
		Code:     ErrCodePriceNotFound,
		Message:  fmt.Sprintf("No price found for service %s", service),
		Category: "conflict",
	}
}

// NewUpstreamError は外部プロバイダーのエラーをパススルーするエラーを生成する。
// statusが0の場合は500として扱われる。
func NewUpstreamError(status int, body string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  body,
		Category: "upstream",
		Status:   status,
	}
}

// NewWorkflowNotFoundError は対象のワークフローが存在しない場合のエラーを生成する。
func NewWorkflowNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeWorkflowNotFound,
		Message:  "No pending workflow found",
		Category: "auth",
	}
}
