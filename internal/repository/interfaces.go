// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/roamjs/backend/internal/model"
)

// WorkflowStateRepository はワークフロー状態の永続化インターフェース。
type WorkflowStateRepository interface {
	// Create はワークフロー状態を作成する。
	Create(ctx context.Context, state *model.WorkflowState) error

	// FindAwaiting は外部確認待ちのワークフローを検索する。見つからない場合はnilを返す。
	FindAwaiting(ctx context.Context, wfType model.WorkflowType, userID, target string) (*model.WorkflowState, error)

	// FindByCheckoutSession はチェックアウトセッションIDでワークフローを検索する。
	// 見つからない場合はnilを返す。
	FindByCheckoutSession(ctx context.Context, checkoutSessionID string) (*model.WorkflowState, error)

	// Complete はトークンをクリアし、状態をDONEに遷移させる。
	// トークンは単回使用のため、同じワークフローを二度完了させることはできない。
	Complete(ctx context.Context, id string) error

	// UpdateStatus はワークフローの状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.WorkflowStatus) error

	// ExpireStale は期限切れの外部確認待ちワークフローをEXPIREDに遷移させ、件数を返す。
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// StatusRepository はステータスレコードの永続化インターフェース。
type StatusRepository interface {
	// Append はステータスレコードを追記する。
	Append(ctx context.Context, record *model.StatusRecord) error

	// Latest は(action, graph)複合キーの最新レコードを取得する。
	// 見つからない場合はnilを返す。
	Latest(ctx context.Context, action, graph string) (*model.StatusRecord, error)

	// ListByUser はユーザーのステータスレコードを新しい順に取得する。
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.StatusRecord, error)
}

// JobRepository はジョブ投入レコードの永続化インターフェース。
type JobRepository interface {
	// Create はジョブ投入レコードを作成する。
	Create(ctx context.Context, job *model.JobRecord) error

	// UpdateStatus はジョブの状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.JobStatus) error

	// MarkTimedOut は指定時刻より前に投入され未完了のジョブをTIMED_OUTに遷移させ、件数を返す。
	MarkTimedOut(ctx context.Context, olderThan time.Time) (int64, error)
}

// SessionRequestRepository はセッションリクエストの永続化インターフェース。
type SessionRequestRepository interface {
	// Create はセッションリクエストを作成する。
	Create(ctx context.Context, req *model.SessionRequest) error

	// FindByID は指定IDのセッションリクエストを取得する。見つからない場合はnilを返す。
	// 期限判定は呼び出し元が行う。
	FindByID(ctx context.Context, id string) (*model.SessionRequest, error)

	// DeleteByID は指定IDのセッションリクエストを削除する。冪等。
	DeleteByID(ctx context.Context, id string) error

	// DeleteOlderThan は指定時刻より古いセッションリクエストを削除し、件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PathReservationRepository はパス予約の永続化インターフェース。
type PathReservationRepository interface {
	// Create はパス予約を作成する。
	Create(ctx context.Context, reservation *model.PathReservation) error

	// FindByPath は指定パスの予約を取得する。見つからない場合はnilを返す。
	FindByPath(ctx context.Context, path string) (*model.PathReservation, error)

	// ListByUser はユーザーの予約パス一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.PathReservation, error)
}

// ScheduledPostRepository は予約投稿の永続化インターフェース。
type ScheduledPostRepository interface {
	// Create は予約投稿を作成する。
	Create(ctx context.Context, post *model.ScheduledPost) error

	// ListByUser はユーザーの予約投稿一覧を予定時刻順に返す。
	ListByUser(ctx context.Context, userID string) ([]*model.ScheduledPost, error)

	// ListDue は投稿予定時刻を過ぎた未投稿の予約を排他的に要求して返す。
	// 返された予約は呼び出し元が所有し、他の呼び出しが同じ予約を返すことはない。
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledPost, error)

	// MarkPosted は投稿完了を記録する。
	MarkPosted(ctx context.Context, id string, postedAt time.Time) error

	// MarkFailed は投稿失敗を記録する。
	MarkFailed(ctx context.Context, id string) error
}
