package model

import "time"

// WorkflowType はワークフローの種別を表す。
type WorkflowType string

const (
	// WorkflowServiceStart は有料サービス開始ワークフロー。
	WorkflowServiceStart WorkflowType = "service_start"
	// WorkflowServiceEnd は有料サービス終了ワークフロー。
	WorkflowServiceEnd WorkflowType = "service_end"
	// WorkflowWebsiteLaunch はホスティングサイト公開ワークフロー。
	WorkflowWebsiteLaunch WorkflowType = "website_launch"
	// WorkflowWebsiteDeploy はホスティングサイト更新ワークフロー。
	WorkflowWebsiteDeploy WorkflowType = "website_deploy"
	// WorkflowWebsiteShutdown はホスティングサイト停止ワークフロー。
	WorkflowWebsiteShutdown WorkflowType = "website_shutdown"
	// WorkflowSponsor はプロジェクトスポンサーワークフロー。
	WorkflowSponsor WorkflowType = "sponsor"
	// WorkflowMailingList はアカウント作成に伴うメーリングリスト登録ワークフロー。
	WorkflowMailingList WorkflowType = "mailing_list"
)

// WorkflowStatus はワークフローインスタンスの状態を表す。
type WorkflowStatus string

const (
	// WorkflowAwaiting は外部確認待ち状態。コールバックトークンが有効。
	WorkflowAwaiting WorkflowStatus = "AWAITING_EXTERNAL_CONFIRMATION"
	// WorkflowCompleting は確認済みで完了処理中の状態。
	WorkflowCompleting WorkflowStatus = "COMPLETING"
	// WorkflowDone は完了状態。
	WorkflowDone WorkflowStatus = "DONE"
	// WorkflowFailed は失敗状態。呼び出し元はIDLEからの再試行を期待される。
	WorkflowFailed WorkflowStatus = "FAILED"
	// WorkflowExpired はTTL超過により回収された状態。
	WorkflowExpired WorkflowStatus = "EXPIRED"
)

// WorkflowState はワークフローインスタンスの永続化レコード。
// ユーザーメタデータにトークンを埋め込む代わりに、
// (workflow_type, user_id, target) をキーとする専用テーブルで管理する。
type WorkflowState struct {
	ID                string
	Type              WorkflowType
	UserID            string
	Target            string // グラフ名やサービス名などワークフローの対象
	Status            WorkflowStatus
	CallbackToken     string // 単回使用。検証成功時にクリアされる
	CheckoutSessionID string // チェックアウト経由の場合のみ設定
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         time.Time
}

// JobStatus はバックグラウンドジョブ投入レコードの状態を表す。
type JobStatus string

const (
	// JobSubmitted はジョブ投入済み（実行側の受理前）。
	JobSubmitted JobStatus = "SUBMITTED"
	// JobAccepted はジョブ実行側が受理した状態。
	JobAccepted JobStatus = "ACCEPTED"
	// JobRejected はジョブ投入が失敗した状態。
	JobRejected JobStatus = "REJECTED"
	// JobTimedOut はタイムアウト検出された状態。
	JobTimedOut JobStatus = "TIMED_OUT"
)

// JobRecord はバックグラウンドジョブ投入の追跡レコード。
// fire-and-forget呼び出しの投入側・コールバック側の双方が参照できる。
type JobRecord struct {
	ID          string
	Name        string
	Payload     []byte
	Status      JobStatus
	SubmittedAt time.Time
	UpdatedAt   time.Time
}
