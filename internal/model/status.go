package model

import "time"

// StatusRecord は長時間プロビジョニング処理の進捗ログエントリ。
// (action, graph) の複合キーとタイムスタンプで順序付けられた追記専用レコード。
// ポーリングする呼び出し元には最新1件のみを返す（last-write-wins）。
type StatusRecord struct {
	ID         string
	Action     string // "launch", "deploy", "shutdown" 等
	Graph      string
	Status     string
	UserID     string
	RecordedAt time.Time
}

// PathReservation はストレージ名前空間パスに対するユーザーの予約。
// オブジェクトストレージのプレースホルダと二重に記録し衝突を防止する。
type PathReservation struct {
	Path      string
	UserID    string
	CreatedAt time.Time
}

// ScheduledPost はユーザーごとに予約されたソーシャル投稿。
type ScheduledPost struct {
	ID          string
	UserID      string
	Channel     string
	Content     string
	ScheduledAt time.Time
	Status      string // "scheduled", "publishing", "posted", "failed"
	PostedAt    *time.Time
}

// ExtensionVersion はオブジェクトストレージに保存された拡張機能リリース。
// オブジェクトキーは {extensionId}/{timestamp}/... の形式を取る。
type ExtensionVersion struct {
	ExtensionID string
	Version     string // ISO風タイムスタンプ
}
