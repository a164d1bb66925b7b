// Package model はドメインモデルを定義する。
package model

import "time"

// User はIDプロバイダーが管理するユーザーレコードを表す。
// 本システムはユーザーの正本データを持たず、IDプロバイダーAPI経由で参照・更新する。
type User struct {
	ID    string
	Email string
	Name  string

	// UserMetadata は呼び出し元に公開されるメタデータパーティション。
	// 機能フラグや予約済みパス一覧などを保持する。
	UserMetadata map[string]interface{}

	// AppMetadata はシステム専用の非公開メタデータパーティション。
	// 決済プロバイダーの顧客IDなどを保持する。
	AppMetadata map[string]interface{}
}

// CustomerID はAppMetadataから決済プロバイダーの顧客IDを取得する。
// 未設定の場合は空文字を返す。
func (u *User) CustomerID() string {
	if u.AppMetadata == nil {
		return ""
	}
	if v, ok := u.AppMetadata["customer_id"].(string); ok {
		return v
	}
	return ""
}

// Paths はUserMetadataから予約済みパス一覧を取得する。
func (u *User) Paths() []string {
	if u.UserMetadata == nil {
		return nil
	}
	raw, ok := u.UserMetadata["paths"].([]interface{})
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			paths = append(paths, s)
		}
	}
	return paths
}

// SessionRequest は拡張機能ログインフローの一時レコードを表す。
// 作成から10分を超えたレコードは参照時に削除され、存在しないものとして扱う。
type SessionRequest struct {
	ID        string
	Code      string
	UserID    string
	CreatedAt time.Time
}

// Subscription は決済プロバイダーが管理するサブスクリプションを表す。
type Subscription struct {
	ID         string
	CustomerID string
	PriceID    string
	Status     string
}
