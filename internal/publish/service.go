// Package publish は拡張機能リリースとドキュメントの公開を提供する。
//
// 公開先のストレージ名前空間はパス単位で予約制になっており、
// 予約はオブジェクトストレージのプレースホルダとデータベースの
// 予約行の二重記録で衝突を防止する。
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/roamjs/backend/internal/model"
	"github.com/roamjs/backend/internal/repository"
)

// versionLayout はリリースバージョンのタイムスタンプ形式。
// 辞書順がそのまま時系列順になる。
const versionLayout = "2006-01-02-15-04-05"

// maxListLimit は1ページで返すバージョン数の上限。
const maxListLimit = 100

// pathPattern は予約可能なパスのパターン。英小文字始まりの英数字とハイフン。
var pathPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ObjectStore はサービスが必要とするオブジェクトストレージ操作のインターフェース。
// storage.Clientの部分集合として定義する。
type ObjectStore interface {
	PutPlaceholder(ctx context.Context, path string) error
	PutMarkdown(ctx context.Context, path, content string) error
	PutRelease(ctx context.Context, extensionID, version, name string, body io.Reader, size int64, contentType string) error
	PrefixExists(ctx context.Context, prefix string) (bool, error)
	ListVersions(ctx context.Context, extensionID string) ([]string, error)
}

// MetadataUpdater はユーザーメタデータの更新インターフェース。
// identity.Clientの部分集合として定義する。
type MetadataUpdater interface {
	UpdateUserMetadata(ctx context.Context, userID string, patch map[string]interface{}) error
}

// Service は公開操作を提供する。
type Service struct {
	store     ObjectStore
	identity  MetadataUpdater
	pathRepo  repository.PathReservationRepository
	sanitizer *bluemonday.Policy
}

// NewService はServiceを生成する。
func NewService(store ObjectStore, identityClient MetadataUpdater, pathRepo repository.PathReservationRepository) *Service {
	return &Service{
		store:     store,
		identity:  identityClient,
		pathRepo:  pathRepo,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// VersionPage は拡張機能バージョン一覧の1ページ。
type VersionPage struct {
	Versions []string `json:"versions"`
	IsEnd    bool     `json:"isEnd"`
}

// ListVersions は拡張機能の保存済みバージョンをページングして返す。
// limitが0以下、pageが負の場合はバリデーションエラーを返す。
// limitはmaxListLimitを上限として丸められる。
// 未知の拡張機能と末尾を越えたページは空ページ（IsEnd: true）として扱う。
func (s *Service) ListVersions(ctx context.Context, extensionID string, limit, page int) (*VersionPage, error) {
	if limit <= 0 {
		return nil, model.NewInvalidLimitError()
	}
	if page < 0 {
		return nil, model.NewInvalidPageError()
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	all, err := s.store.ListVersions(ctx, extensionID)
	if err != nil {
		return nil, err
	}

	// 除算で末尾判定してからオフセットを掛け算する。page*limitのオーバーフロー防止
	if page > len(all)/limit {
		return &VersionPage{Versions: []string{}, IsEnd: true}, nil
	}

	start := page * limit
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	versions := make([]string, 0, end-start)
	versions = append(versions, all[start:end]...)

	return &VersionPage{
		Versions: versions,
		IsEnd:    end >= len(all),
	}, nil
}

// ReleaseFile はリリースに含まれる1ファイル。
type ReleaseFile struct {
	Name        string
	Body        io.Reader
	Size        int64
	ContentType string
}

// PublishRelease は拡張機能の新バージョンを公開し、バージョン識別子を返す。
// 対象パスの予約者のみが公開できる。
func (s *Service) PublishRelease(ctx context.Context, user *model.User, extensionID string, files []ReleaseFile) (string, error) {
	if err := s.checkOwnership(user, extensionID); err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", model.NewValidationError(model.ErrCodeInvalidRequest, "no files to publish")
	}

	version := time.Now().UTC().Format(versionLayout)
	for _, f := range files {
		if err := s.store.PutRelease(ctx, extensionID, version, f.Name, f.Body, f.Size, f.ContentType); err != nil {
			return "", err
		}
	}

	slog.Info("release published",
		slog.String("extension_id", extensionID),
		slog.String("version", version),
		slog.Int("files", len(files)),
		slog.String("user_id", user.ID),
	)
	return version, nil
}

// PublishMarkdown は公開ドキュメントを保存する。
// 本文はサニタイズされ、埋め込まれたスクリプト等は除去される。
func (s *Service) PublishMarkdown(ctx context.Context, user *model.User, path, content string) error {
	if err := s.checkOwnership(user, path); err != nil {
		return err
	}

	sanitized := s.sanitizer.Sanitize(content)
	if err := s.store.PutMarkdown(ctx, path, sanitized); err != nil {
		return err
	}

	slog.Info("markdown published",
		slog.String("path", path),
		slog.String("user_id", user.ID),
	)
	return nil
}

// ReservePath はストレージ名前空間のパスを予約する。
//
// 使用中のパス（オブジェクトが既に存在する、または予約行が存在する）は
// 「Requested path is not available」エラーになる。予約の成立時は
// プレースホルダ、予約行、ユーザーの公開メタデータの3箇所に記録する。
func (s *Service) ReservePath(ctx context.Context, user *model.User, path string) error {
	if !pathPattern.MatchString(path) {
		return model.NewValidationError(model.ErrCodeInvalidRequest, fmt.Sprintf("invalid path: %s", path))
	}

	// 1. 使用状況の確認（ストレージと予約行の両方）
	exists, err := s.store.PrefixExists(ctx, path+"/")
	if err != nil {
		return err
	}
	if exists {
		return model.NewPathUnavailableError()
	}

	reserved, err := s.pathRepo.FindByPath(ctx, path)
	if err != nil {
		return err
	}
	if reserved != nil {
		return model.NewPathUnavailableError()
	}

	// 2. プレースホルダの配置
	if err := s.store.PutPlaceholder(ctx, path); err != nil {
		return err
	}

	// 3. 予約行の作成
	if err := s.pathRepo.Create(ctx, &model.PathReservation{
		Path:      path,
		UserID:    user.ID,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}

	// 4. ユーザーの公開メタデータに予約パスを追加
	paths := append(user.Paths(), path)
	if err := s.identity.UpdateUserMetadata(ctx, user.ID, map[string]interface{}{
		"paths": paths,
	}); err != nil {
		return err
	}

	slog.Info("path reserved",
		slog.String("path", path),
		slog.String("user_id", user.ID),
	)
	return nil
}

// ListPaths はユーザーの予約済みパス一覧を返す。
func (s *Service) ListPaths(ctx context.Context, userID string) ([]string, error) {
	reservations, err := s.pathRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(reservations))
	for _, r := range reservations {
		paths = append(paths, r.Path)
	}
	return paths, nil
}

// checkOwnership はユーザーが対象パスの予約者であることを確認する。
func (s *Service) checkOwnership(user *model.User, path string) error {
	for _, p := range user.Paths() {
		if p == path {
			return nil
		}
	}
	return model.NewUnauthorizedError()
}
