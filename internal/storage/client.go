// Package storage はオブジェクトストレージのクライアントを提供する。
// 拡張機能リリースの保存、公開ドキュメントの配置、パス予約プレースホルダを扱う。
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client はS3互換オブジェクトストレージのクライアント。
type Client struct {
	mc     *minio.Client
	bucket string
}

// Config はストレージクライアントの接続設定。
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Client{mc: mc, bucket: cfg.Bucket}, nil
}

// PutObject はオブジェクトを保存する。
func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// PutPlaceholder はパス予約のプレースホルダオブジェクトを配置する。
// プレースホルダの存在自体が他の公開者との衝突を防ぐ。
func (c *Client) PutPlaceholder(ctx context.Context, path string) error {
	key := strings.TrimSuffix(path, "/") + "/.reserved"
	return c.PutObject(ctx, key, strings.NewReader(""), 0, "application/octet-stream")
}

// PutMarkdown は公開ドキュメントを markdown/{path}.md に保存する。
func (c *Client) PutMarkdown(ctx context.Context, path, content string) error {
	key := "markdown/" + strings.TrimSuffix(path, "/") + ".md"
	return c.PutObject(ctx, key, strings.NewReader(content), int64(len(content)), "text/markdown")
}

// PutRelease は拡張機能リリースのファイルを {extensionId}/{version}/{name} に保存する。
func (c *Client) PutRelease(ctx context.Context, extensionID, version, name string, body io.Reader, size int64, contentType string) error {
	key := extensionID + "/" + version + "/" + name
	return c.PutObject(ctx, key, body, size, contentType)
}

// PrefixExists は指定プレフィックス配下にオブジェクトが存在するかを返す。
func (c *Client) PrefixExists(ctx context.Context, prefix string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:  prefix,
		MaxKeys: 1,
	}) {
		if obj.Err != nil {
			return false, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		return true, nil
	}
	return false, nil
}

// ListVersions は拡張機能の保存済みバージョン一覧を新しい順に返す。
// オブジェクトキーの {extensionId}/{timestamp}/... の第2セグメントがバージョン。
func (c *Client) ListVersions(ctx context.Context, extensionID string) ([]string, error) {
	prefix := extensionID + "/"

	seen := make(map[string]struct{})
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list versions for %s: %w", extensionID, obj.Err)
		}
		rest := strings.TrimPrefix(obj.Key, prefix)
		if idx := strings.Index(rest, "/"); idx > 0 {
			seen[rest[:idx]] = struct{}{}
		}
	}

	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	// バージョンはISO風タイムスタンプのため辞書順の降順が時系列の降順になる
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	return versions, nil
}
