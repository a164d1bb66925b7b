// Package gitapi はソースコントロール/課題管理APIのクライアントを提供する。
// Issue作成の代理とスポンサーお礼コメントの投稿を行う。
package gitapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/roamjs/backend/internal/model"
)

// defaultEndpoint はソースコントロールAPIのエンドポイント。
const defaultEndpoint = "https://api.github.com"

// Client はソースコントロールAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
		token:      token,
	}
}

// SetEndpoint はエンドポイントを差し替える。テスト用。
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// Issue は作成されたIssueの情報。
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreateIssue はリポジトリにIssueを作成する。
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string) (*Issue, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues",
		c.endpoint, url.PathEscape(owner), url.PathEscape(repo))

	payload := map[string]string{"title": title, "body": body}
	var issue Issue
	if err := c.post(ctx, endpoint, payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssueComment はIssueにコメントを投稿する。
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments",
		c.endpoint, url.PathEscape(owner), url.PathEscape(repo), number)

	payload := map[string]string{"body": body}
	return c.post(ctx, endpoint, payload, nil)
}

// RepositoryExists はリポジトリが存在するかを返す。
func (c *Client) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s",
		c.endpoint, url.PathEscape(owner), url.PathEscape(repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create repository request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("source control API call failed",
			slog.String("operation", "repository_exists"),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("failed to call source control API: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, upstreamError(resp)
	}
}

// post はJSONボディのPOSTリクエストを送信する。
func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("source control API call failed",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call source control API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return upstreamError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// setHeaders は共通ヘッダーを設定する。
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// upstreamError はプロバイダーのエラーレスポンスを統一エラーに変換する。
func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return model.NewUpstreamError(resp.StatusCode, string(body))
}
