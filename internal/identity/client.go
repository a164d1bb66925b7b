// Package identity はIDプロバイダーAPIのクライアントを提供する。
// ユーザーレコードの参照とメタデータパーティションの更新を行う。
package identity

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

// Client はIDプロバイダーAPIのクライアント。
// セッショントークンの解決は呼び出し元のトークンで、
// ユーザーレコードの参照・更新は管理APIトークンで行う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	apiToken   string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiToken string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		apiToken:   apiToken,
	}
}

// userPayload はIDプロバイダーのユーザーレスポンス。
type userPayload struct {
	UserID       string                 `json:"user_id"`
	Email        string                 `json:"email"`
	Name         string                 `json:"name"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
}

// toUser はユーザーレスポンスをドメインモデルに変換する。
func (p *userPayload) toUser() *model.User {
	return &model.User{
		ID:           p.UserID,
		Email:        p.Email,
		Name:         p.Name,
		UserMetadata: p.UserMetadata,
		AppMetadata:  p.AppMetadata,
	}
}

// ResolveSession はセッショントークンをユーザーレコードに交換する。
// トークンが無効・期限切れの場合はnilを返す（エラーではない）。
func (c *Client) ResolveSession(ctx context.Context, sessionToken string) (*model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("identity provider call failed",
			slog.String("operation", "resolve_session"),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to call identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	var payload userPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return payload.toUser(), nil
}

// GetUser は指定IDのユーザーレコードを管理APIで取得する。
func (c *Client) GetUser(ctx context.Context, userID string) (*model.User, error) {
	endpoint := c.baseURL + "/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("identity provider call failed",
			slog.String("operation", "get_user"),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to call identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	var payload userPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}

	return payload.toUser(), nil
}

// UpdateUserMetadata はユーザーの公開メタデータパーティションを部分更新する。
// 外部アクションの成功が確認された後にのみ呼び出すこと。
func (c *Client) UpdateUserMetadata(ctx context.Context, userID string, patch map[string]interface{}) error {
	return c.patchUser(ctx, userID, map[string]interface{}{"user_metadata": patch})
}

// UpdateAppMetadata はユーザーのシステム専用メタデータパーティションを部分更新する。
func (c *Client) UpdateAppMetadata(ctx context.Context, userID string, patch map[string]interface{}) error {
	return c.patchUser(ctx, userID, map[string]interface{}{"app_metadata": patch})
}

// patchUser はユーザーレコードのPATCHリクエストを送信する。
func (c *Client) patchUser(ctx context.Context, userID string, body map[string]interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata patch: %w", err)
	}

	endpoint := c.baseURL + "/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create patch user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("identity provider call failed",
			slog.String("operation", "patch_user"),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstreamError(resp)
	}
	return nil
}

// upstreamError はプロバイダーのエラーレスポンスを統一エラーに変換する。
func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return model.NewUpstreamError(resp.StatusCode, string(body))
}
