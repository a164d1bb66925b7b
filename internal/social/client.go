// Package social はソーシャルネットワークAPIのクライアントを提供する。
// 予約投稿ワーカーから呼び出され、投稿の公開を行う。
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roamjs/backend/internal/model"
)

// defaultEndpoint はソーシャルネットワークAPIのエンドポイント。
const defaultEndpoint = "https://api.twitter.com/2"

// Client はソーシャルネットワークAPIのクライアント。
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

// Publish は投稿を公開し、公開された投稿のIDを返す。
func (c *Client) Publish(ctx context.Context, content string) (string, error) {
	payload := map[string]string{"text": content}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/tweets", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create post request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("social API call failed",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to call social API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", model.NewUpstreamError(resp.StatusCode, string(body))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode post response: %w", err)
	}

	return result.Data.ID, nil
}
