// Package mailer はメール配信プロバイダーのクライアントを提供する。
// メーリングリストへの登録と運用者向けアラートメールの送信を行う。
package mailer

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

// defaultEndpoint はメール配信プロバイダーAPIのエンドポイント。
const defaultEndpoint = "https://api.emailoctopus.com/v2"

// Client はメール配信プロバイダーAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
	}
}

// SetEndpoint はエンドポイントを差し替える。テスト用。
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// AddToList はメールアドレスを指定リストに登録する。
func (c *Client) AddToList(ctx context.Context, listID, email, name string) error {
	body := map[string]interface{}{
		"email_address": email,
		"fields":        map[string]string{"Name": name},
		"status":        "subscribed",
	}
	return c.post(ctx, c.endpoint+"/lists/"+listID+"/contacts", body)
}

// SendOperatorAlert は予期しないサーバーエラーを運用者アドレスに通知する。
// 通知自体の失敗はログに記録するのみで、呼び出し元のエラーにはしない。
func (c *Client) SendOperatorAlert(ctx context.Context, operatorEmail, subject, detail string) {
	body := map[string]interface{}{
		"to":      operatorEmail,
		"subject": subject,
		"body":    detail,
	}
	if err := c.post(ctx, c.endpoint+"/messages", body); err != nil {
		c.logger.Error("failed to send operator alert",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}

// post はJSONボディのPOSTリクエストを送信する。
func (c *Client) post(ctx context.Context, endpoint string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal mailer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create mailer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("mailer provider call failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call mailer provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return model.NewUpstreamError(resp.StatusCode, string(respBody))
	}
	return nil
}
