// Package payments は決済プロバイダーAPIのクライアントを提供する。
// 顧客、価格、サブスクリプション、チェックアウトセッションの操作と
// Webhook署名の検証を含む。
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/roamjs/backend/internal/model"
)

// Client は決済プロバイダーAPIのクライアント。
// リクエストはフォームエンコード、レスポンスはJSON。1回のみ試行しリトライしない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	secretKey  string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, secretKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		secretKey:  secretKey,
	}
}

// Price は決済プロバイダーの価格レコード。
type Price struct {
	ID         string `json:"id"`
	ProductID  string `json:"product"`
	UnitAmount int64  `json:"unit_amount"`
}

// CheckoutSession は決済プロバイダーのホスト型チェックアウトセッション。
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// FindPriceByProduct は商品名に対応する価格を検索する。見つからない場合はnilを返す。
func (c *Client) FindPriceByProduct(ctx context.Context, product string) (*Price, error) {
	endpoint := c.baseURL + "/v1/prices?product=" + url.QueryEscape(product)

	var result struct {
		Data []Price `json:"data"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return &result.Data[0], nil
}

// CreateCustomer は新規顧客を作成し、顧客IDを返す。
func (c *Client) CreateCustomer(ctx context.Context, email string) (string, error) {
	form := url.Values{}
	form.Set("email", email)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, c.baseURL+"/v1/customers", form, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// HasPaymentMethod は顧客に登録済みの支払い方法があるかを返す。
func (c *Client) HasPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	endpoint := c.baseURL + "/v1/customers/" + url.PathEscape(customerID) + "/payment_methods?limit=1"

	var result struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return false, err
	}
	return len(result.Data) > 0, nil
}

// CreateSubscription は顧客のサブスクリプションを作成する。
func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string) (*model.Subscription, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)

	var result struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
		Status   string `json:"status"`
	}
	if err := c.postForm(ctx, c.baseURL+"/v1/subscriptions", form, &result); err != nil {
		return nil, err
	}

	return &model.Subscription{
		ID:         result.ID,
		CustomerID: result.Customer,
		PriceID:    priceID,
		Status:     result.Status,
	}, nil
}

// ListSubscriptions は顧客のアクティブなサブスクリプション一覧を返す。
func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]model.Subscription, error) {
	endpoint := c.baseURL + "/v1/subscriptions?status=active&customer=" + url.QueryEscape(customerID)

	var result struct {
		Data []struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
			Status   string `json:"status"`
			Items    struct {
				Data []struct {
					Price Price `json:"price"`
				} `json:"data"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	subs := make([]model.Subscription, 0, len(result.Data))
	for _, s := range result.Data {
		sub := model.Subscription{
			ID:         s.ID,
			CustomerID: s.Customer,
			Status:     s.Status,
		}
		if len(s.Items.Data) > 0 {
			sub.PriceID = s.Items.Data[0].Price.ID
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// CancelSubscription はサブスクリプションを解約する。
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	endpoint := c.baseURL + "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create cancel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("payments provider call failed",
			slog.String("operation", "cancel_subscription"),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call payments provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstreamError(resp)
	}
	return nil
}

// CreateCheckoutSession はホスト型チェックアウトセッションを作成する。
// modeは"subscription"（継続課金）または"payment"（単発課金）。
// metadataはチェックアウト完了Webhookでワークフローを特定するために使用される。
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceID, mode, successURL, cancelURL string, metadata map[string]string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("mode", mode)
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var result CheckoutSession
	if err := c.postForm(ctx, c.baseURL+"/v1/checkout/sessions", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateDonationSession は金額指定の単発課金チェックアウトセッションを作成する。
// 事前登録された価格ではなくインライン価格データを使用する。
func (c *Client) CreateDonationSession(ctx context.Context, customerID string, amount int64, successURL, cancelURL string, metadata map[string]string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", amount))
	form.Set("line_items[0][price_data][product_data][name]", "Sponsorship")
	form.Set("line_items[0][quantity]", "1")
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var result CheckoutSession
	if err := c.postForm(ctx, c.baseURL+"/v1/checkout/sessions", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// get はGETリクエストを送信しJSONレスポンスをデコードする。
func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req, out)
}

// postForm はフォームエンコードのPOSTリクエストを送信しJSONレスポンスをデコードする。
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

// do はリクエストを実行し、エラーレスポンスを統一エラーに変換する。
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("payments provider call failed",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call payments provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstreamError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode payments response: %w", err)
	}
	return nil
}

// upstreamError はプロバイダーのエラーレスポンスを統一エラーに変換する。
func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return model.NewUpstreamError(resp.StatusCode, string(body))
}
