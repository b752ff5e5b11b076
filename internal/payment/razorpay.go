// Package payment は決済ゲートウェイ（Razorpay）へのオーダー作成と、その控えの記録を提供する。
// 支払いの検証は行わない。
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultRazorpayEndpoint = "https://api.razorpay.com/v1"

// ErrNotConfigured は資格情報が設定されていない場合に返される。
var ErrNotConfigured = errors.New("payment gateway is not configured")

// GatewayOrder はゲートウェイが返したオーダー。
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// RazorpayClient はRazorpay Orders APIのクライアント。
type RazorpayClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	keyID      string
	keySecret  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewRazorpayClient はRazorpayClientを生成する。
func NewRazorpayClient(httpClient *http.Client, logger *slog.Logger, keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		httpClient: httpClient,
		logger:     logger,
		keyID:      keyID,
		keySecret:  keySecret,
		endpoint:   defaultRazorpayEndpoint,
	}
}

// KeyID は公開キーIDを返す。クライアント側のチェックアウトに渡す。
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder はオーダーを作成する。amountは最小通貨単位で指定する。
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(createOrderRequest{Amount: amount, Currency: currency, Receipt: receipt})
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONの作成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.endpoint, "/")+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Razorpayの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("receipt", receipt),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		c.logger.Error("Razorpayがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", e.Error.Code),
			slog.String("description", e.Error.Description),
		)
		return nil, fmt.Errorf("Razorpayがステータス %d を返しました: %s", resp.StatusCode, e.Error.Description)
	}

	var order GatewayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("Razorpayのレスポンスにidがありません")
	}
	return &order, nil
}
