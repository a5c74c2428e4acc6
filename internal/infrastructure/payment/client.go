package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/SeifEldin15/quackplan-backend/internal/application"
	"github.com/SeifEldin15/quackplan-backend/internal/config"
)

// Client は外部決済コラボレーターのチェックアウトセッション作成API
// に対するHTTPクライアント
type Client struct {
	endpoint   string
	successURL string
	cancelURL  string
	currency   string
	httpClient *http.Client
}

func NewClient(cfg *config.PaymentConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   cfg.CheckoutEndpoint,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		currency:   cfg.Currency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createSessionRequest struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	Name       string            `json:"name"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type createSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateSession はチェックアウトセッションを作成する
// event_id / user_id はメタデータとして渡し、Webhook で照合に使う
func (c *Client) CreateSession(ctx context.Context, req application.CheckoutSessionRequest) (*application.CheckoutSession, error) {
	body, err := json.Marshal(createSessionRequest{
		Amount:     req.Amount,
		Currency:   c.currency,
		Name:       req.Title,
		SuccessURL: c.successURL,
		CancelURL:  c.cancelURL,
		Metadata: map[string]string{
			"event_id": req.EventID,
			"user_id":  req.UserID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストのシリアライズに失敗: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("セッション作成リクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("セッション作成に失敗: status=%d body=%s", resp.StatusCode, string(b))
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("レスポンスの解析に失敗: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("セッションIDが空です")
	}
	return &application.CheckoutSession{Ref: out.ID, URL: out.URL}, nil
}

// StubClient はローカル開発用のスタブ
// エンドポイント未設定時に使い、即座に成功URLへ誘導するセッションを返す
type StubClient struct {
	successURL string
}

func NewStubClient(cfg *config.PaymentConfig) *StubClient {
	return &StubClient{successURL: cfg.SuccessURL}
}

func (c *StubClient) CreateSession(_ context.Context, req application.CheckoutSessionRequest) (*application.CheckoutSession, error) {
	ref := "cs_stub_" + uuid.NewString()
	return &application.CheckoutSession{
		Ref: ref,
		URL: fmt.Sprintf("%s?session_ref=%s&event_id=%s", c.successURL, ref, req.EventID),
	}, nil
}

var (
	_ application.CheckoutSessionCreator = (*Client)(nil)
	_ application.CheckoutSessionCreator = (*StubClient)(nil)
)
