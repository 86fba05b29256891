package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// 閘道回傳的標準化狀態
const (
	ChargePending        = "pending"
	ChargeSucceeded      = "succeeded"
	ChargeRequiresAction = "requires_action"
	ChargeFailed         = "failed"
	ChargeRefunded       = "refunded"
)

// ChargeRequest 對閘道發起的扣款請求。Token 給信用卡流程用（前端先把卡號
// 換成 token，原始卡號不進後端），Phone 給行動支付流程用。
type ChargeRequest struct {
	Amount     float64
	Currency   string
	Token      string
	Phone      string
	ExternalID string
}

// ChargeResult 閘道回傳的標準化結果
type ChargeResult struct {
	Reference    string // 閘道端的付款編號
	Status       string
	ClientSecret string // requires_action 時給前端做 3D 驗證用
	Message      string // 閘道回傳的錯誤或說明訊息
}

// PaymentGateway 金流閘道能力介面。信用卡為同步流程（扣款、必要時 3D 驗證、
// 再查終態），行動支付為非同步流程（發起後輪詢到終態）。
type PaymentGateway interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Verify(ctx context.Context, reference string) (*ChargeResult, error)
	Refund(ctx context.Context, reference string, amount float64) (*ChargeResult, error)
}

// CardGateway 信用卡閘道的 HTTP 轉接層
type CardGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCardGateway(baseURL, apiKey string) *CardGateway {
	return &CardGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *CardGateway) Name() string { return "card" }

type cardChargeResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ClientSecret   string `json:"client_secret"`
	FailureMessage string `json:"failure_message"`
}

func (g *CardGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body := map[string]any{
		"payment_method_token": req.Token,
		"amount":               req.Amount,
		"currency":             req.Currency,
		"external_id":          req.ExternalID,
	}

	var out cardChargeResponse
	if err := g.post(ctx, "/v1/charges", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("card gateway returned empty charge id")
	}
	return g.toResult(&out), nil
}

func (g *CardGateway) Verify(ctx context.Context, reference string) (*ChargeResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/charges/"+reference, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(g.apiKey, "")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("card gateway verify failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("card gateway verify failed: %s", resp.Status)
	}

	var out cardChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return g.toResult(&out), nil
}

func (g *CardGateway) Refund(ctx context.Context, reference string, amount float64) (*ChargeResult, error) {
	body := map[string]any{
		"charge": reference,
		"amount": amount,
	}

	var out cardChargeResponse
	if err := g.post(ctx, "/v1/refunds", body, &out); err != nil {
		return nil, err
	}
	if out.Status != "succeeded" {
		return &ChargeResult{Reference: reference, Status: ChargeFailed, Message: out.FailureMessage}, nil
	}
	return &ChargeResult{Reference: reference, Status: ChargeRefunded}, nil
}

// toResult 把閘道狀態正規化：succeeded / requires_action 照舊，其餘終態一律視為失敗
func (g *CardGateway) toResult(out *cardChargeResponse) *ChargeResult {
	result := &ChargeResult{
		Reference:    out.ID,
		ClientSecret: out.ClientSecret,
		Message:      out.FailureMessage,
	}
	switch out.Status {
	case "succeeded":
		result.Status = ChargeSucceeded
	case "requires_action":
		result.Status = ChargeRequiresAction
	case "pending", "processing":
		result.Status = ChargePending
	default:
		result.Status = ChargeFailed
	}
	return result
}

func (g *CardGateway) post(ctx context.Context, path string, body map[string]any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(g.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("card gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var gwErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		if gwErr.Message != "" {
			return fmt.Errorf("card gateway rejected request: %s", gwErr.Message)
		}
		return fmt.Errorf("card gateway rejected request: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
