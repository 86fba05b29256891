package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// MobileMoneyGateway 行動支付閘道的 HTTP 轉接層。發起收款後閘道回傳
// PENDING，呼叫端輪詢 Verify 直到 SUCCESSFUL 或 FAILED。
type MobileMoneyGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewMobileMoneyGateway(baseURL, apiKey string) *MobileMoneyGateway {
	return &MobileMoneyGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *MobileMoneyGateway) Name() string { return "mobile_money" }

// NormalizePhone 去掉非數字字元後檢查至少 10 位數
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 {
		return "", fmt.Errorf("phone number must contain at least 10 digits, got %d", len(digits))
	}
	return digits, nil
}

type momoResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (g *MobileMoneyGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"phone_number": phone,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"external_id":  req.ExternalID,
	}

	var out momoResponse
	if err := g.post(ctx, "/v1/collections", body, &out); err != nil {
		return nil, err
	}
	if out.PaymentID == "" {
		return nil, fmt.Errorf("mobile money gateway returned empty payment id")
	}
	return g.toResult(&out), nil
}

func (g *MobileMoneyGateway) Verify(ctx context.Context, reference string) (*ChargeResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/collections/"+reference, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mobile money gateway verify failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mobile money gateway verify failed: %s", resp.Status)
	}

	var out momoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.PaymentID == "" {
		out.PaymentID = reference
	}
	return g.toResult(&out), nil
}

func (g *MobileMoneyGateway) Refund(ctx context.Context, reference string, amount float64) (*ChargeResult, error) {
	body := map[string]any{
		"payment_id": reference,
		"amount":     amount,
	}

	var out momoResponse
	if err := g.post(ctx, "/v1/refunds", body, &out); err != nil {
		return nil, err
	}
	if out.Status != "SUCCESSFUL" {
		return &ChargeResult{Reference: reference, Status: ChargeFailed, Message: out.Message}, nil
	}
	return &ChargeResult{Reference: reference, Status: ChargeRefunded}, nil
}

// toResult 把閘道的 PENDING / SUCCESSFUL / FAILED 映射成標準化狀態
func (g *MobileMoneyGateway) toResult(out *momoResponse) *ChargeResult {
	result := &ChargeResult{
		Reference: out.PaymentID,
		Message:   out.Message,
	}
	switch out.Status {
	case "SUCCESSFUL":
		result.Status = ChargeSucceeded
	case "PENDING":
		result.Status = ChargePending
	default:
		result.Status = ChargeFailed
	}
	return result
}

func (g *MobileMoneyGateway) post(ctx context.Context, path string, body map[string]any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mobile money gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var gwErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		if gwErr.Message != "" {
			return fmt.Errorf("mobile money gateway rejected request: %s", gwErr.Message)
		}
		return fmt.Errorf("mobile money gateway rejected request: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
