package services

import "fmt"

// 領域錯誤分類：handlers 層用 errors.As 轉成對應的 HTTP 狀態碼。

// ValidationError 輸入資料不合法（日期錯誤、缺少欄位），呼叫端可修正後重送
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError 預約衝突（日期重疊、重複下訂），呼叫端需換日期
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// AuthorizationError 操作者角色或擁有權不符
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// InvalidTransitionError 租約狀態機不允許的轉移
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid rental status transition from %s to %s", e.From, e.To)
}

// PaymentError 金流閘道拒絕或出錯，附帶閘道回傳的訊息，不自動重試
type PaymentError struct {
	Gateway string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment gateway %s: %s", e.Gateway, e.Message)
	}
	return fmt.Sprintf("payment gateway %s error", e.Gateway)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// TimeoutError 行動支付驗證逾時：真實結果未知，與付款失敗是不同情況
type TimeoutError struct {
	Gateway   string
	Reference string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("payment verification timed out for %s payment %s", e.Gateway, e.Reference)
}
