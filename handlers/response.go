package handlers

import (
	"errors"
	"net/http"

	"carhive/services"

	"github.com/gin-gonic/gin"
)

// APIResponse 定義統一的 API 回應結構
type APIResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"` // omitempty 表示如果為空則不顯示
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse 返回成功的回應
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Status:  true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 返回失敗的回應
func ErrorResponse(c *gin.Context, statusCode int, message string, err string, code string) {
	c.JSON(statusCode, APIResponse{
		Status:  false,
		Message: message,
		Error:   err,
		Code:    code,
	})
}

// ServiceErrorResponse 把 services 的錯誤分類轉成對應的 HTTP 狀態碼。
// 逾時跟付款失敗分開處理：逾時代表結果未知，提示稍後查詢而不是顯示失敗。
func ServiceErrorResponse(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var conflictErr *services.ConflictError
	var authErr *services.AuthorizationError
	var transitionErr *services.InvalidTransitionError
	var paymentErr *services.PaymentError
	var timeoutErr *services.TimeoutError

	switch {
	case errors.As(err, &validationErr):
		ErrorResponse(c, http.StatusBadRequest, validationErr.Message, err.Error(), "ERR_INVALID_INPUT")
	case errors.As(err, &conflictErr):
		ErrorResponse(c, http.StatusConflict, conflictErr.Message, err.Error(), "ERR_CONFLICT")
	case errors.As(err, &authErr):
		ErrorResponse(c, http.StatusForbidden, authErr.Message, err.Error(), "ERR_FORBIDDEN")
	case errors.As(err, &transitionErr):
		ErrorResponse(c, http.StatusConflict, "不允許的狀態轉移", err.Error(), "ERR_INVALID_TRANSITION")
	case errors.As(err, &paymentErr):
		message := "付款失敗，請重新嘗試"
		if paymentErr.Message != "" {
			message = paymentErr.Message
		}
		ErrorResponse(c, http.StatusPaymentRequired, message, err.Error(), "ERR_PAYMENT_FAILED")
	case errors.As(err, &timeoutErr):
		ErrorResponse(c, http.StatusRequestTimeout,
			"付款驗證逾時，結果尚未確定，請稍後查詢付款狀態", err.Error(), "ERR_VERIFICATION_TIMEOUT")
	default:
		ErrorResponse(c, http.StatusInternalServerError, "伺服器錯誤", err.Error(), "ERR_INTERNAL")
	}
}
