package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"carhive/services"

	"github.com/gin-gonic/gin"
)

// CardChargeInput 信用卡扣款輸入：前端先把卡片資料換成 token，
// 原始卡號不進後端
type CardChargeInput struct {
	RentalID int    `json:"rental_id" binding:"required,gt=0"`
	Token    string `json:"token" binding:"required"`
}

// ChargeCard 信用卡扣款資料檢查
func ChargeCard(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var input CardChargeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   "請提供租約 ID 和付款 token",
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	payment, result, err := paymentService.ChargeCard(c.Request.Context(), input.RentalID, userID, input.Token)
	if err != nil {
		log.Printf("Card charge failed for rental %d: %v", input.RentalID, err)
		ServiceErrorResponse(c, err)
		return
	}

	// 需要 3D 驗證：回傳 client_secret 讓前端完成驗證後再確認
	if result.Status == services.ChargeRequiresAction {
		SuccessResponse(c, http.StatusOK, "需要進一步驗證", gin.H{
			"payment":       payment.ToResponse(),
			"client_secret": result.ClientSecret,
		})
		return
	}

	SuccessResponse(c, http.StatusOK, "付款成功", payment.ToResponse())
}

// ConfirmCard 3D 驗證完成後的確認資料檢查
func ConfirmCard(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的付款ID"})
		return
	}

	payment, result, err := paymentService.ConfirmCard(c.Request.Context(), id, userID)
	if err != nil {
		log.Printf("Card confirm failed for payment %d: %v", id, err)
		ServiceErrorResponse(c, err)
		return
	}

	if result.Status == services.ChargeSucceeded {
		SuccessResponse(c, http.StatusOK, "付款成功", payment.ToResponse())
		return
	}
	SuccessResponse(c, http.StatusOK, "付款尚未完成，請稍後再確認", payment.ToResponse())
}

// MobileMoneyInput 行動支付發起輸入
type MobileMoneyInput struct {
	RentalID int    `json:"rental_id" binding:"required,gt=0"`
	Phone    string `json:"phone" binding:"required"`
}

// InitiateMobileMoney 發起行動支付資料檢查
func InitiateMobileMoney(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var input MobileMoneyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   "請提供租約 ID 和電話號碼",
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	payment, err := paymentService.InitiateMobileMoney(c.Request.Context(), input.RentalID, userID, input.Phone)
	if err != nil {
		log.Printf("Mobile money initiate failed for rental %d: %v", input.RentalID, err)
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "已發起付款，請在手機上確認後查詢付款狀態", payment.ToResponse())
}

// VerifyPayment 查詢付款狀態。預設單次查詢；帶 wait=1 時在伺服器端輪詢
// （上限 60 秒），逾時回 408，和付款失敗是不同的回應。
func VerifyPayment(c *gin.Context) {
	if _, _, ok := currentUser(c); !ok {
		return
	}

	gateway := c.Param("gateway")
	reference := c.Param("paymentId")

	if c.Query("wait") == "1" {
		outcome, err := paymentService.AwaitPayment(
			c.Request.Context(), gateway, reference,
			services.DefaultPollInterval, 60*time.Second)
		if err != nil {
			log.Printf("Await payment %s failed: %v", reference, err)
			ServiceErrorResponse(c, err)
			return
		}
		SuccessResponse(c, http.StatusOK, "查詢成功", outcome.Payment.ToResponse())
		return
	}

	payment, _, err := paymentService.VerifyPayment(c.Request.Context(), gateway, reference)
	if err != nil {
		log.Printf("Verify payment %s failed: %v", reference, err)
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "查詢成功", payment.ToResponse())
}
