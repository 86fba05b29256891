package handlers

import (
	"net/http"

	"carhive/realtime"
	"carhive/services"

	"github.com/gin-gonic/gin"
)

// 核心服務在 main.go 組裝後注入，handlers 只負責 HTTP 邊界
var (
	rentalService       *services.RentalService
	paymentService      *services.PaymentService
	notificationService *services.NotificationService
	hub                 *realtime.Hub
)

// Init 注入服務實例
func Init(rental *services.RentalService, payment *services.PaymentService, notification *services.NotificationService, h *realtime.Hub) {
	rentalService = rental
	paymentService = payment
	notificationService = notification
	hub = h
}

// currentUser 從 AuthMiddleware 放進 context 的欄位取出操作者
func currentUser(c *gin.Context) (int, string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  false,
			"message": "未授權",
			"error":   "user_id not found in token",
			"code":    "ERR_NO_USER_ID",
		})
		return 0, "", false
	}
	userIDInt, ok := userID.(int)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  false,
			"message": "未授權",
			"error":   "invalid user_id type",
			"code":    "ERR_INVALID_USER_ID",
		})
		return 0, "", false
	}

	role, exists := c.Get("role")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  false,
			"message": "未授權",
			"error":   "role not found in token",
			"code":    "ERR_NO_ROLE",
		})
		return 0, "", false
	}
	roleStr, ok := role.(string)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  false,
			"message": "未授權",
			"error":   "invalid role type",
			"code":    "ERR_INVALID_ROLE",
		})
		return 0, "", false
	}

	return userIDInt, roleStr, true
}
