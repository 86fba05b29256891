package handlers

import (
	"log"
	"net/http"

	"carhive/models"

	"github.com/gin-gonic/gin"
)

// GetNotifications 查詢自己的通知，unread=1 只回未讀
func GetNotifications(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	notifications, err := notificationService.ListNotifications(userID, c.Query("unread") == "1")
	if err != nil {
		log.Printf("Failed to list notifications for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢通知失敗"})
		return
	}

	responses := make([]models.NotificationResponse, len(notifications))
	for i := range notifications {
		responses[i] = notifications[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", responses)
}

// MarkAsReadInput 批次標記已讀的輸入結構體
type MarkAsReadInput struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// MarkNotificationsAsRead 批次標記已讀，只會動自己的通知
func MarkNotificationsAsRead(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var input MarkAsReadInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   "請提供通知 ID 列表",
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	updated, err := notificationService.MarkRead(userID, input.IDs)
	if err != nil {
		log.Printf("Failed to mark notifications read for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "標記已讀失敗"})
		return
	}

	SuccessResponse(c, http.StatusOK, "標記成功", gin.H{"updated": updated})
}

// NotificationStream websocket 升級，推播 notification:new / notification:read
func NotificationStream(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	if err := hub.HandleConnection(c.Writer, c.Request, userID); err != nil {
		log.Printf("Websocket connection failed for user %d: %v", userID, err)
	}
}
