package models

import (
	"encoding/json"
	"log"
	"time"
)

// 通知事件類型
const (
	NotificationTypeRentalStatus  = "rental_status_update"
	NotificationTypePaymentStatus = "payment_status_update"
	NotificationTypeSystem        = "system"
)

type Notification struct {
	NotificationID int       `json:"notification_id" gorm:"primaryKey;autoIncrement;type:INT"`
	UserID         int       `json:"user_id" gorm:"index;not null;type:INT"` // 收件人ID
	Title          string    `json:"title" gorm:"type:varchar(100);not null"`
	Message        string    `json:"message" gorm:"type:varchar(500);not null"`
	Type           string    `json:"type" gorm:"type:varchar(50);not null"` // 觸發事件的標籤，例如 rental_status_update
	IsRead         bool      `json:"is_read" gorm:"column:is_read;default:false"`
	Data           string    `json:"-" gorm:"type:text"` // JSON 序列化的附加資料，供前端連結用
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
	User           User      `json:"-" gorm:"foreignKey:user_id;references:UserID"`
}

func (Notification) TableName() string {
	return "notification"
}

type NotificationResponse struct {
	NotificationID int                    `json:"notification_id"`
	UserID         int                    `json:"user_id"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Type           string                 `json:"type"`
	IsRead         bool                   `json:"is_read"`
	Data           map[string]interface{} `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

func (n *Notification) ToResponse() NotificationResponse {
	var data map[string]interface{}
	if n.Data != "" {
		if err := json.Unmarshal([]byte(n.Data), &data); err != nil {
			log.Printf("Failed to unmarshal data for notification %d: %v", n.NotificationID, err)
		}
	}
	return NotificationResponse{
		NotificationID: n.NotificationID,
		UserID:         n.UserID,
		Title:          n.Title,
		Message:        n.Message,
		Type:           n.Type,
		IsRead:         n.IsRead,
		Data:           data,
		CreatedAt:      n.CreatedAt,
	}
}
