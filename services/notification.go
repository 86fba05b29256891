package services

import (
	"encoding/json"
	"fmt"
	"log"

	"carhive/models"
)

// Pusher 即時推播通道（websocket hub）。推播失敗只記錄，不影響主流程。
type Pusher interface {
	Push(userID int, event string, payload interface{}) error
}

// NotificationService 通知派送：先寫入通知表，再對使用者的連線推播事件。
type NotificationService struct {
	store  Store
	pusher Pusher
}

func NewNotificationService(store Store, pusher Pusher) *NotificationService {
	return &NotificationService{store: store, pusher: pusher}
}

// Notify 建立通知並推播 notification:new。同一個邏輯事件呼叫端只能叫一次。
func (s *NotificationService) Notify(userID int, ntype, title, message string, data map[string]interface{}) error {
	notification := &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    ntype,
	}

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			log.Printf("Failed to marshal notification data for user %d: %v", userID, err)
		} else {
			notification.Data = string(b)
		}
	}

	if err := s.store.CreateNotification(notification); err != nil {
		log.Printf("Failed to create notification for user %d: %v", userID, err)
		return fmt.Errorf("failed to create notification: %w", err)
	}

	// 即時推播失敗不影響已寫入的通知，前端之後輪詢也拿得到
	if s.pusher != nil {
		if err := s.pusher.Push(userID, "notification:new", notification.ToResponse()); err != nil {
			log.Printf("Failed to push notification %d to user %d: %v", notification.NotificationID, userID, err)
		}
	}

	log.Printf("Notification %d (%s) created for user %d", notification.NotificationID, ntype, userID)
	return nil
}

// MarkRead 批次標記已讀，只動 userID 自己的通知，其餘 id 靜默略過
func (s *NotificationService) MarkRead(userID int, ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	updated, err := s.store.MarkNotificationsRead(userID, ids)
	if err != nil {
		log.Printf("Failed to mark notifications read for user %d: %v", userID, err)
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	if updated > 0 && s.pusher != nil {
		if err := s.pusher.Push(userID, "notification:read", map[string]interface{}{"ids": ids}); err != nil {
			log.Printf("Failed to push read event to user %d: %v", userID, err)
		}
	}

	log.Printf("Marked %d notifications read for user %d", updated, userID)
	return updated, nil
}

// ListNotifications 查詢使用者的通知
func (s *NotificationService) ListNotifications(userID int, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.store.NotificationsByUser(userID, unreadOnly)
	if err != nil {
		log.Printf("Failed to list notifications for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
