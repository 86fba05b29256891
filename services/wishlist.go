package services

import (
	"errors"
	"fmt"
	"log"

	"carhive/database"
	"carhive/models"

	"gorm.io/gorm"
)

// AddToWishlist 收藏車輛，重複收藏回傳錯誤
func AddToWishlist(userID, carID int) (*models.Wishlist, error) {
	car, err := GetCarByID(carID)
	if err != nil {
		return nil, err
	}
	if car == nil {
		return nil, fmt.Errorf("car %d not found", carID)
	}

	var existing models.Wishlist
	if err := database.DB.Where("user_id = ? AND car_id = ?", userID, carID).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("car %d is already in the wishlist", carID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check wishlist: %w", err)
	}

	item := &models.Wishlist{UserID: userID, CarID: carID}
	if err := database.DB.Create(item).Error; err != nil {
		log.Printf("Failed to add car %d to wishlist for user %d: %v", carID, userID, err)
		return nil, fmt.Errorf("failed to add to wishlist: %w", err)
	}
	return item, nil
}

// GetWishlist 查詢使用者的收藏清單
func GetWishlist(userID int) ([]models.Wishlist, error) {
	var items []models.Wishlist
	if err := database.DB.Preload("Car").Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error; err != nil {
		log.Printf("Failed to query wishlist for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to query wishlist: %w", err)
	}
	return items, nil
}

// RemoveFromWishlist 移除收藏
func RemoveFromWishlist(userID, carID int) error {
	result := database.DB.Where("user_id = ? AND car_id = ?", userID, carID).Delete(&models.Wishlist{})
	if result.Error != nil {
		log.Printf("Failed to remove car %d from wishlist for user %d: %v", carID, userID, result.Error)
		return fmt.Errorf("failed to remove from wishlist: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("car %d is not in the wishlist", carID)
	}
	return nil
}
