package services

import (
	"errors"
	"fmt"
	"log"

	"carhive/database"
	"carhive/models"

	"gorm.io/gorm"
)

// CreateReview 承租人對已完成的租約留下評價，一筆租約一筆
func CreateReview(review *models.Review) error {
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", review.Rating)
	}

	var rental models.Rental
	if err := database.DB.First(&rental, review.RentalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("rental %d not found", review.RentalID)
		}
		return fmt.Errorf("failed to load rental %d: %w", review.RentalID, err)
	}

	if rental.UserID != review.UserID {
		return fmt.Errorf("only the renter can review rental %d", review.RentalID)
	}
	if rental.Status != models.RentalStatusCompleted {
		return fmt.Errorf("rental %d is not completed yet", review.RentalID)
	}

	var existing models.Review
	if err := database.DB.Where("rental_id = ?", review.RentalID).First(&existing).Error; err == nil {
		return fmt.Errorf("rental %d already has a review", review.RentalID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing review: %w", err)
	}

	review.CarID = rental.CarID
	if err := database.DB.Create(review).Error; err != nil {
		log.Printf("Failed to create review for rental %d: %v", review.RentalID, err)
		return fmt.Errorf("failed to create review: %w", err)
	}

	log.Printf("Review %d created for rental %d (rating %d)", review.ReviewID, review.RentalID, review.Rating)
	return nil
}

// GetCarReviews 查詢車輛的所有評價
func GetCarReviews(carID int) ([]models.Review, error) {
	var reviews []models.Review
	if err := database.DB.Where("car_id = ?", carID).Order("created_at DESC").Find(&reviews).Error; err != nil {
		log.Printf("Failed to query reviews for car %d: %v", carID, err)
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	return reviews, nil
}
