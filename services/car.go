package services

import (
	"errors"
	"fmt"
	"log"

	"carhive/database"
	"carhive/models"

	"gorm.io/gorm"
)

// CreateCar 車主上架車輛
func CreateCar(car *models.Car) error {
	if car.DailyRate <= 0 {
		return fmt.Errorf("daily_rate must be greater than 0, got %.2f", car.DailyRate)
	}

	car.IsAvailable = true
	if err := database.DB.Create(car).Error; err != nil {
		log.Printf("Failed to create car for owner %d: %v", car.OwnerID, err)
		return fmt.Errorf("failed to create car: %w", err)
	}

	log.Printf("Car %d (%s %s) created by owner %d", car.CarID, car.Make, car.Model, car.OwnerID)
	return nil
}

// CarFilter 車輛查詢條件
type CarFilter struct {
	CarType      string
	Transmission string
	FuelType     string
	MaxDailyRate float64
	OwnerID      int
}

// GetCars 查詢車輛列表，預設只回上架中的車
func GetCars(filter CarFilter, includeRetired bool) ([]models.Car, error) {
	query := database.DB.Model(&models.Car{})
	if !includeRetired {
		query = query.Where("is_available = ?", true)
	}
	if filter.CarType != "" {
		query = query.Where("car_type = ?", filter.CarType)
	}
	if filter.Transmission != "" {
		query = query.Where("transmission = ?", filter.Transmission)
	}
	if filter.FuelType != "" {
		query = query.Where("fuel_type = ?", filter.FuelType)
	}
	if filter.MaxDailyRate > 0 {
		query = query.Where("daily_rate <= ?", filter.MaxDailyRate)
	}
	if filter.OwnerID > 0 {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}

	var cars []models.Car
	if err := query.Order("car_id").Find(&cars).Error; err != nil {
		log.Printf("Failed to query cars: %v", err)
		return nil, fmt.Errorf("failed to query cars: %w", err)
	}
	return cars, nil
}

// GetCarByID 根據ID查詢車輛
func GetCarByID(id int) (*models.Car, error) {
	var car models.Car
	if err := database.DB.First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Car with ID %d not found", id)
			return nil, nil
		}
		log.Printf("Failed to get car by ID %d: %v", id, err)
		return nil, fmt.Errorf("failed to get car by ID %d: %w", id, err)
	}
	return &car, nil
}

// UpdateCar 更新車輛資料，僅限車主本人或管理員。改 daily_rate 不影響
// 已成立的租約（租約帶著下訂當下的快照）。
func UpdateCar(id int, updatedFields map[string]interface{}, currentUserID int, role string) error {
	car, err := GetCarByID(id)
	if err != nil {
		return err
	}
	if car == nil {
		return fmt.Errorf("car %d not found", id)
	}
	if role != models.RoleAdmin && car.OwnerID != currentUserID {
		return fmt.Errorf("only the owner or an admin can update car %d", id)
	}

	delete(updatedFields, "car_id")
	delete(updatedFields, "owner_id")

	if rate, ok := updatedFields["daily_rate"].(float64); ok && rate <= 0 {
		return fmt.Errorf("daily_rate must be greater than 0, got %.2f", rate)
	}

	if err := database.DB.Model(&models.Car{}).Where("car_id = ?", id).Updates(updatedFields).Error; err != nil {
		log.Printf("Failed to update car %d: %v", id, err)
		return fmt.Errorf("failed to update car %d: %w", id, err)
	}

	log.Printf("Successfully updated car %d", id)
	return nil
}

// RetireCar 下架車輛。有租約紀錄的車不硬刪除，改設 is_available=false
// 保留歷史資料；完全沒租過的車直接刪掉。
func RetireCar(id int, currentUserID int, role string) error {
	car, err := GetCarByID(id)
	if err != nil {
		return err
	}
	if car == nil {
		return fmt.Errorf("car %d not found", id)
	}
	if role != models.RoleAdmin && car.OwnerID != currentUserID {
		return fmt.Errorf("only the owner or an admin can retire car %d", id)
	}

	var rentalCount int64
	if err := database.DB.Model(&models.Rental{}).Where("car_id = ?", id).Count(&rentalCount).Error; err != nil {
		return fmt.Errorf("failed to count rentals for car %d: %w", id, err)
	}

	if rentalCount > 0 {
		if err := database.DB.Model(&models.Car{}).Where("car_id = ?", id).Update("is_available", false).Error; err != nil {
			log.Printf("Failed to retire car %d: %v", id, err)
			return fmt.Errorf("failed to retire car %d: %w", id, err)
		}
		log.Printf("Car %d soft-retired (%d rentals reference it)", id, rentalCount)
		return nil
	}

	if err := database.DB.Delete(&models.Car{}, id).Error; err != nil {
		log.Printf("Failed to delete car %d: %v", id, err)
		return fmt.Errorf("failed to delete car %d: %w", id, err)
	}
	log.Printf("Car %d deleted (no rentals reference it)", id)
	return nil
}
