package services

import (
	"errors"
	"fmt"
	"log"

	"carhive/database"
	"carhive/models"
	"carhive/utils"

	"gorm.io/gorm"
)

// RegisterUser 註冊使用者
func RegisterUser(user *models.User) error {
	// 檢查是否有重複的 email
	var existingUser models.User
	if err := database.DB.Where("email = ?", user.Email).First(&existingUser).Error; err == nil {
		return fmt.Errorf("email %s is already in use", user.Email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Failed to check for duplicate email: %v", err)
		return fmt.Errorf("failed to check for duplicate email: %w", err)
	}

	// 驗證角色
	if user.Role != models.RoleRenter && user.Role != models.RoleOwner {
		return fmt.Errorf("invalid role: must be 'renter' or 'owner'")
	}

	// 哈希密碼
	hashedPassword, err := utils.HashPassword(user.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hashedPassword

	// 加密 payment_info
	if user.PaymentInfo != "" {
		encryptedPaymentInfo, err := utils.EncryptPaymentInfo(user.PaymentInfo)
		if err != nil {
			log.Printf("Failed to encrypt payment_info: %v", err)
			return fmt.Errorf("failed to encrypt payment_info: %w", err)
		}
		user.PaymentInfo = encryptedPaymentInfo
	}

	if err := database.DB.Create(user).Error; err != nil {
		log.Printf("Failed to register user: %v", err)
		return fmt.Errorf("failed to register user: %w", err)
	}

	log.Printf("Successfully registered user with ID %d", user.UserID)
	return nil
}

// LoginUser 登入使用者
func LoginUser(email, password string) (*models.User, error) {
	var user models.User
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("User with email %s not found", email)
			return nil, fmt.Errorf("無效的電子郵件或密碼")
		}
		log.Printf("Failed to login user: %v", err)
		return nil, fmt.Errorf("failed to login user: %w", err)
	}

	// 驗證密碼
	if !utils.CheckPasswordHash(password, user.Password) {
		log.Printf("Invalid password for email %s", email)
		return nil, fmt.Errorf("無效的電子郵件或密碼")
	}

	log.Printf("User with ID %d logged in successfully", user.UserID)
	return &user, nil
}

// GetUserByID 根據ID查詢使用者
func GetUserByID(id int) (*models.User, error) {
	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("User with ID %d not found", id)
			return nil, nil
		}
		log.Printf("Failed to get user by ID %d: %v", id, err)
		return nil, fmt.Errorf("failed to get user by ID %d: %w", id, err)
	}

	// 解密 payment_info
	if user.PaymentInfo != "" {
		decryptedPaymentInfo, err := utils.DecryptPaymentInfo(user.PaymentInfo)
		if err != nil {
			log.Printf("Failed to decrypt payment_info for user %d: %v", id, err)
			user.PaymentInfo = ""
		} else {
			user.PaymentInfo = decryptedPaymentInfo
		}
	}

	return &user, nil
}

// GetAllUsers 查詢所有使用者（不解密 payment_info）
func GetAllUsers() ([]models.User, error) {
	var users []models.User
	if err := database.DB.Find(&users).Error; err != nil {
		log.Printf("Failed to query all users: %v", err)
		return nil, fmt.Errorf("failed to query all users: %w", err)
	}
	for i := range users {
		users[i].PaymentInfo = ""
	}
	return users, nil
}

// UpdateUser 更新使用者資料，敏感欄位先處理再寫入
func UpdateUser(id int, updatedFields map[string]interface{}) error {
	// 狀態欄位不允許由這個路徑修改
	delete(updatedFields, "user_id")
	delete(updatedFields, "role")

	if password, ok := updatedFields["password"].(string); ok {
		hashedPassword, err := utils.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		updatedFields["password"] = hashedPassword
	}

	if paymentInfo, ok := updatedFields["payment_info"].(string); ok && paymentInfo != "" {
		encrypted, err := utils.EncryptPaymentInfo(paymentInfo)
		if err != nil {
			return fmt.Errorf("failed to encrypt payment_info: %w", err)
		}
		updatedFields["payment_info"] = encrypted
	}

	result := database.DB.Model(&models.User{}).Where("user_id = ?", id).Updates(updatedFields)
	if result.Error != nil {
		log.Printf("Failed to update user %d: %v", id, result.Error)
		return fmt.Errorf("failed to update user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %d not found", id)
	}

	log.Printf("Successfully updated user %d", id)
	return nil
}

// DeleteUser 刪除使用者
func DeleteUser(id int) error {
	result := database.DB.Delete(&models.User{}, id)
	if result.Error != nil {
		log.Printf("Failed to delete user %d: %v", id, result.Error)
		return fmt.Errorf("failed to delete user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	log.Printf("Successfully deleted user %d", id)
	return nil
}
