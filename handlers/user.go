package handlers

import (
	"log"
	"net/http"
	"regexp"
	"strconv"

	"carhive/models"
	"carhive/services"
	"carhive/utils"

	"github.com/gin-gonic/gin"
)

// 電子郵件驗證 regex
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// 密碼強度驗證
var (
	passwordLetterRegex = regexp.MustCompile(`[a-zA-Z]`)
	passwordDigitRegex  = regexp.MustCompile(`[0-9]`)
)

// RegisterUser 註冊使用者資料檢查
func RegisterUser(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的輸入資料"})
		return
	}

	// 驗證電子郵件
	if user.Email == "" || !emailRegex.MatchString(user.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請提供有效的電子郵件地址"})
		return
	}

	// 驗證密碼（最少 8 個字元，至少一個字母和一個數字）
	if len(user.Password) < 8 || !passwordLetterRegex.MatchString(user.Password) || !passwordDigitRegex.MatchString(user.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "密碼必須至少8個字符，包含字母和數字"})
		return
	}

	// 註冊時只允許 renter 或 owner，admin 由系統種子建立
	if user.Role == "" {
		user.Role = models.RoleRenter
	}
	if user.Role != models.RoleRenter && user.Role != models.RoleOwner {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role 必須是 'renter' 或 'owner'"})
		return
	}

	if err := services.RegisterUser(&user); err != nil {
		log.Printf("Failed to register user with email %s: %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "註冊成功",
		"data":    user.ToResponse(),
	})
}

// LoginUser 登入資料檢查並簽發 token
func LoginUser(c *gin.Context) {
	var loginData struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginData); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的輸入資料"})
		return
	}

	if !emailRegex.MatchString(loginData.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請提供有效的電子郵件地址"})
		return
	}

	user, err := services.LoginUser(loginData.Email, loginData.Password)
	if err != nil {
		log.Printf("Login failed for email %s: %v", loginData.Email, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "登入失敗，檢查電子郵件或密碼"})
		return
	}

	token, err := utils.GenerateToken(user.UserID, user.Role)
	if err != nil {
		log.Printf("Failed to generate token for user %d: %v", user.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "伺服器錯誤"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "登入成功",
		"data": gin.H{
			"token": token,
			"user":  user.ToResponse(),
		},
	})
}

// GetUserProfile 查詢個人資料
func GetUserProfile(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := services.GetUserByID(userID)
	if err != nil {
		log.Printf("Failed to get profile for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "伺服器錯誤"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "使用者不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "查詢成功",
		"data":    user.ToResponse(),
	})
}

// GetAllUsers 查詢所有使用者（管理員）
func GetAllUsers(c *gin.Context) {
	users, err := services.GetAllUsers()
	if err != nil {
		log.Printf("Failed to get all users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢所有使用者失敗"})
		return
	}

	userResponses := make([]models.UserResponse, len(users))
	for i, user := range users {
		userResponses[i] = user.ToResponse()
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "查詢成功",
		"data":    userResponses,
	})
}

// UpdateUser 更新使用者資料（本人或管理員）
func UpdateUser(c *gin.Context) {
	currentUserID, role, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Printf("Invalid user ID: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的使用者ID"})
		return
	}

	if role != models.RoleAdmin && currentUserID != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "只能更新自己的資料"})
		return
	}

	var updatedFields map[string]interface{}
	if err := c.ShouldBindJSON(&updatedFields); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的輸入資料"})
		return
	}
	if len(updatedFields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未提供任何更新字段"})
		return
	}

	if err := services.UpdateUser(id, updatedFields); err != nil {
		log.Printf("Failed to update user %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "更新成功"})
}

// DeleteUser 刪除使用者（管理員）
func DeleteUser(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Printf("Invalid user ID: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的使用者ID"})
		return
	}

	if err := services.DeleteUser(id); err != nil {
		log.Printf("Failed to delete user %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "刪除成功"})
}
