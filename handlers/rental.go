package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"carhive/database"
	"carhive/models"
	"carhive/services"

	"github.com/gin-gonic/gin"
)

// RentalInput 定義用於綁定建立租約請求的輸入結構體
type RentalInput struct {
	CarID           int     `json:"car_id" binding:"required,gt=0"`
	StartDate       string  `json:"start_date" binding:"required"`
	EndDate         string  `json:"end_date" binding:"required"`
	PickupLocation  string  `json:"pickup_location" binding:"required,max=100"`
	DropoffLocation string  `json:"dropoff_location" binding:"required,max=100"`
	TaxAmount       float64 `json:"tax_amount" binding:"gte=0"`
	InsuranceFee    float64 `json:"insurance_fee" binding:"gte=0"`
	AdditionalFees  float64 `json:"additional_fees" binding:"gte=0"`
}

// parseRentalDate 解析日期字串，接受 YYYY-MM-DD 或 RFC 3339 格式
func parseRentalDate(dateStr string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", dateStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date must be in 'YYYY-MM-DD' or RFC 3339 format")
}

// CreateRental 建立租約資料檢查
func CreateRental(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var input RentalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   "請提供車輛 ID、開始日期和結束日期",
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	startDate, err := parseRentalDate(input.StartDate)
	if err != nil {
		log.Printf("Failed to parse start_date %s: %v", input.StartDate, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的開始日期格式",
			"error":   err.Error(),
			"code":    "ERR_INVALID_TIME_FORMAT",
		})
		return
	}

	endDate, err := parseRentalDate(input.EndDate)
	if err != nil {
		log.Printf("Failed to parse end_date %s: %v", input.EndDate, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的結束日期格式",
			"error":   err.Error(),
			"code":    "ERR_INVALID_TIME_FORMAT",
		})
		return
	}

	rental, err := rentalService.CreateRental(services.CreateRentalInput{
		CarID:           input.CarID,
		UserID:          userID,
		StartDate:       startDate,
		EndDate:         endDate,
		PickupLocation:  input.PickupLocation,
		DropoffLocation: input.DropoffLocation,
		TaxAmount:       input.TaxAmount,
		InsuranceFee:    input.InsuranceFee,
		AdditionalFees:  input.AdditionalFees,
	})
	if err != nil {
		log.Printf("Failed to create rental for user %d: %v", userID, err)
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "租約建立成功，請完成付款", rental.ToSimpleResponse())
}

// GetRentals 查詢租約列表：承租人看自己的，車主看自己車輛的，管理員看全部
func GetRentals(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	query := database.DB.Preload("Car").Order("created_at DESC")
	switch role {
	case models.RoleAdmin:
		// 管理員不過濾
	case models.RoleOwner:
		query = query.Where(
			"user_id = ? OR car_id IN (?)", userID,
			database.DB.Model(&models.Car{}).Select("car_id").Where("owner_id = ?", userID),
		)
	default:
		query = query.Where("user_id = ?", userID)
	}

	var rentals []models.Rental
	if err := query.Find(&rentals).Error; err != nil {
		log.Printf("Failed to query rentals for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢租約失敗"})
		return
	}

	rentalResponses := make([]models.RentalResponse, len(rentals))
	for i := range rentals {
		rentalResponses[i] = rentals[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", rentalResponses)
}

// GetRental 查詢特定租約
func GetRental(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的租約ID"})
		return
	}

	rental, err := rentalService.GetRental(id, userID, role)
	if err != nil {
		log.Printf("Failed to get rental %d: %v", id, err)
		ServiceErrorResponse(c, err)
		return
	}
	if rental == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "租約不存在"})
		return
	}

	SuccessResponse(c, http.StatusOK, "查詢成功", rental.ToResponse())
}

// TransitionInput 狀態轉移的輸入結構體
type TransitionInput struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed in_progress completed cancelled"`
}

// TransitionRental 租約狀態轉移資料檢查
func TransitionRental(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的租約ID"})
		return
	}

	var input TransitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   "status 必須是 pending、confirmed、in_progress、completed 或 cancelled",
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	rental, err := rentalService.TransitionRental(c.Request.Context(), id, input.Status, userID, role)
	if err != nil {
		log.Printf("Failed to transition rental %d to %s: %v", id, input.Status, err)
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "狀態更新成功", rental.ToSimpleResponse())
}

// CancelInput 取消租約的輸入結構體
type CancelInput struct {
	Reason        string `json:"reason" binding:"omitempty,max=255"`
	AdminOverride bool   `json:"admin_override"` // 管理員覆核：退款失敗仍強制取消
}

// CancelRental 取消租約資料檢查
func CancelRental(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的租約ID"})
		return
	}

	// 取消原因可省略，沒有 body 時照預設值處理
	var input CancelInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			log.Printf("Invalid input data: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "無效的輸入資料"})
			return
		}
	}

	rental, err := rentalService.CancelRental(c.Request.Context(), id, input.Reason, userID, role, input.AdminOverride)
	if err != nil {
		log.Printf("Failed to cancel rental %d: %v", id, err)
		ServiceErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "租約已取消", rental.ToSimpleResponse())
}
