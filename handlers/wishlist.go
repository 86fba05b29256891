package handlers

import (
	"log"
	"net/http"
	"strconv"

	"carhive/models"
	"carhive/services"

	"github.com/gin-gonic/gin"
)

// WishlistInput 收藏車輛的輸入結構體
type WishlistInput struct {
	CarID int `json:"car_id" binding:"required,gt=0"`
}

// AddToWishlist 收藏車輛資料檢查
func AddToWishlist(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var input WishlistInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "請提供車輛 ID"})
		return
	}

	item, err := services.AddToWishlist(userID, input.CarID)
	if err != nil {
		log.Printf("Failed to add car %d to wishlist for user %d: %v", input.CarID, userID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	SuccessResponse(c, http.StatusCreated, "已加入收藏", item.ToResponse())
}

// GetWishlist 查詢收藏清單
func GetWishlist(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := services.GetWishlist(userID)
	if err != nil {
		log.Printf("Failed to get wishlist for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢收藏清單失敗"})
		return
	}

	responses := make([]models.WishlistResponse, len(items))
	for i := range items {
		responses[i] = items[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", responses)
}

// RemoveFromWishlist 移除收藏
func RemoveFromWishlist(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	carIDStr := c.Param("carId")
	carID, err := strconv.Atoi(carIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的車輛ID"})
		return
	}

	if err := services.RemoveFromWishlist(userID, carID); err != nil {
		log.Printf("Failed to remove car %d from wishlist for user %d: %v", carID, userID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	SuccessResponse(c, http.StatusOK, "已移除收藏", nil)
}
