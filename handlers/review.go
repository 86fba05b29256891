package handlers

import (
	"log"
	"net/http"
	"strconv"

	"carhive/models"
	"carhive/services"

	"github.com/gin-gonic/gin"
)

// ReviewInput 建立評價的輸入結構體
type ReviewInput struct {
	RentalID int    `json:"rental_id" binding:"required,gt=0"`
	Rating   int    `json:"rating" binding:"required,gte=1,lte=5"`
	Comment  string `json:"comment" binding:"omitempty,max=500"`
}

// CreateReview 建立評價資料檢查
func CreateReview(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var input ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   "請提供租約 ID 和 1 到 5 的評分",
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	review := models.Review{
		RentalID: input.RentalID,
		UserID:   userID,
		Rating:   input.Rating,
		Comment:  input.Comment,
	}
	if err := services.CreateReview(&review); err != nil {
		log.Printf("Failed to create review for rental %d: %v", input.RentalID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	SuccessResponse(c, http.StatusCreated, "評價建立成功", review.ToResponse())
}

// GetCarReviews 查詢車輛評價（公開）
func GetCarReviews(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的車輛ID"})
		return
	}

	reviews, err := services.GetCarReviews(id)
	if err != nil {
		log.Printf("Failed to get reviews for car %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢評價失敗"})
		return
	}

	responses := make([]models.ReviewResponse, len(reviews))
	for i := range reviews {
		responses[i] = reviews[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", responses)
}
