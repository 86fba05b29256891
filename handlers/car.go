package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"carhive/database"
	"carhive/models"
	"carhive/services"

	"github.com/gin-gonic/gin"
)

// CarInput 上架車輛的輸入結構體
type CarInput struct {
	Make         string   `json:"make" binding:"required,max=50"`
	Model        string   `json:"model" binding:"required,max=50"`
	Year         int      `json:"year" binding:"required,gte=1980,lte=2100"`
	CarType      string   `json:"car_type" binding:"required,oneof=sedan suv hatchback van pickup"`
	Transmission string   `json:"transmission" binding:"required,oneof=automatic manual"`
	FuelType     string   `json:"fuel_type" binding:"required,oneof=petrol diesel hybrid electric"`
	Seats        int      `json:"seats" binding:"omitempty,gte=1,lte=12"`
	DailyRate    float64  `json:"daily_rate" binding:"required,gt=0"`
	Features     []string `json:"features"`
}

// CreateCar 上架車輛資料檢查
func CreateCar(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	if role != models.RoleOwner && role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{
			"status":  false,
			"message": "只有車主可以上架車輛",
			"error":   "only owners can list cars",
			"code":    "ERR_INSUFFICIENT_PERMISSIONS",
		})
		return
	}

	var input CarInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Printf("Invalid input data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的輸入資料",
			"error":   err.Error(),
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	car := models.Car{
		OwnerID:      userID,
		Make:         input.Make,
		Model:        input.Model,
		Year:         input.Year,
		CarType:      input.CarType,
		Transmission: input.Transmission,
		FuelType:     input.FuelType,
		Seats:        input.Seats,
		DailyRate:    input.DailyRate,
	}
	if car.Seats == 0 {
		car.Seats = 5
	}
	if err := car.SetFeatureList(input.Features); err != nil {
		log.Printf("Failed to serialize features: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的配備清單",
			"error":   err.Error(),
			"code":    "ERR_INVALID_INPUT",
		})
		return
	}

	if err := services.CreateCar(&car); err != nil {
		log.Printf("Failed to create car for owner %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上架車輛失敗"})
		return
	}

	SuccessResponse(c, http.StatusCreated, "車輛上架成功", car.ToResponse())
}

// GetCars 查詢車輛列表（公開）
func GetCars(c *gin.Context) {
	filter := services.CarFilter{
		CarType:      c.Query("car_type"),
		Transmission: c.Query("transmission"),
		FuelType:     c.Query("fuel_type"),
	}
	if maxRateStr := c.Query("max_daily_rate"); maxRateStr != "" {
		maxRate, err := strconv.ParseFloat(maxRateStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "無效的 max_daily_rate"})
			return
		}
		filter.MaxDailyRate = maxRate
	}

	cars, err := services.GetCars(filter, false)
	if err != nil {
		log.Printf("Failed to get cars: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查詢車輛失敗"})
		return
	}

	carResponses := make([]models.CarResponse, len(cars))
	for i, car := range cars {
		carResponses[i] = car.ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "查詢成功", carResponses)
}

// GetCar 查詢特定車輛（公開）
func GetCar(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Printf("Invalid car ID: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的車輛ID"})
		return
	}

	car, err := services.GetCarByID(id)
	if err != nil {
		log.Printf("Failed to get car %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "伺服器錯誤"})
		return
	}
	if car == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "車輛不存在"})
		return
	}

	SuccessResponse(c, http.StatusOK, "查詢成功", car.ToResponse())
}

// CheckCarAvailability 查詢車輛在指定日期區間是否可租
func CheckCarAvailability(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的車輛ID"})
		return
	}

	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的開始日期格式",
			"error":   "start must be in 'YYYY-MM-DD' format",
			"code":    "ERR_INVALID_TIME_FORMAT",
		})
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "無效的結束日期格式",
			"error":   "end must be in 'YYYY-MM-DD' format",
			"code":    "ERR_INVALID_TIME_FORMAT",
		})
		return
	}
	if !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  false,
			"message": "結束日期必須晚於開始日期",
			"error":   "end must be after start",
			"code":    "ERR_INVALID_TIME",
		})
		return
	}

	available, err := services.IsCarAvailable(services.NewStore(database.DB), id, start, end, 0)
	if err != nil {
		log.Printf("Failed to check availability for car %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "伺服器錯誤"})
		return
	}

	SuccessResponse(c, http.StatusOK, "查詢成功", gin.H{
		"car_id":    id,
		"start":     start.Format("2006-01-02"),
		"end":       end.Format("2006-01-02"),
		"available": available,
	})
}

// UpdateCar 更新車輛資料檢查
func UpdateCar(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的車輛ID"})
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

	if err := services.UpdateCar(id, updatedFields, userID, role); err != nil {
		log.Printf("Failed to update car %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	SuccessResponse(c, http.StatusOK, "更新成功", nil)
}

// RetireCar 下架車輛資料檢查
func RetireCar(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的車輛ID"})
		return
	}

	if err := services.RetireCar(id, userID, role); err != nil {
		log.Printf("Failed to retire car %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	SuccessResponse(c, http.StatusOK, "車輛已下架", nil)
}
