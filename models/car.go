package models

import (
	"encoding/json"
	"log"
	"time"
)

// Car 車輛表：車主上架的出租車輛
type Car struct {
	CarID        int       `json:"car_id" gorm:"primaryKey;autoIncrement;type:INT"`
	OwnerID      int       `json:"owner_id" gorm:"index;not null;type:INT;column:owner_id" binding:"omitempty,gt=0"` // 車主ID
	Make         string    `json:"make" gorm:"type:varchar(50);not null" binding:"required,max=50"`                  // 廠牌
	Model        string    `json:"model" gorm:"type:varchar(50);not null" binding:"required,max=50"`                 // 車型
	Year         int       `json:"year" gorm:"type:INT;not null" binding:"required,gte=1980,lte=2100"`               // 年份
	CarType      string    `json:"car_type" gorm:"type:enum('sedan', 'suv', 'hatchback', 'van', 'pickup');not null" binding:"required,oneof=sedan suv hatchback van pickup"`
	Transmission string    `json:"transmission" gorm:"type:enum('automatic', 'manual');not null" binding:"required,oneof=automatic manual"`
	FuelType     string    `json:"fuel_type" gorm:"type:enum('petrol', 'diesel', 'hybrid', 'electric');not null" binding:"required,oneof=petrol diesel hybrid electric"`
	Seats        int       `json:"seats" gorm:"type:INT;default:5" binding:"omitempty,gte=1,lte=12"`
	DailyRate    float64   `json:"daily_rate" gorm:"type:decimal(10,2);not null" binding:"required,gt=0"` // 每日租金
	Features     string    `json:"-" gorm:"type:text;column:features"`                                    // JSON 序列化的配備清單（保留順序）
	IsAvailable  bool      `json:"is_available" gorm:"column:is_available;default:true"`                  // 快取旗標，非權威資料（以租約重疊檢查為準）
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
	Owner        User      `json:"-" gorm:"foreignKey:OwnerID;references:UserID"`
	Rentals      []Rental  `json:"-" gorm:"foreignKey:car_id;references:CarID"`
}

func (Car) TableName() string {
	return "car"
}

// FeatureList 反序列化配備清單
func (c *Car) FeatureList() []string {
	if c.Features == "" {
		return nil
	}
	var features []string
	if err := json.Unmarshal([]byte(c.Features), &features); err != nil {
		log.Printf("Failed to unmarshal features for car %d: %v", c.CarID, err)
		return nil
	}
	return features
}

// SetFeatureList 序列化配備清單
func (c *Car) SetFeatureList(features []string) error {
	if len(features) == 0 {
		c.Features = ""
		return nil
	}
	b, err := json.Marshal(features)
	if err != nil {
		return err
	}
	c.Features = string(b)
	return nil
}

type CarResponse struct {
	CarID        int      `json:"car_id"`
	OwnerID      int      `json:"owner_id"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	CarType      string   `json:"car_type"`
	Transmission string   `json:"transmission"`
	FuelType     string   `json:"fuel_type"`
	Seats        int      `json:"seats"`
	DailyRate    float64  `json:"daily_rate"`
	Features     []string `json:"features"`
	IsAvailable  bool     `json:"is_available"`
	CreatedAt    string   `json:"created_at"`
}

func (c *Car) ToResponse() CarResponse {
	return CarResponse{
		CarID:        c.CarID,
		OwnerID:      c.OwnerID,
		Make:         c.Make,
		Model:        c.Model,
		Year:         c.Year,
		CarType:      c.CarType,
		Transmission: c.Transmission,
		FuelType:     c.FuelType,
		Seats:        c.Seats,
		DailyRate:    c.DailyRate,
		Features:     c.FeatureList(),
		IsAvailable:  c.IsAvailable,
		CreatedAt:    c.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
