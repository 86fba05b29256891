package models

import "time"

// Wishlist 願望清單：使用者收藏的車輛，(user_id, car_id) 不重複
type Wishlist struct {
	WishlistID int       `json:"wishlist_id" gorm:"primaryKey;autoIncrement;type:INT"`
	UserID     int       `json:"user_id" gorm:"uniqueIndex:idx_user_car;not null;type:INT"`
	CarID      int       `json:"car_id" gorm:"uniqueIndex:idx_user_car;not null;type:INT" binding:"required,gt=0"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	Car        Car       `json:"-" gorm:"foreignKey:car_id;references:CarID"`
	User       User      `json:"-" gorm:"foreignKey:user_id;references:UserID"`
}

func (Wishlist) TableName() string {
	return "wishlist"
}

type WishlistResponse struct {
	WishlistID int         `json:"wishlist_id"`
	CarID      int         `json:"car_id"`
	Car        CarResponse `json:"car"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (w *Wishlist) ToResponse() WishlistResponse {
	return WishlistResponse{
		WishlistID: w.WishlistID,
		CarID:      w.CarID,
		Car:        w.Car.ToResponse(),
		CreatedAt:  w.CreatedAt,
	}
}
