package models

import "time"

// Review 評價表：租約完成後承租人可留下一筆評價
type Review struct {
	ReviewID  int       `json:"review_id" gorm:"primaryKey;autoIncrement;type:INT"`
	RentalID  int       `json:"rental_id" gorm:"uniqueIndex;not null;type:INT" binding:"required,gt=0"` // 一筆租約一筆評價
	CarID     int       `json:"car_id" gorm:"index;not null;type:INT"`
	UserID    int       `json:"user_id" gorm:"index;not null;type:INT"`
	Rating    int       `json:"rating" gorm:"type:INT;not null" binding:"required,gte=1,lte=5"` // 1 到 5 星
	Comment   string    `json:"comment" gorm:"type:varchar(500)" binding:"omitempty,max=500"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	Rental    Rental    `json:"-" gorm:"foreignKey:rental_id;references:RentalID"`
	Car       Car       `json:"-" gorm:"foreignKey:car_id;references:CarID"`
	User      User      `json:"-" gorm:"foreignKey:user_id;references:UserID"`
}

func (Review) TableName() string {
	return "review"
}

type ReviewResponse struct {
	ReviewID  int       `json:"review_id"`
	RentalID  int       `json:"rental_id"`
	CarID     int       `json:"car_id"`
	UserID    int       `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Review) ToResponse() ReviewResponse {
	return ReviewResponse{
		ReviewID:  r.ReviewID,
		RentalID:  r.RentalID,
		CarID:     r.CarID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}
