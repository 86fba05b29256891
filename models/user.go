package models

import "time"

// 使用者角色
const (
	RoleRenter = "renter" // 承租人
	RoleOwner  = "owner"  // 車主
	RoleAdmin  = "admin"  // 管理員
)

type User struct {
	UserID      int       `json:"user_id" gorm:"primaryKey;autoIncrement;type:INT"`
	Name        string    `json:"name" gorm:"type:varchar(50);not null"`
	Email       string    `json:"email" gorm:"type:varchar(100);not null;uniqueIndex"`
	Phone       string    `json:"phone" gorm:"type:varchar(20);not null"`
	Password    string    `json:"password" gorm:"type:varchar(100);not null"`
	Role        string    `json:"role" gorm:"type:enum('renter', 'owner', 'admin');not null;default:'renter'"`
	PaymentInfo string    `json:"payment_info" gorm:"type:varchar(255)"` // AES 加密儲存
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
	Cars        []Car     `json:"-" gorm:"foreignKey:owner_id;references:UserID"`
	Rentals     []Rental  `json:"-" gorm:"foreignKey:user_id;references:UserID"`
}

func (User) TableName() string {
	return "user"
}

type UserResponse struct {
	UserID      int    `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	PaymentInfo string `json:"payment_info,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		UserID:      u.UserID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Role:        u.Role,
		PaymentInfo: u.PaymentInfo,
		CreatedAt:   u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
