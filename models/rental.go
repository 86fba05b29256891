package models

import "time"

// 租約狀態
const (
	RentalStatusPending    = "pending"     // 待確認
	RentalStatusConfirmed  = "confirmed"   // 已確認
	RentalStatusInProgress = "in_progress" // 取車進行中
	RentalStatusCompleted  = "completed"   // 已完成
	RentalStatusCancelled  = "cancelled"   // 已取消
)

// 租約付款狀態
const (
	RentalPaymentPending           = "pending"
	RentalPaymentPaid              = "paid"
	RentalPaymentPartiallyRefunded = "partially_refunded"
	RentalPaymentRefunded          = "refunded"
	RentalPaymentFailed            = "failed"
)

type Rental struct {
	RentalID           int        `json:"rental_id" gorm:"primaryKey;autoIncrement;type:INT"`
	CarID              int        `json:"car_id" gorm:"index;not null;type:INT" binding:"required,gt=0"` // 車輛ID
	UserID             int        `json:"user_id" gorm:"index;not null;type:INT"`                        // 承租人ID
	StartDate          time.Time  `json:"start_date" gorm:"type:datetime;not null"`                      // 取車日期
	EndDate            time.Time  `json:"end_date" gorm:"type:datetime;not null"`                        // 還車日期
	TotalDays          int        `json:"total_days" gorm:"type:INT;not null"`                           // 衍生欄位：ceil(天數)，最少 1
	DailyRate          float64    `json:"daily_rate" gorm:"type:decimal(10,2);not null"`                 // 下訂當下的 Car.DailyRate 快照，之後不重算
	TaxAmount          float64    `json:"tax_amount" gorm:"type:decimal(10,2);default:0.0" binding:"gte=0"`
	InsuranceFee       float64    `json:"insurance_fee" gorm:"type:decimal(10,2);default:0.0" binding:"gte=0"`
	AdditionalFees     float64    `json:"additional_fees" gorm:"type:decimal(10,2);default:0.0" binding:"gte=0"`
	TotalCost          float64    `json:"total_cost" gorm:"type:decimal(10,2);not null"` // daily_rate*total_days + 各項費用
	Status             string     `json:"status" gorm:"type:enum('pending', 'confirmed', 'in_progress', 'completed', 'cancelled');not null;default:'pending';index"`
	PaymentStatus      string     `json:"payment_status" gorm:"type:enum('pending', 'paid', 'partially_refunded', 'refunded', 'failed');not null;default:'pending'"`
	PaymentMethod      string     `json:"payment_method" gorm:"type:varchar(20)"`
	PaymentDate        *time.Time `json:"payment_date" gorm:"type:datetime;default:null"`
	PaymentID          string     `json:"payment_id" gorm:"type:varchar(100)"` // 外部金流參考編號
	PickupLocation     string     `json:"pickup_location" gorm:"type:varchar(100)"`
	DropoffLocation    string     `json:"dropoff_location" gorm:"type:varchar(100)"`
	CancellationReason string     `json:"cancellation_reason" gorm:"type:varchar(255)"`
	CancellationDate   *time.Time `json:"cancellation_date" gorm:"type:datetime;default:null"`
	CreatedAt          time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"column:updated_at"`
	Car                Car        `json:"-" gorm:"foreignKey:car_id;references:CarID"`
	User               User       `json:"-" gorm:"foreignKey:user_id;references:UserID"`
}

func (Rental) TableName() string {
	return "rental"
}

type SimpleRentalResponse struct {
	RentalID      int       `json:"rental_id"`
	CarID         int       `json:"car_id"`
	UserID        int       `json:"user_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	TotalDays     int       `json:"total_days"`
	TotalCost     float64   `json:"total_cost"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
}

type RentalResponse struct {
	RentalID           int         `json:"rental_id"`
	CarID              int         `json:"car_id"`
	UserID             int         `json:"user_id"`
	StartDate          time.Time   `json:"start_date"`
	EndDate            time.Time   `json:"end_date"`
	TotalDays          int         `json:"total_days"`
	DailyRate          float64     `json:"daily_rate"`
	TaxAmount          float64     `json:"tax_amount"`
	InsuranceFee       float64     `json:"insurance_fee"`
	AdditionalFees     float64     `json:"additional_fees"`
	TotalCost          float64     `json:"total_cost"`
	Status             string      `json:"status"`
	PaymentStatus      string      `json:"payment_status"`
	PaymentMethod      string      `json:"payment_method,omitempty"`
	PaymentDate        *time.Time  `json:"payment_date,omitempty"`
	PickupLocation     string      `json:"pickup_location"`
	DropoffLocation    string      `json:"dropoff_location"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	CancellationDate   *time.Time  `json:"cancellation_date,omitempty"`
	Car                CarResponse `json:"car"`
}

func (r *Rental) ToSimpleResponse() SimpleRentalResponse {
	return SimpleRentalResponse{
		RentalID:      r.RentalID,
		CarID:         r.CarID,
		UserID:        r.UserID,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		TotalDays:     r.TotalDays,
		TotalCost:     r.TotalCost,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
	}
}

func (r *Rental) ToResponse() RentalResponse {
	return RentalResponse{
		RentalID:           r.RentalID,
		CarID:              r.CarID,
		UserID:             r.UserID,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		TotalDays:          r.TotalDays,
		DailyRate:          r.DailyRate,
		TaxAmount:          r.TaxAmount,
		InsuranceFee:       r.InsuranceFee,
		AdditionalFees:     r.AdditionalFees,
		TotalCost:          r.TotalCost,
		Status:             r.Status,
		PaymentStatus:      r.PaymentStatus,
		PaymentMethod:      r.PaymentMethod,
		PaymentDate:        r.PaymentDate,
		PickupLocation:     r.PickupLocation,
		DropoffLocation:    r.DropoffLocation,
		CancellationReason: r.CancellationReason,
		CancellationDate:   r.CancellationDate,
		Car:                r.Car.ToResponse(),
	}
}
