package models

import "time"

// 付款紀錄狀態
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusCancelled = "cancelled"
)

// 付款方式
const (
	PaymentMethodCard         = "card"
	PaymentMethodMobileMoney  = "mobile_money"
	PaymentMethodPaypal       = "paypal"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCash         = "cash"
)

// Payment 付款表：一筆租約可以有多次付款嘗試，最多一筆 completed。
// 付款紀錄是獨立的稽核資料，失敗的嘗試不就地修改，重試時新增一列。
type Payment struct {
	PaymentID        int        `json:"payment_id" gorm:"primaryKey;autoIncrement;type:INT"`
	RentalID         int        `json:"rental_id" gorm:"index;not null;type:INT"` // 租約ID
	UserID           int        `json:"user_id" gorm:"index;not null;type:INT"`   // 付款人ID
	Amount           float64    `json:"amount" gorm:"type:decimal(10,2);not null" binding:"gte=0"`
	Currency         string     `json:"currency" gorm:"type:varchar(3);default:'TWD'"`
	PaymentMethod    string     `json:"payment_method" gorm:"type:enum('card', 'mobile_money', 'paypal', 'bank_transfer', 'cash');not null"`
	PaymentStatus    string     `json:"payment_status" gorm:"type:enum('pending', 'completed', 'failed', 'refunded', 'cancelled');not null;default:'pending';index"`
	PaymentReference string     `json:"payment_reference" gorm:"type:varchar(100);uniqueIndex"` // 外部金流參考編號
	Gateway          string     `json:"gateway" gorm:"type:varchar(30);not null"`
	FailureReason    string     `json:"failure_reason" gorm:"type:varchar(255)"`
	CompletedAt      *time.Time `json:"completed_at" gorm:"type:datetime;default:null"`
	CreatedAt        time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"column:updated_at"`
	Rental           Rental     `json:"-" gorm:"foreignKey:rental_id;references:RentalID"`
	User             User       `json:"-" gorm:"foreignKey:user_id;references:UserID"`
}

func (Payment) TableName() string {
	return "payment"
}

// IsTerminal 是否已到達終態（終態付款不得再次套用和解）
func (p *Payment) IsTerminal() bool {
	return p.PaymentStatus == PaymentStatusCompleted ||
		p.PaymentStatus == PaymentStatusFailed ||
		p.PaymentStatus == PaymentStatusRefunded ||
		p.PaymentStatus == PaymentStatusCancelled
}

type PaymentResponse struct {
	PaymentID        int        `json:"payment_id"`
	RentalID         int        `json:"rental_id"`
	UserID           int        `json:"user_id"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentReference string     `json:"payment_reference"`
	Gateway          string     `json:"gateway"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (p *Payment) ToResponse() PaymentResponse {
	return PaymentResponse{
		PaymentID:        p.PaymentID,
		RentalID:         p.RentalID,
		UserID:           p.UserID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		PaymentMethod:    p.PaymentMethod,
		PaymentStatus:    p.PaymentStatus,
		PaymentReference: p.PaymentReference,
		Gateway:          p.Gateway,
		FailureReason:    p.FailureReason,
		CompletedAt:      p.CompletedAt,
		CreatedAt:        p.CreatedAt,
	}
}
