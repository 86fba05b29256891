package services

import (
	"errors"
	"time"

	"carhive/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 核心服務依賴的資料存取介面。ForUpdate 系列只能在 Transaction 內使用，
// 對應的資料列會加上列級鎖，讓重疊檢查與寫入序列化。
type Store interface {
	CarByID(id int) (*models.Car, error)
	CarByIDForUpdate(id int) (*models.Car, error)

	CreateRental(r *models.Rental) error
	SaveRental(r *models.Rental) error
	RentalByID(id int) (*models.Rental, error)
	RentalByIDForUpdate(id int) (*models.Rental, error)
	CountOverlappingRentals(carID int, start, end time.Time, excludeRentalID int) (int64, error)
	PendingRentalsStartedBefore(t time.Time) ([]models.Rental, error)

	CreatePayment(p *models.Payment) error
	SavePayment(p *models.Payment) error
	PaymentByID(id int) (*models.Payment, error)
	PaymentByIDForUpdate(id int) (*models.Payment, error)
	PaymentByReference(ref string) (*models.Payment, error)
	CompletedPaymentByRentalForUpdate(rentalID int) (*models.Payment, error)
	PendingPaymentsOlderThan(gateway string, cutoff time.Time) ([]models.Payment, error)

	CreateNotification(n *models.Notification) error
	NotificationsByUser(userID int, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationsRead(userID int, ids []int) (int64, error)

	// Transaction 在單一資料庫交易內執行 fn，fn 收到的 Store 綁定該交易。
	// fn 回傳錯誤時整筆交易回滾。
	Transaction(fn func(tx Store) error) error
}

// GormStore 以 GORM 實作 Store
type GormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) CarByID(id int) (*models.Car, error) {
	var car models.Car
	if err := s.db.First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &car, nil
}

// CarByIDForUpdate 鎖定車輛列，序列化同一輛車的併發預約
func (s *GormStore) CarByIDForUpdate(id int) (*models.Car, error) {
	var car models.Car
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &car, nil
}

func (s *GormStore) CreateRental(r *models.Rental) error {
	return s.db.Create(r).Error
}

func (s *GormStore) SaveRental(r *models.Rental) error {
	return s.db.Save(r).Error
}

func (s *GormStore) RentalByID(id int) (*models.Rental, error) {
	var rental models.Rental
	if err := s.db.Preload("Car").First(&rental, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rental, nil
}

func (s *GormStore) RentalByIDForUpdate(id int) (*models.Rental, error) {
	var rental models.Rental
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rental, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rental, nil
}

// CountOverlappingRentals 計算同一輛車在 [start, end) 區間內未取消的租約數。
// 標準區間重疊判斷：existing.start < new.end AND existing.end > new.start。
func (s *GormStore) CountOverlappingRentals(carID int, start, end time.Time, excludeRentalID int) (int64, error) {
	var count int64
	query := s.db.Model(&models.Rental{}).
		Where("car_id = ? AND status <> ?", carID, models.RentalStatusCancelled).
		Where("start_date < ? AND end_date > ?", end, start)
	if excludeRentalID > 0 {
		query = query.Where("rental_id <> ?", excludeRentalID)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *GormStore) PendingRentalsStartedBefore(t time.Time) ([]models.Rental, error) {
	var rentals []models.Rental
	if err := s.db.
		Where("status = ? AND payment_status <> ? AND start_date < ?",
			models.RentalStatusPending, models.RentalPaymentPaid, t).
		Find(&rentals).Error; err != nil {
		return nil, err
	}
	return rentals, nil
}

func (s *GormStore) CreatePayment(p *models.Payment) error {
	return s.db.Create(p).Error
}

func (s *GormStore) SavePayment(p *models.Payment) error {
	return s.db.Save(p).Error
}

func (s *GormStore) PaymentByID(id int) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (s *GormStore) PaymentByIDForUpdate(id int) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (s *GormStore) PaymentByReference(ref string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.Where("payment_reference = ?", ref).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// CompletedPaymentByRentalForUpdate 取消流程的退款入口：呼叫端已鎖定租約列，
// 這裡再鎖付款列，維持租約→付款的鎖定順序
func (s *GormStore) CompletedPaymentByRentalForUpdate(rentalID int) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("rental_id = ? AND payment_status = ?", rentalID, models.PaymentStatusCompleted).
		Order("completed_at DESC").
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (s *GormStore) PendingPaymentsOlderThan(gateway string, cutoff time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	if err := s.db.
		Where("gateway = ? AND payment_status = ? AND created_at < ?",
			gateway, models.PaymentStatusPending, cutoff).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *GormStore) CreateNotification(n *models.Notification) error {
	return s.db.Create(n).Error
}

func (s *GormStore) NotificationsByUser(userID int, unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if err := query.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationsRead 只更新屬於 userID 的通知，不屬於的 id 靜默略過
func (s *GormStore) MarkNotificationsRead(userID int, ids []int) (int64, error) {
	result := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND notification_id IN ?", userID, ids).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}
