package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"carhive/models"
)

// rentalTransitions 租約狀態機：終態為 completed 和 cancelled
var rentalTransitions = map[string][]string{
	models.RentalStatusPending:    {models.RentalStatusConfirmed, models.RentalStatusCancelled},
	models.RentalStatusConfirmed:  {models.RentalStatusInProgress, models.RentalStatusCancelled},
	models.RentalStatusInProgress: {models.RentalStatusCompleted},
}

// transitionRoles 每條轉移邊允許的角色。角色集合是封閉的，授權只在這裡判一次，
// 不在各呼叫端重新推導。
var transitionRoles = map[string][]string{
	"pending->confirmed":     {models.RoleOwner, models.RoleAdmin},
	"pending->cancelled":     {models.RoleRenter, models.RoleOwner, models.RoleAdmin},
	"confirmed->in_progress": {models.RoleOwner, models.RoleAdmin},
	"confirmed->cancelled":   {models.RoleRenter, models.RoleOwner, models.RoleAdmin},
	"in_progress->completed": {models.RoleOwner, models.RoleAdmin},
}

// CanTransition 轉移邊是否在狀態機內
func CanTransition(from, to string) bool {
	for _, t := range rentalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func roleAllowedForTransition(from, to, role string) bool {
	for _, r := range transitionRoles[from+"->"+to] {
		if r == role {
			return true
		}
	}
	return false
}

// ComputeTotalDays 天數無條件進位，最少 1 天
func ComputeTotalDays(start, end time.Time) int {
	days := int(math.Ceil(end.Sub(start).Hours() / 24.0))
	if days < 1 {
		days = 1
	}
	return days
}

// ComputeTotalCost 總費用 = 每日租金 × 天數 + 稅 + 保險 + 附加費用
func ComputeTotalCost(dailyRate float64, totalDays int, taxAmount, insuranceFee, additionalFees float64) float64 {
	return dailyRate*float64(totalDays) + taxAmount + insuranceFee + additionalFees
}

// CreateRentalInput 建立租約的輸入
type CreateRentalInput struct {
	CarID           int
	UserID          int
	StartDate       time.Time
	EndDate         time.Time
	PickupLocation  string
	DropoffLocation string
	TaxAmount       float64
	InsuranceFee    float64
	AdditionalFees  float64
}

// RentalService 租約生命週期管理
type RentalService struct {
	store    Store
	payments *PaymentService
	notifier *NotificationService
}

func NewRentalService(store Store, payments *PaymentService, notifier *NotificationService) *RentalService {
	return &RentalService{store: store, payments: payments, notifier: notifier}
}

// CreateRental 建立 pending 租約。重疊檢查和寫入在同一筆交易內進行，
// 且先鎖住車輛列，兩個承租人同時訂同一輛車的重疊日期時會序列化，後到的
// 一筆吃到 ConflictError。下訂當下快照 Car.DailyRate，車主之後改價不影響
// 已成立的租約。建立時不發通知，等確認後才通知（放棄的訂單不吵人）。
func (s *RentalService) CreateRental(input CreateRentalInput) (*models.Rental, error) {
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return nil, &ValidationError{Message: "必須提供開始和結束日期"}
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, &ValidationError{Message: "結束日期必須晚於開始日期"}
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if input.StartDate.Before(today) {
		return nil, &ValidationError{Message: "開始日期必須在今天或未來"}
	}
	if input.TaxAmount < 0 || input.InsuranceFee < 0 || input.AdditionalFees < 0 {
		return nil, &ValidationError{Message: "費用欄位不得為負數"}
	}

	var rental *models.Rental
	err := s.store.Transaction(func(tx Store) error {
		// 鎖車輛列：重疊檢查與寫入必須序列化，這是硬性不變量不是盡力而為
		car, err := tx.CarByIDForUpdate(input.CarID)
		if err != nil {
			return fmt.Errorf("failed to lock car %d: %w", input.CarID, err)
		}
		if car == nil {
			return &ValidationError{Message: "車輛不存在"}
		}
		if !car.IsAvailable {
			return &ConflictError{Message: "車輛已下架，無法租用"}
		}
		if car.DailyRate <= 0 {
			return fmt.Errorf("invalid daily rate %.2f for car %d", car.DailyRate, car.CarID)
		}
		if car.OwnerID == input.UserID {
			return &ValidationError{Message: "不能租用自己的車輛"}
		}

		available, err := IsCarAvailable(tx, input.CarID, input.StartDate, input.EndDate, 0)
		if err != nil {
			return err
		}
		if !available {
			return &ConflictError{Message: "這些日期已被預訂"}
		}

		totalDays := ComputeTotalDays(input.StartDate, input.EndDate)
		rental = &models.Rental{
			CarID:           input.CarID,
			UserID:          input.UserID,
			StartDate:       input.StartDate,
			EndDate:         input.EndDate,
			TotalDays:       totalDays,
			DailyRate:       car.DailyRate, // 快照，之後不重算
			TaxAmount:       input.TaxAmount,
			InsuranceFee:    input.InsuranceFee,
			AdditionalFees:  input.AdditionalFees,
			TotalCost:       ComputeTotalCost(car.DailyRate, totalDays, input.TaxAmount, input.InsuranceFee, input.AdditionalFees),
			Status:          models.RentalStatusPending,
			PaymentStatus:   models.RentalPaymentPending,
			PickupLocation:  input.PickupLocation,
			DropoffLocation: input.DropoffLocation,
		}
		if err := tx.CreateRental(rental); err != nil {
			return fmt.Errorf("failed to create rental: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Rental %d created for car %d: %s ~ %s, total %.2f",
		rental.RentalID, rental.CarID,
		rental.StartDate.Format("2006-01-02"), rental.EndDate.Format("2006-01-02"), rental.TotalCost)
	return rental, nil
}

// authorizeTransition 檢查同時符合角色與擁有權
func (s *RentalService) authorizeTransition(tx Store, rental *models.Rental, from, to string, actorID int, actorRole string) error {
	if !roleAllowedForTransition(from, to, actorRole) {
		return &AuthorizationError{Message: fmt.Sprintf("角色 %s 無權執行此狀態轉移", actorRole)}
	}

	switch actorRole {
	case models.RoleRenter:
		if rental.UserID != actorID {
			return &AuthorizationError{Message: "只能操作自己的租約"}
		}
	case models.RoleOwner:
		car, err := tx.CarByID(rental.CarID)
		if err != nil {
			return fmt.Errorf("failed to load car %d: %w", rental.CarID, err)
		}
		if car == nil || car.OwnerID != actorID {
			return &AuthorizationError{Message: "只能操作自己車輛的租約"}
		}
	case models.RoleAdmin:
		// 管理員不受擁有權限制
	default:
		return &AuthorizationError{Message: fmt.Sprintf("未知的角色 %s", actorRole)}
	}
	return nil
}

// TransitionRental 驅動狀態轉移。不在狀態機內的邊回 InvalidTransitionError，
// 角色/擁有權不符回 AuthorizationError。轉入 confirmed 前重檢可用性。
// 取消走 CancelRental（需要退款流程），這裡轉交。
func (s *RentalService) TransitionRental(ctx context.Context, rentalID int, target string, actorID int, actorRole string) (*models.Rental, error) {
	if target == models.RentalStatusCancelled {
		return s.CancelRental(ctx, rentalID, "", actorID, actorRole, false)
	}

	var rental *models.Rental
	err := s.store.Transaction(func(tx Store) error {
		var err error
		rental, err = tx.RentalByIDForUpdate(rentalID)
		if err != nil {
			return fmt.Errorf("failed to lock rental %d: %w", rentalID, err)
		}
		if rental == nil {
			return &ValidationError{Message: "租約不存在"}
		}

		if !CanTransition(rental.Status, target) {
			return &InvalidTransitionError{From: rental.Status, To: target}
		}
		if err := s.authorizeTransition(tx, rental, rental.Status, target, actorID, actorRole); err != nil {
			return err
		}

		// 確認前重檢可用性：等待確認期間可能有別筆租約先被確認
		if target == models.RentalStatusConfirmed {
			available, err := IsCarAvailable(tx, rental.CarID, rental.StartDate, rental.EndDate, rental.RentalID)
			if err != nil {
				return err
			}
			if !available {
				return &ConflictError{Message: "這些日期已被其他租約佔用，無法確認"}
			}
		}

		rental.Status = target
		if err := tx.SaveRental(rental); err != nil {
			return fmt.Errorf("failed to save rental %d: %w", rentalID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Rental %d transitioned to %s by user %d (%s)", rentalID, target, actorID, actorRole)
	s.notifyTransition(rental, target)
	return rental, nil
}

// CancelRental 取消租約，只允許從 pending 或 confirmed 取消。已付款的租約
// 必須先退款成功（或管理員覆核略過）才會真的轉成 cancelled，退款失敗時
// 交易回滾、狀態不變。
func (s *RentalService) CancelRental(ctx context.Context, rentalID int, reason string, actorID int, actorRole string, adminOverride bool) (*models.Rental, error) {
	if adminOverride && actorRole != models.RoleAdmin {
		return nil, &AuthorizationError{Message: "只有管理員可以覆核退款"}
	}

	var rental *models.Rental
	err := s.store.Transaction(func(tx Store) error {
		var err error
		rental, err = tx.RentalByIDForUpdate(rentalID)
		if err != nil {
			return fmt.Errorf("failed to lock rental %d: %w", rentalID, err)
		}
		if rental == nil {
			return &ValidationError{Message: "租約不存在"}
		}

		if !CanTransition(rental.Status, models.RentalStatusCancelled) {
			return &InvalidTransitionError{From: rental.Status, To: models.RentalStatusCancelled}
		}
		if err := s.authorizeTransition(tx, rental, rental.Status, models.RentalStatusCancelled, actorID, actorRole); err != nil {
			return err
		}

		// 已付款：退款必須先被接受，取消才算成立
		if rental.PaymentStatus == models.RentalPaymentPaid {
			if _, err := s.payments.refundWithinTx(ctx, tx, rental, adminOverride); err != nil {
				return err
			}
		}

		now := time.Now()
		rental.Status = models.RentalStatusCancelled
		rental.CancellationReason = reason
		rental.CancellationDate = &now
		if err := tx.SaveRental(rental); err != nil {
			return fmt.Errorf("failed to save rental %d: %w", rentalID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Rental %d cancelled by user %d (%s): %s", rentalID, actorID, actorRole, reason)
	s.notifyTransition(rental, models.RentalStatusCancelled)
	return rental, nil
}

// notifyTransition 通知承租人；確認與取消另外通知車主。通知是盡力而為，
// 失敗不影響已提交的狀態轉移。
func (s *RentalService) notifyTransition(rental *models.Rental, target string) {
	if s.notifier == nil {
		return
	}

	var title, message string
	switch target {
	case models.RentalStatusConfirmed:
		title = "租約已確認"
		message = fmt.Sprintf("租約 #%d 已由車主確認，請準時取車", rental.RentalID)
	case models.RentalStatusInProgress:
		title = "已取車"
		message = fmt.Sprintf("租約 #%d 已開始，祝您旅途愉快", rental.RentalID)
	case models.RentalStatusCompleted:
		title = "租約完成"
		message = fmt.Sprintf("租約 #%d 已完成還車，歡迎留下評價", rental.RentalID)
	case models.RentalStatusCancelled:
		title = "租約已取消"
		message = fmt.Sprintf("租約 #%d 已取消", rental.RentalID)
	default:
		return
	}

	data := map[string]interface{}{"rental_id": rental.RentalID, "status": target}
	if err := s.notifier.Notify(rental.UserID, models.NotificationTypeRentalStatus, title, message, data); err != nil {
		log.Printf("Failed to notify renter %d for rental %d: %v", rental.UserID, rental.RentalID, err)
	}

	// 確認與取消也通知車主
	if target == models.RentalStatusConfirmed || target == models.RentalStatusCancelled {
		car, err := s.store.CarByID(rental.CarID)
		if err != nil || car == nil {
			log.Printf("Failed to load car %d for owner notification: %v", rental.CarID, err)
			return
		}
		if err := s.notifier.Notify(car.OwnerID, models.NotificationTypeRentalStatus, title, message, data); err != nil {
			log.Printf("Failed to notify owner %d for rental %d: %v", car.OwnerID, rental.RentalID, err)
		}
	}
}

// CheckExpiredRentals 定時任務：開始日期已過仍未付款的 pending 租約自動取消，
// 讓車輛的日期釋放回可預訂狀態
func (s *RentalService) CheckExpiredRentals() error {
	expired, err := s.store.PendingRentalsStartedBefore(time.Now())
	if err != nil {
		return fmt.Errorf("failed to find expired rentals: %w", err)
	}

	for i := range expired {
		rentalID := expired[i].RentalID
		var rental *models.Rental
		err := s.store.Transaction(func(tx Store) error {
			var err error
			rental, err = tx.RentalByIDForUpdate(rentalID)
			if err != nil {
				return err
			}
			// 清單撈出來之後狀態可能已經變了，再檢查一次
			if rental == nil || rental.Status != models.RentalStatusPending ||
				rental.PaymentStatus == models.RentalPaymentPaid {
				rental = nil
				return nil
			}
			now := time.Now()
			rental.Status = models.RentalStatusCancelled
			rental.CancellationReason = "逾時未付款，系統自動取消"
			rental.CancellationDate = &now
			return tx.SaveRental(rental)
		})
		if err != nil {
			log.Printf("Failed to expire rental %d: %v", rentalID, err)
			continue
		}
		if rental != nil {
			log.Printf("Rental %d auto-cancelled: start date passed without payment", rentalID)
			s.notifyTransition(rental, models.RentalStatusCancelled)
		}
	}
	return nil
}

// GetRental 查詢單筆租約，承租人只能看自己的，車主只能看自己車輛的
func (s *RentalService) GetRental(rentalID, actorID int, actorRole string) (*models.Rental, error) {
	rental, err := s.store.RentalByID(rentalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rental %d: %w", rentalID, err)
	}
	if rental == nil {
		return nil, nil
	}

	switch actorRole {
	case models.RoleAdmin:
		return rental, nil
	case models.RoleRenter:
		if rental.UserID != actorID {
			return nil, &AuthorizationError{Message: "只能查看自己的租約"}
		}
	case models.RoleOwner:
		car, err := s.store.CarByID(rental.CarID)
		if err != nil {
			return nil, fmt.Errorf("failed to load car %d: %w", rental.CarID, err)
		}
		if rental.UserID != actorID && (car == nil || car.OwnerID != actorID) {
			return nil, &AuthorizationError{Message: "只能查看自己車輛的租約"}
		}
	}
	return rental, nil
}
