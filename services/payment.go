package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"carhive/models"

	"github.com/google/uuid"
)

// 行動支付輪詢的預設參數（參考值：每 3 秒查一次，最多等 300 秒）
const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollDeadline = 300 * time.Second
)

// PollOutcome 輪詢結果：到達終態（Terminal）或逾時（TimedOut），兩者互斥，
// 呼叫端不會看到「計時器到了但還在輪詢」的混合狀態。
type PollOutcome struct {
	TimedOut bool
	Payment  *models.Payment
	Result   *ChargeResult
}

// PaymentService 付款流程與租約/付款狀態和解
type PaymentService struct {
	store    Store
	gateways map[string]PaymentGateway
	notifier *NotificationService
}

func NewPaymentService(store Store, notifier *NotificationService, gateways ...PaymentGateway) *PaymentService {
	m := make(map[string]PaymentGateway, len(gateways))
	for _, g := range gateways {
		m[g.Name()] = g
	}
	return &PaymentService{store: store, gateways: m, notifier: notifier}
}

// chargeStatusOf 把付款紀錄的狀態映射回閘道結果的詞彙，已終態的付款
// 短路回傳時才不會混用兩套狀態字串
func chargeStatusOf(p *models.Payment) string {
	switch p.PaymentStatus {
	case models.PaymentStatusCompleted:
		return ChargeSucceeded
	case models.PaymentStatusRefunded:
		return ChargeRefunded
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		return ChargeFailed
	default:
		return ChargePending
	}
}

func (s *PaymentService) gateway(name string) (PaymentGateway, error) {
	g, ok := s.gateways[name]
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("不支援的金流閘道 %s", name)}
	}
	return g, nil
}

// newAttempt 建立一筆新的付款嘗試。失敗的嘗試不就地修改，重試就是新的一列。
func (s *PaymentService) newAttempt(rental *models.Rental, userID int, method, gateway string) (*models.Payment, error) {
	payment := &models.Payment{
		RentalID:         rental.RentalID,
		UserID:           userID,
		Amount:           rental.TotalCost,
		Currency:         "TWD",
		PaymentMethod:    method,
		PaymentStatus:    models.PaymentStatusPending,
		PaymentReference: uuid.NewString(),
		Gateway:          gateway,
	}
	if err := s.store.CreatePayment(payment); err != nil {
		log.Printf("Failed to create payment attempt for rental %d: %v", rental.RentalID, err)
		return nil, fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return payment, nil
}

// loadChargeableRental 取出租約並確認可以付款
func (s *PaymentService) loadChargeableRental(rentalID, userID int) (*models.Rental, error) {
	rental, err := s.store.RentalByID(rentalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rental %d: %w", rentalID, err)
	}
	if rental == nil {
		return nil, &ValidationError{Message: "租約不存在"}
	}
	if rental.UserID != userID {
		return nil, &AuthorizationError{Message: "只能為自己的租約付款"}
	}
	if rental.Status == models.RentalStatusCancelled {
		return nil, &ConflictError{Message: "租約已取消，無法付款"}
	}
	if rental.PaymentStatus == models.RentalPaymentPaid {
		return nil, &ConflictError{Message: "租約已完成付款"}
	}
	return rental, nil
}

// ChargeCard 信用卡扣款：用前端換好的 token 對閘道建立扣款。
// 閘道可能回 requires_action（需要 3D 驗證），此時付款停在 pending，
// 前端拿 client_secret 完成驗證後再呼叫 ConfirmCard。
func (s *PaymentService) ChargeCard(ctx context.Context, rentalID, userID int, token string) (*models.Payment, *ChargeResult, error) {
	if token == "" {
		return nil, nil, &ValidationError{Message: "缺少付款 token"}
	}

	rental, err := s.loadChargeableRental(rentalID, userID)
	if err != nil {
		return nil, nil, err
	}

	gw, err := s.gateway("card")
	if err != nil {
		return nil, nil, err
	}

	payment, err := s.newAttempt(rental, userID, models.PaymentMethodCard, gw.Name())
	if err != nil {
		return nil, nil, err
	}

	result, err := gw.Charge(ctx, ChargeRequest{
		Amount:     rental.TotalCost,
		Currency:   payment.Currency,
		Token:      token,
		ExternalID: payment.PaymentReference,
	})
	if err != nil {
		// 閘道或網路錯誤：這筆嘗試標記失敗，不自動重試，由承租人重送
		log.Printf("Card charge failed for payment %d: %v", payment.PaymentID, err)
		failed := &ChargeResult{Status: ChargeFailed, Message: err.Error()}
		if _, rerr := s.ReconcilePayment(payment.PaymentID, failed); rerr != nil {
			log.Printf("Failed to reconcile failed card charge %d: %v", payment.PaymentID, rerr)
		}
		return payment, nil, &PaymentError{Gateway: gw.Name(), Message: err.Error(), Err: err}
	}

	// 閘道端編號取代我們的臨時參考，之後查詢終態都用它
	if result.Reference != "" {
		payment.PaymentReference = result.Reference
		if err := s.store.SavePayment(payment); err != nil {
			log.Printf("Failed to save gateway reference for payment %d: %v", payment.PaymentID, err)
			return nil, nil, fmt.Errorf("failed to save payment reference: %w", err)
		}
	}

	switch result.Status {
	case ChargeSucceeded:
		payment, err = s.ReconcilePayment(payment.PaymentID, result)
		if err != nil {
			return nil, nil, err
		}
		return payment, result, nil
	case ChargeRequiresAction:
		log.Printf("Card charge %s requires step-up confirmation", result.Reference)
		return payment, result, nil
	case ChargePending:
		// 閘道仍在處理中：這筆嘗試保持 pending，之後由 ConfirmCard 查終態
		log.Printf("Card charge %s still processing at gateway", result.Reference)
		return payment, result, nil
	default:
		payment, rerr := s.ReconcilePayment(payment.PaymentID, result)
		if rerr != nil {
			return nil, nil, rerr
		}
		return payment, result, &PaymentError{Gateway: gw.Name(), Message: result.Message}
	}
}

// ConfirmCard 3D 驗證完成後查詢終態並和解
func (s *PaymentService) ConfirmCard(ctx context.Context, paymentID, userID int) (*models.Payment, *ChargeResult, error) {
	payment, err := s.store.PaymentByID(paymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payment %d: %w", paymentID, err)
	}
	if payment == nil {
		return nil, nil, &ValidationError{Message: "付款紀錄不存在"}
	}
	if payment.UserID != userID {
		return nil, nil, &AuthorizationError{Message: "只能確認自己的付款"}
	}
	if payment.IsTerminal() {
		// 重複確認視同已處理，直接回傳現況
		return payment, &ChargeResult{Reference: payment.PaymentReference, Status: chargeStatusOf(payment)}, nil
	}

	gw, err := s.gateway(payment.Gateway)
	if err != nil {
		return nil, nil, err
	}

	result, err := gw.Verify(ctx, payment.PaymentReference)
	if err != nil {
		return nil, nil, &PaymentError{Gateway: gw.Name(), Message: err.Error(), Err: err}
	}

	switch result.Status {
	case ChargeSucceeded:
		payment, err = s.ReconcilePayment(payment.PaymentID, result)
		return payment, result, err
	case ChargeFailed:
		payment, err = s.ReconcilePayment(payment.PaymentID, result)
		if err != nil {
			return nil, nil, err
		}
		return payment, result, &PaymentError{Gateway: gw.Name(), Message: result.Message}
	default:
		// 仍未終態，前端稍後再確認
		return payment, result, nil
	}
}

// InitiateMobileMoney 發起行動支付收款，回傳 pending 的付款紀錄供輪詢
func (s *PaymentService) InitiateMobileMoney(ctx context.Context, rentalID, userID int, phone string) (*models.Payment, error) {
	if _, err := NormalizePhone(phone); err != nil {
		return nil, &ValidationError{Message: "電話號碼格式錯誤（至少 10 位數字）"}
	}

	rental, err := s.loadChargeableRental(rentalID, userID)
	if err != nil {
		return nil, err
	}

	gw, err := s.gateway("mobile_money")
	if err != nil {
		return nil, err
	}

	payment, err := s.newAttempt(rental, userID, models.PaymentMethodMobileMoney, gw.Name())
	if err != nil {
		return nil, err
	}

	result, err := gw.Charge(ctx, ChargeRequest{
		Amount:     rental.TotalCost,
		Currency:   payment.Currency,
		Phone:      phone,
		ExternalID: payment.PaymentReference,
	})
	if err != nil {
		log.Printf("Mobile money initiate failed for payment %d: %v", payment.PaymentID, err)
		failed := &ChargeResult{Status: ChargeFailed, Message: err.Error()}
		if _, rerr := s.ReconcilePayment(payment.PaymentID, failed); rerr != nil {
			log.Printf("Failed to reconcile failed initiate %d: %v", payment.PaymentID, rerr)
		}
		return nil, &PaymentError{Gateway: gw.Name(), Message: err.Error(), Err: err}
	}

	payment.PaymentReference = result.Reference
	if err := s.store.SavePayment(payment); err != nil {
		log.Printf("Failed to save gateway reference for payment %d: %v", payment.PaymentID, err)
		return nil, fmt.Errorf("failed to save payment reference: %w", err)
	}

	log.Printf("Mobile money payment %s initiated for rental %d", result.Reference, rentalID)
	return payment, nil
}

// VerifyPayment 單次查詢閘道狀態，到達終態就和解。已終態的付款直接回傳
// 現況（重複的 verify 是 no-op）。
func (s *PaymentService) VerifyPayment(ctx context.Context, gatewayName, reference string) (*models.Payment, *ChargeResult, error) {
	payment, err := s.store.PaymentByReference(reference)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payment %s: %w", reference, err)
	}
	if payment == nil {
		return nil, nil, &ValidationError{Message: "付款紀錄不存在"}
	}
	if payment.Gateway != gatewayName {
		return nil, nil, &ValidationError{Message: "付款閘道不符"}
	}
	if payment.IsTerminal() {
		return payment, &ChargeResult{Reference: reference, Status: chargeStatusOf(payment)}, nil
	}

	gw, err := s.gateway(gatewayName)
	if err != nil {
		return nil, nil, err
	}

	result, err := gw.Verify(ctx, reference)
	if err != nil {
		return nil, nil, &PaymentError{Gateway: gatewayName, Message: err.Error(), Err: err}
	}

	switch result.Status {
	case ChargeSucceeded, ChargeFailed:
		payment, err = s.ReconcilePayment(payment.PaymentID, result)
		if err != nil {
			return nil, nil, err
		}
		return payment, result, nil
	default:
		return payment, result, nil
	}
}

// AwaitPayment 以單一截止時間輪詢到終態。逾時不代表失敗：真實結果未知，
// 付款停在 pending，交給背景和解工作或使用者稍後再查。ctx 取消可中止輪詢，
// 閘道端進行中的交易不會被取消。
func (s *PaymentService) AwaitPayment(ctx context.Context, gatewayName, reference string, interval, deadline time.Duration) (*PollOutcome, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if deadline <= 0 {
		deadline = DefaultPollDeadline
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		payment, result, err := s.VerifyPayment(ctx, gatewayName, reference)
		if err != nil {
			// 截止時間在 Verify 進行中到期：結果未知，不是付款失敗
			if ctx.Err() != nil {
				log.Printf("Polling deadline hit during verify for %s payment %s, outcome unknown", gatewayName, reference)
				outcome := &PollOutcome{TimedOut: true}
				if p, perr := s.store.PaymentByReference(reference); perr == nil {
					outcome.Payment = p
				}
				return outcome, &TimeoutError{Gateway: gatewayName, Reference: reference}
			}
			return nil, err
		}
		if payment.IsTerminal() {
			return &PollOutcome{Payment: payment, Result: result}, nil
		}

		select {
		case <-ctx.Done():
			log.Printf("Polling timed out for %s payment %s, outcome unknown", gatewayName, reference)
			return &PollOutcome{TimedOut: true, Payment: payment, Result: result},
				&TimeoutError{Gateway: gatewayName, Reference: reference}
		case <-ticker.C:
		}
	}
}

// ReconcilePayment 和解步驟：在單一交易內把 Payment 與 Rental 一起更新。
// 先鎖租約列再鎖付款列，已終態的付款直接回傳（同一終態付款和解兩次結果
// 相同），兩筆併發和解會序列化、第二筆變成 no-op。付款完成不會自動把租約
// 推進到 confirmed，確認仍是車主/管理員的明確操作。
func (s *PaymentService) ReconcilePayment(paymentID int, result *ChargeResult) (*models.Payment, error) {
	var payment *models.Payment
	var rental *models.Rental

	err := s.store.Transaction(func(tx Store) error {
		var err error
		payment, err = tx.PaymentByID(paymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment %d: %w", paymentID, err)
		}
		if payment == nil {
			return &ValidationError{Message: "付款紀錄不存在"}
		}
		if payment.IsTerminal() {
			log.Printf("Payment %d already terminal (%s), reconcile is a no-op", paymentID, payment.PaymentStatus)
			return nil
		}

		// 鎖定順序固定為租約→付款，與取消流程一致，兩邊交錯才不會互相等鎖
		rental, err = tx.RentalByIDForUpdate(payment.RentalID)
		if err != nil {
			return fmt.Errorf("failed to lock rental %d: %w", payment.RentalID, err)
		}
		if rental == nil {
			return fmt.Errorf("rental %d for payment %d not found", payment.RentalID, paymentID)
		}

		payment, err = tx.PaymentByIDForUpdate(paymentID)
		if err != nil {
			return fmt.Errorf("failed to lock payment %d: %w", paymentID, err)
		}
		// 拿到鎖之前可能已被另一筆和解處理掉
		if payment.IsTerminal() {
			log.Printf("Payment %d already terminal (%s), reconcile is a no-op", paymentID, payment.PaymentStatus)
			rental = nil
			return nil
		}

		now := time.Now()
		switch result.Status {
		case ChargeSucceeded:
			payment.PaymentStatus = models.PaymentStatusCompleted
			payment.CompletedAt = &now
			rental.PaymentStatus = models.RentalPaymentPaid
			rental.PaymentMethod = payment.PaymentMethod
			rental.PaymentDate = &now
			rental.PaymentID = payment.PaymentReference
		case ChargeFailed:
			payment.PaymentStatus = models.PaymentStatusFailed
			payment.FailureReason = result.Message
			rental.PaymentStatus = models.RentalPaymentFailed
		case ChargeRefunded:
			payment.PaymentStatus = models.PaymentStatusRefunded
			rental.PaymentStatus = models.RentalPaymentRefunded
		default:
			return fmt.Errorf("cannot reconcile non-terminal charge status %s", result.Status)
		}

		if err := tx.SavePayment(payment); err != nil {
			return fmt.Errorf("failed to save payment %d: %w", paymentID, err)
		}
		if err := tx.SaveRental(rental); err != nil {
			return fmt.Errorf("failed to save rental %d: %w", rental.RentalID, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("Reconcile transaction failed for payment %d: %v", paymentID, err)
		return nil, err
	}

	// 通知在交易提交後才送，推播失敗不影響已提交的狀態
	if rental != nil && payment.IsTerminal() {
		s.notifyPaymentOutcome(rental, payment)
	}
	return payment, nil
}

func (s *PaymentService) notifyPaymentOutcome(rental *models.Rental, payment *models.Payment) {
	if s.notifier == nil {
		return
	}

	data := map[string]interface{}{
		"rental_id":  rental.RentalID,
		"payment_id": payment.PaymentID,
	}

	var title, message string
	switch payment.PaymentStatus {
	case models.PaymentStatusCompleted:
		title = "付款成功"
		message = fmt.Sprintf("租約 #%d 的款項 %.2f 已付款完成", rental.RentalID, payment.Amount)
	case models.PaymentStatusFailed:
		title = "付款失敗"
		message = fmt.Sprintf("租約 #%d 的付款未完成，請重新嘗試", rental.RentalID)
	case models.PaymentStatusRefunded:
		title = "退款完成"
		message = fmt.Sprintf("租約 #%d 的款項 %.2f 已退款", rental.RentalID, payment.Amount)
	default:
		return
	}

	if err := s.notifier.Notify(rental.UserID, models.NotificationTypePaymentStatus, title, message, data); err != nil {
		log.Printf("Failed to notify user %d about payment %d: %v", rental.UserID, payment.PaymentID, err)
	}
}

// refundWithinTx 取消已付款租約時的退款：在取消交易內執行，退款未被閘道
// 接受（且沒有管理員覆核）時整個取消回滾、租約狀態不變。呼叫端已鎖定租約列，
// 這裡再鎖付款列，維持租約→付款的鎖定順序。
func (s *PaymentService) refundWithinTx(ctx context.Context, tx Store, rental *models.Rental, adminOverride bool) (*models.Payment, error) {
	payment, err := tx.CompletedPaymentByRentalForUpdate(rental.RentalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find completed payment for rental %d: %w", rental.RentalID, err)
	}
	if payment == nil {
		return nil, fmt.Errorf("rental %d is marked paid but has no completed payment", rental.RentalID)
	}

	gw, err := s.gateway(payment.Gateway)
	if err != nil {
		return nil, err
	}

	result, err := gw.Refund(ctx, payment.PaymentReference, payment.Amount)
	if err == nil && result.Status != ChargeRefunded {
		err = fmt.Errorf("refund rejected: %s", result.Message)
	}
	if err != nil {
		if !adminOverride {
			log.Printf("Refund failed for payment %d: %v", payment.PaymentID, err)
			return nil, &PaymentError{Gateway: payment.Gateway, Message: err.Error(), Err: err}
		}
		// 管理員覆核：略過閘道結果，狀態照退款處理，留待對帳
		log.Printf("Refund for payment %d bypassed by admin override: %v", payment.PaymentID, err)
	}

	payment.PaymentStatus = models.PaymentStatusRefunded
	rental.PaymentStatus = models.RentalPaymentRefunded
	if err := tx.SavePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to save refunded payment %d: %w", payment.PaymentID, err)
	}
	return payment, nil
}

// ReconcileStalePayments 背景和解：行動支付輪詢逾時後付款可能停在 pending，
// 這裡逐筆向閘道查一次，拿到終態就和解，仍在 pending 的保持原狀。
func (s *PaymentService) ReconcileStalePayments(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	payments, err := s.store.PendingPaymentsOlderThan("mobile_money", cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale payments: %w", err)
	}

	for i := range payments {
		p := &payments[i]
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, result, err := s.VerifyPayment(ctx, p.Gateway, p.PaymentReference)
		cancel()
		if err != nil {
			log.Printf("Stale payment %d verify failed: %v", p.PaymentID, err)
			continue
		}
		if result.Status == ChargePending {
			log.Printf("Stale payment %d still pending at gateway", p.PaymentID)
		}
	}

	if len(payments) > 0 {
		log.Printf("Checked %d stale mobile money payments", len(payments))
	}
	return nil
}
