package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carhive/models"

	"github.com/stretchr/testify/require"
)

func TestChargeCard(t *testing.T) {
	ctx := context.Background()

	t.Run("扣款成功後租約標記已付款但不自動確認", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.card.chargeResult = &ChargeResult{Reference: "ch_100", Status: ChargeSucceeded}

		payment, result, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		require.NoError(t, err)
		require.Equal(t, ChargeSucceeded, result.Status)
		require.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)
		require.Equal(t, "ch_100", payment.PaymentReference)
		require.NotNil(t, payment.CompletedAt)

		// 租約付款狀態更新，但主狀態仍停在 pending 等車主確認
		stored, _ := env.store.RentalByID(rental.RentalID)
		require.Equal(t, models.RentalPaymentPaid, stored.PaymentStatus)
		require.Equal(t, models.RentalStatusPending, stored.Status)
		require.Equal(t, models.PaymentMethodCard, stored.PaymentMethod)
		require.Equal(t, "ch_100", stored.PaymentID)

		// 承租人收到付款成功通知
		require.Len(t, env.pusher.eventsFor(3), 1)
	})

	t.Run("需要 3D 驗證時停在 pending", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.card.chargeResult = &ChargeResult{
			Reference: "ch_101", Status: ChargeRequiresAction, ClientSecret: "cs_abc",
		}

		payment, result, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		require.NoError(t, err)
		require.Equal(t, ChargeRequiresAction, result.Status)
		require.Equal(t, "cs_abc", result.ClientSecret)
		require.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)

		stored, _ := env.store.RentalByID(rental.RentalID)
		require.Equal(t, models.RentalPaymentPending, stored.PaymentStatus)

		// 3D 驗證完成後確認
		env.card.verifyResults = []*ChargeResult{{Reference: "ch_101", Status: ChargeSucceeded}}
		confirmed, _, err := env.payments.ConfirmCard(ctx, payment.PaymentID, 3)
		require.NoError(t, err)
		require.Equal(t, models.PaymentStatusCompleted, confirmed.PaymentStatus)

		stored, _ = env.store.RentalByID(rental.RentalID)
		require.Equal(t, models.RentalPaymentPaid, stored.PaymentStatus)
		require.Equal(t, models.RentalStatusPending, stored.Status)
	})

	t.Run("閘道回 processing 時停在 pending 不和解", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.card.chargeResult = &ChargeResult{Reference: "ch_104", Status: ChargePending}

		payment, result, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		require.NoError(t, err)
		require.Equal(t, ChargePending, result.Status)
		require.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)

		stored, _ := env.store.RentalByID(rental.RentalID)
		require.Equal(t, models.RentalPaymentPending, stored.PaymentStatus)

		// 閘道處理完後由 ConfirmCard 收尾
		env.card.verifyResults = []*ChargeResult{{Reference: "ch_104", Status: ChargeSucceeded}}
		confirmed, _, err := env.payments.ConfirmCard(ctx, payment.PaymentID, 3)
		require.NoError(t, err)
		require.Equal(t, models.PaymentStatusCompleted, confirmed.PaymentStatus)
	})

	t.Run("重複確認已完成的付款回閘道詞彙的現況", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.card.chargeResult = &ChargeResult{Reference: "ch_105", Status: ChargeSucceeded}

		payment, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		require.NoError(t, err)

		// 再確認一次：不打閘道，Status 用閘道詞彙回報
		confirmed, result, err := env.payments.ConfirmCard(ctx, payment.PaymentID, 3)
		require.NoError(t, err)
		require.Equal(t, ChargeSucceeded, result.Status)
		require.Equal(t, models.PaymentStatusCompleted, confirmed.PaymentStatus)
		require.Equal(t, 0, env.card.verifyCalls)
	})

	t.Run("閘道拒絕時這筆嘗試標記失敗", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.card.chargeResult = &ChargeResult{Reference: "ch_102", Status: ChargeFailed, Message: "card declined"}

		payment, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		var payErr *PaymentError
		require.ErrorAs(t, err, &payErr)
		require.Equal(t, "card", payErr.Gateway)

		stored, _ := env.store.PaymentByID(payment.PaymentID)
		require.Equal(t, models.PaymentStatusFailed, stored.PaymentStatus)
		require.Equal(t, "card declined", stored.FailureReason)

		// 失敗的嘗試不擋重試：再扣一次成功
		env.card.chargeResult = &ChargeResult{Reference: "ch_103", Status: ChargeSucceeded}
		retry, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		require.NoError(t, err)
		require.Equal(t, models.PaymentStatusCompleted, retry.PaymentStatus)
		require.NotEqual(t, payment.PaymentID, retry.PaymentID)
	})

	t.Run("閘道網路錯誤回 PaymentError", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.card.chargeErr = errors.New("connection refused")

		_, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		var payErr *PaymentError
		require.ErrorAs(t, err, &payErr)
	})

	t.Run("別人的租約不能付款", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)

		_, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 99, "tok_visa")
		var denied *AuthorizationError
		require.ErrorAs(t, err, &denied)
	})

	t.Run("已付款的租約不能再付", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPaid)

		_, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("已取消的租約不能付款", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusCancelled, models.RentalPaymentPending)

		_, _, err := env.payments.ChargeCard(ctx, rental.RentalID, 3, "tok_visa")
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
	})
}

func TestReconcilePaymentIdempotent(t *testing.T) {
	env := newTestEnv()
	env.seedCar()
	rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
	env.store.addPayment(models.Payment{
		PaymentID: 20, RentalID: rental.RentalID, UserID: 3,
		Amount: 150, PaymentMethod: models.PaymentMethodMobileMoney,
		PaymentStatus: models.PaymentStatusPending,
		PaymentReference: "momo_001", Gateway: "mobile_money",
	})

	result := &ChargeResult{Reference: "momo_001", Status: ChargeSucceeded}
	first, err := env.payments.ReconcilePayment(20, result)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, first.PaymentStatus)

	// 第二次和解是 no-op，結果相同
	second, err := env.payments.ReconcilePayment(20, result)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, second.PaymentStatus)

	// 通知只發一次
	require.Len(t, env.pusher.eventsFor(3), 1)
}

func TestInitiateMobileMoney(t *testing.T) {
	ctx := context.Background()

	t.Run("發起後停在 pending 供輪詢", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.momo.chargeResult = &ChargeResult{Reference: "momo_100", Status: ChargePending}

		payment, err := env.payments.InitiateMobileMoney(ctx, rental.RentalID, 3, "0912-345-678")
		require.NoError(t, err)
		require.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)
		require.Equal(t, "momo_100", payment.PaymentReference)
	})

	t.Run("電話格式錯誤被拒絕", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)

		_, err := env.payments.InitiateMobileMoney(ctx, rental.RentalID, 3, "12345")
		var invalid *ValidationError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestAwaitPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("輪詢到成功後和解", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.momo.chargeResult = &ChargeResult{Reference: "momo_100", Status: ChargePending}
		env.momo.verifyResults = []*ChargeResult{
			{Reference: "momo_100", Status: ChargePending},
			{Reference: "momo_100", Status: ChargePending},
			{Reference: "momo_100", Status: ChargeSucceeded},
		}

		payment, err := env.payments.InitiateMobileMoney(ctx, rental.RentalID, 3, "0912345678")
		require.NoError(t, err)

		outcome, err := env.payments.AwaitPayment(ctx, "mobile_money", payment.PaymentReference,
			time.Millisecond, time.Second)
		require.NoError(t, err)
		require.False(t, outcome.TimedOut)
		require.Equal(t, models.PaymentStatusCompleted, outcome.Payment.PaymentStatus)
		require.Equal(t, 3, env.momo.verifyCalls)

		stored, _ := env.store.RentalByID(rental.RentalID)
		require.Equal(t, models.RentalPaymentPaid, stored.PaymentStatus)

		// 通知恰好一則
		require.Len(t, env.pusher.eventsFor(3), 1)
	})

	t.Run("逾時不算失敗，付款停在 pending", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.momo.chargeResult = &ChargeResult{Reference: "momo_101", Status: ChargePending}
		env.momo.verifyResults = []*ChargeResult{
			{Reference: "momo_101", Status: ChargePending},
		}

		payment, err := env.payments.InitiateMobileMoney(ctx, rental.RentalID, 3, "0912345678")
		require.NoError(t, err)

		outcome, err := env.payments.AwaitPayment(ctx, "mobile_money", payment.PaymentReference,
			5*time.Millisecond, 30*time.Millisecond)
		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)
		require.True(t, outcome.TimedOut)
		require.Equal(t, "mobile_money", timeout.Gateway)

		// 真實結果未知：不標失敗、租約不取消
		stored, _ := env.store.PaymentByID(payment.PaymentID)
		require.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
		storedRental, _ := env.store.RentalByID(rental.RentalID)
		require.Equal(t, models.RentalPaymentPending, storedRental.PaymentStatus)
		require.Equal(t, models.RentalStatusPending, storedRental.Status)
	})

	t.Run("呼叫端取消 context 中止輪詢", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.momo.chargeResult = &ChargeResult{Reference: "momo_102", Status: ChargePending}
		env.momo.verifyResults = []*ChargeResult{
			{Reference: "momo_102", Status: ChargePending},
		}

		payment, err := env.payments.InitiateMobileMoney(ctx, rental.RentalID, 3, "0912345678")
		require.NoError(t, err)

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		outcome, err := env.payments.AwaitPayment(cancelCtx, "mobile_money", payment.PaymentReference,
			time.Hour, time.Hour)
		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)
		require.True(t, outcome.TimedOut)
	})

	t.Run("閘道卡住時逾時同樣回報未知而非失敗", func(t *testing.T) {
		// 閘道掛著不回應，截止時間在 Verify 進行中到期
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			json.NewEncoder(w).Encode(map[string]any{"payment_id": "momo_900", "status": "PENDING"})
		}))
		defer srv.Close()

		store := newMemStore()
		store.addRental(models.Rental{
			RentalID: 10, CarID: 1, UserID: 3,
			Status: models.RentalStatusPending, PaymentStatus: models.RentalPaymentPending,
		})
		store.addPayment(models.Payment{
			PaymentID: 20, RentalID: 10, UserID: 3,
			Amount: 150, PaymentMethod: models.PaymentMethodMobileMoney,
			PaymentStatus: models.PaymentStatusPending,
			PaymentReference: "momo_900", Gateway: "mobile_money",
		})
		notifier := NewNotificationService(store, &recordingPusher{})
		payments := NewPaymentService(store, notifier, NewMobileMoneyGateway(srv.URL, "key_momo"))

		outcome, err := payments.AwaitPayment(ctx, "mobile_money", "momo_900",
			10*time.Millisecond, 100*time.Millisecond)
		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)
		require.Equal(t, "mobile_money", timeout.Gateway)
		require.True(t, outcome.TimedOut)

		// 結果未知：付款不標失敗
		stored, _ := store.PaymentByID(20)
		require.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
	})
}

func TestLockOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("和解先鎖租約再鎖付款", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.store.addPayment(models.Payment{
			PaymentID: 20, RentalID: rental.RentalID, UserID: 3,
			Amount: 150, PaymentMethod: models.PaymentMethodMobileMoney,
			PaymentStatus: models.PaymentStatusPending,
			PaymentReference: "momo_001", Gateway: "mobile_money",
		})

		_, err := env.payments.ReconcilePayment(20, &ChargeResult{Reference: "momo_001", Status: ChargeSucceeded})
		require.NoError(t, err)

		rentalLock := env.store.lockIndex("RentalByIDForUpdate")
		paymentLock := env.store.lockIndex("PaymentByIDForUpdate")
		require.GreaterOrEqual(t, rentalLock, 0)
		require.GreaterOrEqual(t, paymentLock, 0)
		require.Less(t, rentalLock, paymentLock)
	})

	t.Run("取消退款同樣先鎖租約再鎖付款", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusConfirmed, models.RentalPaymentPaid)
		now := time.Now()
		env.store.addPayment(models.Payment{
			PaymentID: 20, RentalID: rental.RentalID, UserID: 3,
			Amount: 150, PaymentMethod: models.PaymentMethodCard,
			PaymentStatus: models.PaymentStatusCompleted,
			PaymentReference: "ch_001", Gateway: "card", CompletedAt: &now,
		})
		env.card.refundResult = &ChargeResult{Reference: "ch_001", Status: ChargeRefunded}

		_, err := env.rentals.CancelRental(ctx, rental.RentalID, "", 3, models.RoleRenter, false)
		require.NoError(t, err)

		rentalLock := env.store.lockIndex("RentalByIDForUpdate")
		paymentLock := env.store.lockIndex("CompletedPaymentByRentalForUpdate")
		require.GreaterOrEqual(t, rentalLock, 0)
		require.GreaterOrEqual(t, paymentLock, 0)
		require.Less(t, rentalLock, paymentLock)
	})
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("已終態的付款直接回傳現況", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPaid)
		now := time.Now()
		env.store.addPayment(models.Payment{
			PaymentID: 20, RentalID: rental.RentalID, UserID: 3,
			Amount: 150, PaymentMethod: models.PaymentMethodMobileMoney,
			PaymentStatus: models.PaymentStatusCompleted,
			PaymentReference: "momo_001", Gateway: "mobile_money", CompletedAt: &now,
		})

		payment, result, err := env.payments.VerifyPayment(ctx, "mobile_money", "momo_001")
		require.NoError(t, err)
		require.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)
		// 現況用閘道結果的詞彙回報
		require.Equal(t, ChargeSucceeded, result.Status)
		// 不再打閘道
		require.Equal(t, 0, env.momo.verifyCalls)
	})

	t.Run("不存在的參考編號", func(t *testing.T) {
		env := newTestEnv()

		_, _, err := env.payments.VerifyPayment(ctx, "mobile_money", "momo_nope")
		var invalid *ValidationError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("閘道不符被拒絕", func(t *testing.T) {
		env := newTestEnv()
		env.seedCar()
		rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
		env.store.addPayment(models.Payment{
			PaymentID: 20, RentalID: rental.RentalID, UserID: 3,
			Amount: 150, PaymentMethod: models.PaymentMethodMobileMoney,
			PaymentStatus: models.PaymentStatusPending,
			PaymentReference: "momo_001", Gateway: "mobile_money",
		})

		_, _, err := env.payments.VerifyPayment(ctx, "card", "momo_001")
		var invalid *ValidationError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestReconcileStalePayments(t *testing.T) {
	env := newTestEnv()
	env.seedCar()
	rental := env.seedRental(models.RentalStatusPending, models.RentalPaymentPending)
	env.store.addPayment(models.Payment{
		PaymentID: 20, RentalID: rental.RentalID, UserID: 3,
		Amount: 150, PaymentMethod: models.PaymentMethodMobileMoney,
		PaymentStatus: models.PaymentStatusPending,
		PaymentReference: "momo_001", Gateway: "mobile_money",
		CreatedAt: time.Now().Add(-time.Hour),
	})
	env.momo.verifyResults = []*ChargeResult{
		{Reference: "momo_001", Status: ChargeSucceeded},
	}

	require.NoError(t, env.payments.ReconcileStalePayments(5*time.Minute))

	payment, _ := env.store.PaymentByID(20)
	require.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)
	stored, _ := env.store.RentalByID(rental.RentalID)
	require.Equal(t, models.RentalPaymentPaid, stored.PaymentStatus)
}

func TestNormalizePhone(t *testing.T) {
	digits, err := NormalizePhone("0912-345-678")
	require.NoError(t, err)
	require.Equal(t, "0912345678", digits)

	digits, err = NormalizePhone("+886 912 345 678")
	require.NoError(t, err)
	require.Equal(t, "886912345678", digits)

	_, err = NormalizePhone("12345")
	require.Error(t, err)

	_, err = NormalizePhone("abc-def")
	require.Error(t, err)
}
