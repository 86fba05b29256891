package services

import (
	"context"
	"sync"
	"time"

	"carhive/models"
)

// memStore 測試用的記憶體 Store。讀取回傳副本、Save 才寫回，
// 模擬資料庫「沒存檔就沒變更」的語意。
type memStore struct {
	mu            sync.Mutex
	cars          map[int]models.Car
	rentals       map[int]models.Rental
	payments      map[int]models.Payment
	notifications map[int]models.Notification

	nextRentalID       int
	nextPaymentID      int
	nextNotificationID int

	// 記錄加鎖讀取的呼叫順序，驗證鎖定順序用
	lockCalls []string
}

func (m *memStore) recordLock(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls = append(m.lockCalls, name)
}

func (m *memStore) lockIndex(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.lockCalls {
		if c == name {
			return i
		}
	}
	return -1
}

func newMemStore() *memStore {
	return &memStore{
		cars:               make(map[int]models.Car),
		rentals:            make(map[int]models.Rental),
		payments:           make(map[int]models.Payment),
		notifications:      make(map[int]models.Notification),
		nextRentalID:       1,
		nextPaymentID:      1,
		nextNotificationID: 1,
	}
}

func (m *memStore) addCar(car models.Car) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cars[car.CarID] = car
}

func (m *memStore) addRental(r models.Rental) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RentalID >= m.nextRentalID {
		m.nextRentalID = r.RentalID + 1
	}
	m.rentals[r.RentalID] = r
}

func (m *memStore) addPayment(p models.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.PaymentID >= m.nextPaymentID {
		m.nextPaymentID = p.PaymentID + 1
	}
	m.payments[p.PaymentID] = p
}

func (m *memStore) Transaction(fn func(tx Store) error) error {
	return fn(m)
}

func (m *memStore) CarByID(id int) (*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	car, ok := m.cars[id]
	if !ok {
		return nil, nil
	}
	return &car, nil
}

func (m *memStore) CarByIDForUpdate(id int) (*models.Car, error) {
	m.recordLock("CarByIDForUpdate")
	return m.CarByID(id)
}

func (m *memStore) CreateRental(r *models.Rental) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.RentalID = m.nextRentalID
	m.nextRentalID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.rentals[r.RentalID] = *r
	return nil
}

func (m *memStore) SaveRental(r *models.Rental) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rentals[r.RentalID] = *r
	return nil
}

func (m *memStore) RentalByID(id int) (*models.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rental, ok := m.rentals[id]
	if !ok {
		return nil, nil
	}
	return &rental, nil
}

func (m *memStore) RentalByIDForUpdate(id int) (*models.Rental, error) {
	m.recordLock("RentalByIDForUpdate")
	return m.RentalByID(id)
}

func (m *memStore) CountOverlappingRentals(carID int, start, end time.Time, excludeRentalID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, r := range m.rentals {
		if r.CarID != carID || r.Status == models.RentalStatusCancelled {
			continue
		}
		if excludeRentalID > 0 && r.RentalID == excludeRentalID {
			continue
		}
		if r.StartDate.Before(end) && r.EndDate.After(start) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) PendingRentalsStartedBefore(t time.Time) ([]models.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Rental
	for _, r := range m.rentals {
		if r.Status == models.RentalStatusPending &&
			r.PaymentStatus != models.RentalPaymentPaid &&
			r.StartDate.Before(t) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreatePayment(p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.PaymentID = m.nextPaymentID
	m.nextPaymentID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.payments[p.PaymentID] = *p
	return nil
}

func (m *memStore) SavePayment(p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.PaymentID] = *p
	return nil
}

func (m *memStore) PaymentByID(id int) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

func (m *memStore) PaymentByIDForUpdate(id int) (*models.Payment, error) {
	m.recordLock("PaymentByIDForUpdate")
	return m.PaymentByID(id)
}

func (m *memStore) PaymentByReference(ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PaymentReference == ref {
			payment := p
			return &payment, nil
		}
	}
	return nil, nil
}

func (m *memStore) CompletedPaymentByRentalForUpdate(rentalID int) (*models.Payment, error) {
	m.recordLock("CompletedPaymentByRentalForUpdate")
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Payment
	for _, p := range m.payments {
		if p.RentalID == rentalID && p.PaymentStatus == models.PaymentStatusCompleted {
			payment := p
			if found == nil || (payment.CompletedAt != nil && found.CompletedAt != nil &&
				payment.CompletedAt.After(*found.CompletedAt)) {
				found = &payment
			}
		}
	}
	return found, nil
}

func (m *memStore) PendingPaymentsOlderThan(gateway string, cutoff time.Time) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.Gateway == gateway && p.PaymentStatus == models.PaymentStatusPending &&
			p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreateNotification(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.NotificationID = m.nextNotificationID
	m.nextNotificationID++
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications[n.NotificationID] = *n
	return nil
}

func (m *memStore) NotificationsByUser(userID int, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) MarkNotificationsRead(userID int, ids []int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for _, id := range ids {
		n, ok := m.notifications[id]
		if !ok || n.UserID != userID || n.IsRead {
			continue
		}
		n.IsRead = true
		m.notifications[id] = n
		updated++
	}
	return updated, nil
}

// fakeGateway 測試用的金流閘道。Verify 依序回傳 verifyResults，
// 用完後重複最後一筆。
type fakeGateway struct {
	mu   sync.Mutex
	name string

	chargeResult *ChargeResult
	chargeErr    error
	chargeCalls  int

	verifyResults []*ChargeResult
	verifyErr     error
	verifyCalls   int

	refundResult *ChargeResult
	refundErr    error
	refundCalls  int
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeCalls++
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	return g.chargeResult, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	idx := g.verifyCalls
	g.verifyCalls++
	if idx >= len(g.verifyResults) {
		idx = len(g.verifyResults) - 1
	}
	return g.verifyResults[idx], nil
}

func (g *fakeGateway) Refund(ctx context.Context, reference string, amount float64) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return g.refundResult, nil
}

// recordingPusher 記錄推播事件
type pushedEvent struct {
	UserID int
	Event  string
}

type recordingPusher struct {
	mu     sync.Mutex
	events []pushedEvent
}

func (p *recordingPusher) Push(userID int, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushedEvent{UserID: userID, Event: event})
	return nil
}

func (p *recordingPusher) eventsFor(userID int) []pushedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushedEvent
	for _, e := range p.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// testEnv 組裝一套用 memStore 和 fakeGateway 接起來的服務
type testEnv struct {
	store    *memStore
	pusher   *recordingPusher
	card     *fakeGateway
	momo     *fakeGateway
	notifier *NotificationService
	payments *PaymentService
	rentals  *RentalService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	pusher := &recordingPusher{}
	card := &fakeGateway{name: "card"}
	momo := &fakeGateway{name: "mobile_money"}
	notifier := NewNotificationService(store, pusher)
	payments := NewPaymentService(store, notifier, card, momo)
	rentals := NewRentalService(store, payments, notifier)
	return &testEnv{
		store:    store,
		pusher:   pusher,
		card:     card,
		momo:     momo,
		notifier: notifier,
		payments: payments,
		rentals:  rentals,
	}
}

// seedCar 建立一輛 owner 2 的車，日租 50
func (e *testEnv) seedCar() models.Car {
	car := models.Car{
		CarID:       1,
		OwnerID:     2,
		DailyRate:   50,
		IsAvailable: true,
	}
	e.store.addCar(car)
	return car
}

// seedRental 建立 renter 3 對車 1 的 pending 租約，3 天共 150
func (e *testEnv) seedRental(status, paymentStatus string) models.Rental {
	start := time.Now().AddDate(0, 0, 7).Truncate(24 * time.Hour)
	rental := models.Rental{
		RentalID:      10,
		CarID:         1,
		UserID:        3,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, 3),
		TotalDays:     3,
		DailyRate:     50,
		TotalCost:     150,
		Status:        status,
		PaymentStatus: paymentStatus,
	}
	e.store.addRental(rental)
	return rental
}
