// Package memory реализует хранилище биллинга в памяти процесса.
// Набор методов совпадает с repository.Storage; используется в тестах сервисов
// и для локального запуска без PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

type state struct {
	plans         map[uuid.UUID]models.Plan
	subscriptions map[uuid.UUID]models.Subscription
	payments      []models.Payment
	users         map[uuid.UUID]models.User
}

func (s state) clone() state {
	c := state{
		plans:         make(map[uuid.UUID]models.Plan, len(s.plans)),
		subscriptions: make(map[uuid.UUID]models.Subscription, len(s.subscriptions)),
		payments:      append([]models.Payment(nil), s.payments...),
		users:         make(map[uuid.UUID]models.User, len(s.users)),
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// Store хранилище в памяти. Транзакции сериализуются и откатываются снимком состояния.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

type txKey struct{}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		data: state{
			plans:         make(map[uuid.UUID]models.Plan),
			subscriptions: make(map[uuid.UUID]models.Subscription),
			users:         make(map[uuid.UUID]models.User),
		},
	}
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error { return nil }

// InTx выполняет fn атомарно: при ошибке все изменения откатываются.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// LockUser внутри InTx не нужен: транзакции уже выполняются по одной.
func (s *Store) LockUser(ctx context.Context, _ uuid.UUID) error {
	if ctx.Value(txKey{}) == nil {
		return fmt.Errorf("memory.LockUser: must be called inside transaction")
	}
	return nil
}

// CreatePlan сохраняет план, имя должно быть уникальным.
func (s *Store) CreatePlan(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(plan.Name, plan.ID) {
		return apperr.Conflict("plan with this name already exists")
	}
	s.data.plans[plan.ID] = copyPlan(*plan)
	return nil
}

// GetPlan возвращает план по ID.
func (s *Store) GetPlan(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.data.plans[id]
	if !ok {
		return nil, apperr.NotFound("plan not found")
	}
	p := copyPlan(plan)
	return &p, nil
}

// UpdatePlan перезаписывает план.
func (s *Store) UpdatePlan(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.plans[plan.ID]; !ok {
		return apperr.NotFound("plan not found")
	}
	if s.nameTaken(plan.Name, plan.ID) {
		return apperr.Conflict("plan with this name already exists")
	}
	s.data.plans[plan.ID] = copyPlan(*plan)
	return nil
}

// DeletePlan удаляет план, на который не ссылаются подписки.
func (s *Store) DeletePlan(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.plans[id]; !ok {
		return apperr.NotFound("plan not found")
	}
	for _, sub := range s.data.subscriptions {
		if sub.PlanID == id {
			return apperr.Conflict("plan is referenced by subscriptions")
		}
	}
	delete(s.data.plans, id)
	return nil
}

// ListPlans возвращает планы, отсортированные по цене.
func (s *Store) ListPlans(_ context.Context, includeInactive bool) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Plan, 0, len(s.data.plans))
	for _, plan := range s.data.plans {
		if !includeInactive && !plan.IsActive {
			continue
		}
		p := copyPlan(plan)
		result = append(result, &p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Price.Equal(result[j].Price) {
			return result[i].Price.LessThan(result[j].Price)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// CountActiveSubscriptionsByPlan считает подписки в статусе ACTIVE на плане.
func (s *Store) CountActiveSubscriptionsByPlan(_ context.Context, planID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.data.subscriptions {
		if sub.PlanID == planID && sub.Status == models.StatusActive {
			count++
		}
	}
	return count, nil
}

// CreateSubscription сохраняет подписку.
func (s *Store) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.plans[sub.PlanID]; !ok {
		return apperr.NotFound("referenced record not found")
	}
	if err := s.checkActive(*sub); err != nil {
		return err
	}
	if err := s.checkOrder(*sub); err != nil {
		return err
	}
	s.data.subscriptions[sub.ID] = *sub
	return nil
}

// UpdateSubscription перезаписывает подписку.
func (s *Store) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data.subscriptions[sub.ID]
	if !ok || current.UserID != sub.UserID {
		return apperr.NotFound("subscription not found")
	}
	if err := s.checkActive(*sub); err != nil {
		return err
	}
	if err := s.checkOrder(*sub); err != nil {
		return err
	}
	s.data.subscriptions[sub.ID] = *sub
	return nil
}

// GetSubscription возвращает подписку по ID.
func (s *Store) GetSubscription(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.data.subscriptions[id]
	if !ok {
		return nil, apperr.NotFound("subscription not found")
	}
	return &sub, nil
}

// GetSubscriptionByOrderID ищет подписку по ID заказа провайдера.
func (s *Store) GetSubscriptionByOrderID(_ context.Context, orderID string) (*models.Subscription, error) {
	return s.find(func(sub models.Subscription) bool {
		return orderID != "" && sub.RazorpayOrderID == orderID
	})
}

// GetActiveSubscription возвращает подписку пользователя в статусе ACTIVE.
func (s *Store) GetActiveSubscription(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.find(func(sub models.Subscription) bool {
		return sub.UserID == userID && sub.Status == models.StatusActive
	})
}

// GetLatestSubscription возвращает последнюю по времени создания подписку пользователя.
func (s *Store) GetLatestSubscription(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Subscription
	for _, sub := range s.data.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			found := sub
			latest = &found
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("subscription not found")
	}
	return latest, nil
}

// SetOrderID привязывает заказ провайдера к подписке.
func (s *Store) SetOrderID(_ context.Context, id uuid.UUID, orderID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.data.subscriptions[id]
	if !ok {
		return apperr.NotFound("subscription not found")
	}
	sub.RazorpayOrderID = orderID
	sub.UpdatedAt = now
	if err := s.checkOrder(sub); err != nil {
		return err
	}
	s.data.subscriptions[id] = sub
	return nil
}

// FailPendingSubscriptions переводит все PENDING подписки пользователя в FAILED.
func (s *Store) FailPendingSubscriptions(_ context.Context, userID uuid.UUID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sub := range s.data.subscriptions {
		if sub.UserID != userID || sub.Status != models.StatusPending {
			continue
		}
		sub.Status = models.StatusFailed
		sub.FailureReason = reason
		sub.UpdatedAt = now
		s.data.subscriptions[id] = sub
		count++
	}
	return count, nil
}

// BulkCancel отменяет активные подписки из списка.
func (s *Store) BulkCancel(_ context.Context, ids []uuid.UUID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, id := range unique(ids) {
		sub, ok := s.data.subscriptions[id]
		if !ok || sub.Status != models.StatusActive {
			continue
		}
		cancelledAt := now
		sub.Status = models.StatusCancelled
		sub.CancelledAt = &cancelledAt
		sub.CancellationReason = reason
		sub.CancelledBy = models.CancelledByAdmin
		sub.UpdatedAt = now
		s.data.subscriptions[id] = sub
		count++
	}
	return count, nil
}

// BulkExtend продлевает активные и истёкшие подписки из списка.
// Если какая-то строка нарушает правило одной активной подписки, ничего не меняется.
func (s *Store) BulkExtend(_ context.Context, ids []uuid.UUID, days int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make(map[uuid.UUID]models.Subscription)
	for _, id := range unique(ids) {
		sub, ok := s.data.subscriptions[id]
		if !ok || (sub.Status != models.StatusActive && sub.Status != models.StatusExpired) {
			continue
		}
		end := sub.EndDate
		if now.After(end) {
			end = now
		}
		sub.EndDate = end.AddDate(0, 0, days)
		sub.Status = models.StatusActive
		sub.UpdatedAt = now
		updated[id] = sub
	}

	activeByUser := make(map[uuid.UUID]uuid.UUID)
	for id, sub := range s.data.subscriptions {
		if u, ok := updated[id]; ok {
			sub = u
		}
		if sub.Status != models.StatusActive {
			continue
		}
		if other, ok := activeByUser[sub.UserID]; ok && other != id {
			return 0, apperr.Conflict("user already has an active subscription")
		}
		activeByUser[sub.UserID] = id
	}

	for id, sub := range updated {
		s.data.subscriptions[id] = sub
	}
	return len(updated), nil
}

// ListSubscriptions возвращает страницу подписок по фильтру.
func (s *Store) ListSubscriptions(_ context.Context, filter models.SubscriptionFilter, now time.Time) ([]*models.SubscriptionRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.UserSearch)
	rows := make([]*models.SubscriptionRow, 0)
	for _, sub := range s.data.subscriptions {
		row := s.row(sub, now)
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.PlanType != "" && sub.PlanType != filter.PlanType {
			continue
		}
		if filter.BillingCycle != "" && sub.BillingCycle != filter.BillingCycle {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(row.UserName), search) &&
			!strings.Contains(strings.ToLower(row.UserEmail), search) {
			continue
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		less, equal := compare(rows[i], rows[j], filter.SortBy)
		if equal {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		if filter.SortDesc {
			return !less
		}
		return less
	})

	return paginate(rows, filter.Limit, filter.Offset()), len(rows), nil
}

// ListExpired возвращает ACTIVE подписки с прошедшей датой окончания.
func (s *Store) ListExpired(_ context.Context, now time.Time, limit, offset int) ([]*models.SubscriptionRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*models.SubscriptionRow, 0)
	for _, sub := range s.data.subscriptions {
		if sub.Status == models.StatusActive && sub.EndDate.Before(now) {
			rows = append(rows, s.row(sub, now))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].EndDate.Before(rows[j].EndDate) })
	return paginate(rows, limit, offset), len(rows), nil
}

// ListExpiringBetween возвращает ACTIVE подписки, заканчивающиеся в интервале [from, to).
func (s *Store) ListExpiringBetween(_ context.Context, from, to time.Time) ([]*models.SubscriptionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*models.SubscriptionRow, 0)
	for _, sub := range s.data.subscriptions {
		if sub.Status == models.StatusActive && !sub.EndDate.Before(from) && sub.EndDate.Before(to) {
			rows = append(rows, s.row(sub, from))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].EndDate.Before(rows[j].EndDate) })
	return rows, nil
}

// ExpireOverdue переводит просроченные ACTIVE подписки в EXPIRED.
func (s *Store) ExpireOverdue(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.Subscription, 0)
	for id, sub := range s.data.subscriptions {
		if sub.Status != models.StatusActive || !sub.EndDate.Before(now) {
			continue
		}
		sub.Status = models.StatusExpired
		sub.UpdatedAt = now
		s.data.subscriptions[id] = sub
		if u, ok := s.data.users[sub.UserID]; ok {
			u.SubscriptionStatus = string(models.StatusExpired)
			s.data.users[sub.UserID] = u
		}
		expired := sub
		result = append(result, &expired)
	}
	return result, nil
}

// CreatePayment добавляет запись в журнал платежей.
func (s *Store) CreatePayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.data.payments {
		if p.GatewayPaymentID == payment.GatewayPaymentID && p.Type == payment.Type {
			return apperr.Conflict("payment already recorded")
		}
	}
	s.data.payments = append(s.data.payments, *payment)
	return nil
}

// GetPaymentByGatewayID ищет запись журнала по ID платежа провайдера и виду операции.
func (s *Store) GetPaymentByGatewayID(_ context.Context, gatewayPaymentID string, paymentType models.PaymentType) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data.payments {
		if p.GatewayPaymentID == gatewayPaymentID && p.Type == paymentType {
			found := p
			return &found, nil
		}
	}
	return nil, apperr.NotFound("payment not found")
}

// Payments возвращает копию журнала платежей.
func (s *Store) Payments() []models.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Payment(nil), s.data.payments...)
}

// GetUser возвращает проекцию пользователя.
func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.data.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

// UpsertUser сохраняет проекцию пользователя.
func (s *Store) UpsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.data.users[user.ID]
	u := *user
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = current.SubscriptionStatus
	}
	s.data.users[user.ID] = u
	return nil
}

// SetUserSubscriptionStatus обновляет статус подписки пользователя, если он известен.
func (s *Store) SetUserSubscriptionStatus(_ context.Context, userID uuid.UUID, status models.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.data.users[userID]; ok {
		u.SubscriptionStatus = string(status)
		s.data.users[userID] = u
	}
	return nil
}

// RevenueBetween сумма успешных списаний за период [from, to).
func (s *Store) RevenueBetween(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, p := range s.data.payments {
		if p.Status == models.PaymentSuccess && p.Type == models.PaymentCharge && within(p.CreatedAt, from, to) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// MonthlyRecurringRevenue сумма месячной стоимости действующих подписок.
func (s *Store) MonthlyRecurringRevenue(_ context.Context, now time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, sub := range s.data.subscriptions {
		if sub.Status == models.StatusActive && !sub.EndDate.Before(now) && sub.DurationMonths > 0 {
			total = total.Add(sub.Amount.Div(decimal.NewFromInt(int64(sub.DurationMonths))))
		}
	}
	return total, nil
}

// CountActive число действующих подписок на момент now.
func (s *Store) CountActive(_ context.Context, now time.Time) (int, error) {
	return s.count(func(sub models.Subscription) bool {
		return sub.Status == models.StatusActive && !sub.EndDate.Before(now)
	}), nil
}

// CountStartedBetween число оплаченных подписок, начавшихся в периоде [from, to).
func (s *Store) CountStartedBetween(_ context.Context, from, to time.Time) (int, error) {
	return s.count(func(sub models.Subscription) bool {
		return paid(sub) && within(sub.StartDate, from, to)
	}), nil
}

// CountCancelledBetween число отмен в периоде [from, to).
func (s *Store) CountCancelledBetween(_ context.Context, from, to time.Time) (int, error) {
	return s.count(func(sub models.Subscription) bool {
		return sub.CancelledAt != nil && within(*sub.CancelledAt, from, to)
	}), nil
}

// CountActiveAt число подписок, действовавших в момент at.
func (s *Store) CountActiveAt(_ context.Context, at time.Time) (int, error) {
	return s.count(func(sub models.Subscription) bool {
		return paid(sub) && !sub.StartDate.After(at) && sub.EndDate.After(at) &&
			(sub.CancelledAt == nil || sub.CancelledAt.After(at))
	}), nil
}

func (s *Store) count(match func(models.Subscription) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sub := range s.data.subscriptions {
		if match(sub) {
			n++
		}
	}
	return n
}

func (s *Store) find(match func(models.Subscription) bool) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.data.subscriptions {
		if match(sub) {
			found := sub
			return &found, nil
		}
	}
	return nil, apperr.NotFound("subscription not found")
}

func (s *Store) row(sub models.Subscription, now time.Time) *models.SubscriptionRow {
	row := &models.SubscriptionRow{Subscription: sub}
	row.Status = sub.EffectiveStatus(now)
	if plan, ok := s.data.plans[sub.PlanID]; ok {
		row.PlanName = plan.Name
	}
	if u, ok := s.data.users[sub.UserID]; ok {
		row.UserName = u.Name
		row.UserEmail = u.Email
	}
	return row
}

func (s *Store) nameTaken(name string, id uuid.UUID) bool {
	for _, p := range s.data.plans {
		if p.Name == name && p.ID != id {
			return true
		}
	}
	return false
}

func (s *Store) checkActive(sub models.Subscription) error {
	if sub.Status != models.StatusActive {
		return nil
	}
	for _, other := range s.data.subscriptions {
		if other.ID != sub.ID && other.UserID == sub.UserID && other.Status == models.StatusActive {
			return apperr.Conflict("user already has an active subscription")
		}
	}
	return nil
}

func (s *Store) checkOrder(sub models.Subscription) error {
	if sub.RazorpayOrderID == "" {
		return nil
	}
	for _, other := range s.data.subscriptions {
		if other.ID != sub.ID && other.RazorpayOrderID == sub.RazorpayOrderID {
			return apperr.Conflict("duplicate record")
		}
	}
	return nil
}

func compare(a, b *models.SubscriptionRow, sortBy string) (less, equal bool) {
	switch sortBy {
	case models.SortStartDate:
		return a.StartDate.Before(b.StartDate), a.StartDate.Equal(b.StartDate)
	case models.SortEndDate:
		return a.EndDate.Before(b.EndDate), a.EndDate.Equal(b.EndDate)
	case models.SortAmount:
		return a.Amount.LessThan(b.Amount), a.Amount.Equal(b.Amount)
	default:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
}

func paginate(rows []*models.SubscriptionRow, limit, offset int) []*models.SubscriptionRow {
	if offset >= len(rows) {
		return []*models.SubscriptionRow{}
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func paid(sub models.Subscription) bool {
	return sub.Status == models.StatusActive || sub.Status == models.StatusExpired || sub.Status == models.StatusCancelled
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func copyPlan(p models.Plan) models.Plan {
	p.Features = append([]string{}, p.Features...)
	return p
}
