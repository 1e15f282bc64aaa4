package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/habitup-billing/internal/cache"
	"github.com/magabrotheeeer/habitup-billing/internal/config"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/storage/memory"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event models.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store  *memory.Store
	events *recordingPublisher
	plan   *models.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	plan := &models.Plan{ID: uuid.New(), Name: "PRO", Price: decimal.NewFromInt(199), DurationType: models.CycleMonthly, IsActive: true}
	require.NoError(t, store.CreatePlan(context.Background(), plan))
	return &fixture{store: store, events: &recordingPublisher{}, plan: plan}
}

func (f *fixture) subscription(t *testing.T, status models.SubscriptionStatus, end time.Time) *models.Subscription {
	t.Helper()
	ctx := context.Background()
	user := &models.User{ID: uuid.New(), Name: "Ivan", Email: "ivan@example.com", Role: models.RoleUser}
	require.NoError(t, f.store.UpsertUser(ctx, user))
	sub := &models.Subscription{
		ID:             uuid.New(),
		UserID:         user.ID,
		PlanID:         f.plan.ID,
		PlanType:       f.plan.Name,
		BillingCycle:   models.CycleMonthly,
		DurationMonths: 1,
		Status:         status,
		Amount:         f.plan.Price,
		Currency:       "INR",
		StartDate:      end.AddDate(0, -1, 0),
		EndDate:        end,
	}
	require.NoError(t, f.store.CreateSubscription(ctx, sub))
	require.NoError(t, f.store.SetUserSubscriptionStatus(ctx, user.ID, status))
	return sub
}

func (f *fixture) service(guard Guard, window time.Duration) *Service {
	svc := New(f.store, f.events, guard, window, newNoopLogger())
	svc.now = func() time.Time { return baseTime }
	return svc
}

func newGuard(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	overdue := f.subscription(t, models.StatusActive, baseTime.Add(-time.Hour))
	soon := f.subscription(t, models.StatusActive, baseTime.Add(6*time.Hour))
	later := f.subscription(t, models.StatusActive, baseTime.AddDate(0, 0, 10))
	cancelled := f.subscription(t, models.StatusCancelled, baseTime.Add(-time.Hour))

	res, err := f.service(nil, 24*time.Hour).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Expired: 1, Reminded: 1}, res)

	got, err := f.store.GetSubscription(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	user, err := f.store.GetUser(ctx, overdue.UserID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusExpired), user.SubscriptionStatus)

	for _, id := range []uuid.UUID{soon.ID, later.ID} {
		got, err := f.store.GetSubscription(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, got.Status)
	}
	got, err = f.store.GetSubscription(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	require.Len(t, f.events.events, 2)
	assert.Equal(t, models.EventExpired, f.events.events[0].Type)
	assert.Equal(t, overdue.ID, f.events.events[0].SubscriptionID)
	assert.Equal(t, "ivan@example.com", f.events.events[0].Email)
	assert.Equal(t, models.EventExpiring, f.events.events[1].Type)
	assert.Equal(t, soon.ID, f.events.events[1].SubscriptionID)
	assert.Equal(t, "Ivan", f.events.events[1].Name)
}

func TestService_Sweep_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.subscription(t, models.StatusActive, baseTime.Add(-time.Hour))
	f.subscription(t, models.StatusActive, baseTime.Add(2*time.Hour))

	guard, _ := newGuard(t)
	svc := f.service(guard, 24*time.Hour)

	first, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Expired: 1, Reminded: 1}, first)

	second, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)

	assert.Equal(t, []string{models.EventExpired, models.EventExpiring}, f.events.types())
}

func TestService_Sweep_GuardUnavailable(t *testing.T) {
	f := newFixture(t)
	f.subscription(t, models.StatusActive, baseTime.Add(2*time.Hour))

	guard, mr := newGuard(t)
	mr.Close()

	res, err := f.service(guard, 24*time.Hour).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reminded)
}

func TestService_Sweep_NoWindow(t *testing.T) {
	f := newFixture(t)
	f.subscription(t, models.StatusActive, baseTime.Add(2*time.Hour))

	res, err := f.service(nil, 0).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, f.events.types())
}

func TestService_Sweep_PublishErrorDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	sub := f.subscription(t, models.StatusActive, baseTime.Add(-time.Minute))

	res, err := f.service(nil, time.Hour).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	got, err := f.store.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
}

func TestService_Run_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.subscription(t, models.StatusActive, baseTime.Add(-time.Minute))
	svc := f.service(nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.events.types()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
