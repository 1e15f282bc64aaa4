package repository

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/habitup-billing/internal/migrations"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

// Общее хранилище на весь пакет, nil в режиме -short.
var testStorage *Storage

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code, err := runWithStorage(ctx, container, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		code = 1
	}
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

func runWithStorage(ctx context.Context, container *postgres.PostgresContainer, m *testing.M) (int, error) {
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return 1, fmt.Errorf("connection string: %w", err)
	}
	storage, err := New(dsn)
	if err != nil {
		return 1, fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	path, err := filepath.Abs("../../../migrations")
	if err != nil {
		return 1, err
	}
	if err := migrations.Run(storage.DB, path); err != nil {
		return 1, fmt.Errorf("apply migrations: %w", err)
	}

	testStorage = storage
	return m.Run(), nil
}

// setupStorage возвращает пустое хранилище для теста.
func setupStorage(t *testing.T) *Storage {
	t.Helper()
	if testStorage == nil {
		t.Skip("skipping container test in short mode")
	}
	_, err := testStorage.DB.Exec(`TRUNCATE payments, subscriptions, plans, users`)
	require.NoError(t, err)
	return testStorage
}

// testNow текущее время с точностью, которую хранит timestamptz.
func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// testFactory создаёт тестовые записи напрямую через репозиторий.
type testFactory struct {
	t       *testing.T
	storage *Storage
}

func newTestFactory(t *testing.T, storage *Storage) *testFactory {
	return &testFactory{t: t, storage: storage}
}

func (f *testFactory) plan(name string, price int64) *models.Plan {
	f.t.Helper()
	now := testNow()
	plan := &models.Plan{
		ID:           uuid.New(),
		Name:         name,
		Price:        decimal.NewFromInt(price),
		DurationType: models.CycleMonthly,
		Features:     []string{"habits", "reminders"},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(f.t, f.storage.CreatePlan(context.Background(), plan))
	return plan
}

func (f *testFactory) user(name, email string) *models.User {
	f.t.Helper()
	user := &models.User{ID: uuid.New(), Name: name, Email: email, Role: models.RoleUser}
	require.NoError(f.t, f.storage.UpsertUser(context.Background(), user))
	return user
}

// subscription создаёт подписку со статусом status, заканчивающуюся в end.
func (f *testFactory) subscription(userID uuid.UUID, plan *models.Plan, status models.SubscriptionStatus, end time.Time) *models.Subscription {
	f.t.Helper()
	now := testNow()
	sub := &models.Subscription{
		ID:             uuid.New(),
		UserID:         userID,
		PlanID:         plan.ID,
		PlanType:       plan.Name,
		BillingCycle:   models.CycleMonthly,
		DurationMonths: 1,
		Status:         status,
		Amount:         plan.Price,
		Currency:       "INR",
		StartDate:      end.AddDate(0, -1, 0),
		EndDate:        end,
		RefundAmount:   decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(f.t, f.storage.CreateSubscription(context.Background(), sub))
	return sub
}
