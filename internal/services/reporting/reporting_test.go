package reporting

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
	"github.com/magabrotheeeer/habitup-billing/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var now = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return now.AddDate(0, 0, offset)
}

type seed struct {
	status      models.SubscriptionStatus
	amount      int64
	months      int
	start, end  time.Time
	cancelledAt *time.Time
	user        string
}

func newService(t *testing.T, seeds []seed, payments []models.Payment) (*Service, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	plan := &models.Plan{ID: uuid.New(), Name: "BASIC", Price: decimal.NewFromInt(300), DurationType: models.CycleMonthly, IsActive: true}
	require.NoError(t, store.CreatePlan(ctx, plan))

	for i, sd := range seeds {
		userID := uuid.New()
		name := sd.user
		if name == "" {
			name = "user"
		}
		require.NoError(t, store.UpsertUser(ctx, &models.User{ID: userID, Name: name, Email: name + "@example.com"}))
		cycle := models.CycleMonthly
		if sd.months == 12 {
			cycle = models.CycleYearly
		}
		require.NoError(t, store.CreateSubscription(ctx, &models.Subscription{
			ID:             uuid.New(),
			UserID:         userID,
			PlanID:         plan.ID,
			PlanType:       plan.Name,
			BillingCycle:   cycle,
			DurationMonths: sd.months,
			Status:         sd.status,
			Amount:         decimal.NewFromInt(sd.amount),
			Currency:       "INR",
			StartDate:      sd.start,
			EndDate:        sd.end,
			CancelledAt:    sd.cancelledAt,
			CreatedAt:      sd.start.Add(time.Duration(i) * time.Second),
		}))
	}
	for i := range payments {
		require.NoError(t, store.CreatePayment(ctx, &payments[i]))
	}

	svc := New(store, newNoopLogger())
	svc.now = func() time.Time { return now }
	return svc, store
}

func TestService_Analytics(t *testing.T) {
	cancelledAt := day(-5)
	seeds := []seed{
		{status: models.StatusActive, amount: 300, months: 1, start: day(-40), end: day(20)},
		{status: models.StatusCancelled, amount: 300, months: 1, start: day(-45), end: day(15), cancelledAt: &cancelledAt},
		{status: models.StatusActive, amount: 1200, months: 12, start: day(-10), end: day(355)},
		{status: models.StatusPending, amount: 300, months: 1, start: day(-2), end: day(28)},
		{status: models.StatusExpired, amount: 300, months: 1, start: day(-70), end: day(-40)},
	}
	payments := []models.Payment{
		{ID: uuid.New(), Amount: decimal.NewFromInt(300), Status: models.PaymentSuccess, Type: models.PaymentCharge, GatewayPaymentID: "pay_1", CreatedAt: day(-1)},
		{ID: uuid.New(), Amount: decimal.NewFromInt(1200), Status: models.PaymentSuccess, Type: models.PaymentCharge, GatewayPaymentID: "pay_2", CreatedAt: day(-10)},
		{ID: uuid.New(), Amount: decimal.NewFromInt(300), Status: models.PaymentFailed, Type: models.PaymentCharge, GatewayPaymentID: "pay_3", CreatedAt: day(-2)},
		{ID: uuid.New(), Amount: decimal.NewFromInt(300), Status: models.PaymentSuccess, Type: models.PaymentCharge, GatewayPaymentID: "pay_4", CreatedAt: day(-60)},
		{ID: uuid.New(), Amount: decimal.NewFromInt(100), Status: models.PaymentRefunded, Type: models.PaymentRefund, GatewayPaymentID: "pay_1", CreatedAt: day(-1)},
	}
	svc, _ := newService(t, seeds, payments)

	got, err := svc.Analytics(context.Background(), DefaultPeriodDays)
	require.NoError(t, err)
	assert.Equal(t, 30, got.PeriodDays)
	assert.True(t, decimal.NewFromInt(1500).Equal(got.TotalRevenue), got.TotalRevenue.String())
	assert.Equal(t, 2, got.ActiveSubscriptions)
	assert.Equal(t, 1, got.NewSubscriptions)
	assert.Equal(t, 1, got.CancelledSubscriptions)
	assert.True(t, decimal.NewFromInt(400).Equal(got.MRR), got.MRR.String())
	assert.True(t, decimal.NewFromInt(50).Equal(got.ChurnRate), got.ChurnRate.String())

	_, err = svc.Analytics(context.Background(), 0)
	assert.True(t, apperr.IsValidation(err))
}

func TestChurnRate(t *testing.T) {
	tests := []struct {
		cancelled, base int
		want            string
	}{
		{0, 0, "0"},
		{3, 0, "0"},
		{1, 3, "33.33"},
		{2, 2, "100"},
	}
	for _, tt := range tests {
		assert.True(t, decimal.RequireFromString(tt.want).Equal(ChurnRate(tt.cancelled, tt.base)))
	}
}

func TestService_ListSubscriptions(t *testing.T) {
	seeds := []seed{
		{status: models.StatusActive, amount: 300, months: 1, start: day(-10), end: day(20), user: "anna"},
		{status: models.StatusActive, amount: 100, months: 1, start: day(-40), end: day(-10), user: "boris"},
		{status: models.StatusCancelled, amount: 200, months: 1, start: day(-5), end: day(25), user: "vera"},
	}
	svc, _ := newService(t, seeds, nil)
	ctx := context.Background()

	t.Run("lazy expiry applied to status filter", func(t *testing.T) {
		page, err := svc.ListSubscriptions(ctx, models.SubscriptionFilter{Status: models.StatusExpired})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, "boris", page.Items[0].UserName)
		assert.Equal(t, models.StatusExpired, page.Items[0].Status)
	})

	t.Run("sort by amount desc", func(t *testing.T) {
		page, err := svc.ListSubscriptions(ctx, models.SubscriptionFilter{SortBy: models.SortAmount, SortDesc: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Items, 2)
		assert.True(t, decimal.NewFromInt(300).Equal(page.Items[0].Amount))
		assert.Equal(t, 1, page.Page)
	})

	t.Run("user search", func(t *testing.T) {
		page, err := svc.ListSubscriptions(ctx, models.SubscriptionFilter{UserSearch: "VERA@"})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := svc.ListSubscriptions(ctx, models.SubscriptionFilter{Limit: 101})
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestService_GetExpired(t *testing.T) {
	seeds := []seed{
		{status: models.StatusActive, amount: 300, months: 1, start: day(-40), end: day(-10)},
		{status: models.StatusActive, amount: 300, months: 1, start: day(-35), end: day(-5)},
		{status: models.StatusActive, amount: 300, months: 1, start: day(-1), end: day(29)},
		{status: models.StatusExpired, amount: 300, months: 1, start: day(-90), end: day(-60)},
	}
	svc, _ := newService(t, seeds, nil)

	page, err := svc.GetExpired(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, day(-10), page.Items[0].EndDate)

	_, err = svc.GetExpired(context.Background(), 0, 0)
	require.NoError(t, err)
	_, err = svc.GetExpired(context.Background(), -1, 10)
	assert.True(t, apperr.IsValidation(err))
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    models.SubscriptionFilter
		wantErr bool
	}{
		{
			name:  "defaults",
			query: "",
			want:  models.SubscriptionFilter{SortBy: models.SortCreatedAt, Page: 1, Limit: 20},
		},
		{
			name:  "all params",
			query: "status=active&planType=PRO&billingCycle=yearly&search=anna&sortBy=endDate&order=desc&page=2&limit=50",
			want: models.SubscriptionFilter{
				Status: models.StatusActive, PlanType: "PRO", BillingCycle: models.CycleYearly,
				UserSearch: "anna", SortBy: models.SortEndDate, SortDesc: true, Page: 2, Limit: 50,
			},
		},
		{name: "unknown param", query: "foo=bar", wantErr: true},
		{name: "unknown status", query: "status=paused", wantErr: true},
		{name: "unknown sort", query: "sortBy=name", wantErr: true},
		{name: "bad order", query: "order=up", wantErr: true},
		{name: "zero page", query: "page=0", wantErr: true},
		{name: "limit too large", query: "limit=1000", wantErr: true},
		{name: "limit not a number", query: "limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := ParseFilter(q)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePage(t *testing.T) {
	page, limit, err := ParsePage(url.Values{"page": {"3"}, "limit": {"10"}})
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, 10, limit)

	_, _, err = ParsePage(url.Values{"status": {"ACTIVE"}})
	assert.True(t, apperr.IsValidation(err))
}
