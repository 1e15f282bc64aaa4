// Package reporting отвечает на административные запросы: список подписок с фильтрами,
// просроченные подписки и аналитику за период.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

const (
	DefaultPage       = 1
	DefaultLimit      = 20
	MaxLimit          = 100
	DefaultPeriodDays = 30
)

type Repository interface {
	ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter, now time.Time) ([]*models.SubscriptionRow, int, error)
	ListExpired(ctx context.Context, now time.Time, limit, offset int) ([]*models.SubscriptionRow, int, error)

	RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	MonthlyRecurringRevenue(ctx context.Context, now time.Time) (decimal.Decimal, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
	CountStartedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountCancelledBetween(ctx context.Context, from, to time.Time) (int, error)
	CountActiveAt(ctx context.Context, at time.Time) (int, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func New(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ListSubscriptions страница подписок по фильтру, статус выдаётся с учётом ленивого истечения.
func (s *Service) ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) (*models.Page[*models.SubscriptionRow], error) {
	const op = "services.reporting.ListSubscriptions"

	if err := ValidateFilter(&filter); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, total, err := s.repo.ListSubscriptions(ctx, filter, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.Page[*models.SubscriptionRow]{Items: rows, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// GetExpired подписки, которые ещё числятся ACTIVE, но уже закончились.
func (s *Service) GetExpired(ctx context.Context, page, limit int) (*models.Page[*models.SubscriptionRow], error) {
	const op = "services.reporting.GetExpired"

	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, total, err := s.repo.ListExpired(ctx, s.now(), limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.Page[*models.SubscriptionRow]{Items: rows, Total: total, Page: page, Limit: limit}, nil
}

// Analytics показатели за последние periodDays дней.
// Отток считается от числа подписок, действовавших на начало периода.
func (s *Service) Analytics(ctx context.Context, periodDays int) (*models.Analytics, error) {
	const op = "services.reporting.Analytics"

	if periodDays <= 0 {
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation("period must be a positive number of days"))
	}

	now := s.now()
	from := now.AddDate(0, 0, -periodDays)
	result := &models.Analytics{PeriodDays: periodDays}

	var err error
	if result.TotalRevenue, err = s.repo.RevenueBetween(ctx, from, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result.ActiveSubscriptions, err = s.repo.CountActive(ctx, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result.NewSubscriptions, err = s.repo.CountStartedBetween(ctx, from, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result.CancelledSubscriptions, err = s.repo.CountCancelledBetween(ctx, from, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	mrr, err := s.repo.MonthlyRecurringRevenue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.MRR = mrr.Round(2)

	activeAtStart, err := s.repo.CountActiveAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.ChurnRate = ChurnRate(result.CancelledSubscriptions, activeAtStart)
	return result, nil
}

// ChurnRate процент отмен от базы на начало периода, 0 при пустой базе.
func ChurnRate(cancelled, activeAtStart int) decimal.Decimal {
	if activeAtStart == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(cancelled)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(activeAtStart))).
		Round(2)
}

// ValidateFilter проверяет значения фильтра и подставляет значения по умолчанию.
func ValidateFilter(f *models.SubscriptionFilter) error {
	if f.Status != "" && !f.Status.Valid() {
		return apperr.Validation("unknown status %q", f.Status)
	}
	if f.BillingCycle != "" && !f.BillingCycle.Valid() {
		return apperr.Validation("unknown billing cycle %q", f.BillingCycle)
	}
	switch f.SortBy {
	case "":
		f.SortBy = models.SortCreatedAt
	case models.SortCreatedAt, models.SortStartDate, models.SortEndDate, models.SortAmount:
	default:
		return apperr.Validation("unknown sort field %q", f.SortBy)
	}
	page, limit, err := normalizePage(f.Page, f.Limit)
	if err != nil {
		return err
	}
	f.Page, f.Limit = page, limit
	return nil
}

// ParseFilter разбирает query-параметры списка подписок.
// Неизвестные параметры считаются ошибкой.
func ParseFilter(q url.Values) (models.SubscriptionFilter, error) {
	var f models.SubscriptionFilter
	for key, values := range q {
		value := ""
		if len(values) > 0 {
			value = strings.TrimSpace(values[0])
		}
		var err error
		switch key {
		case "status":
			f.Status = models.SubscriptionStatus(strings.ToUpper(value))
		case "planType":
			f.PlanType = value
		case "billingCycle":
			f.BillingCycle = models.BillingCycle(strings.ToUpper(value))
		case "search":
			f.UserSearch = value
		case "sortBy":
			f.SortBy = value
		case "order":
			switch strings.ToLower(value) {
			case "", "asc":
			case "desc":
				f.SortDesc = true
			default:
				err = apperr.Validation("order must be asc or desc")
			}
		case "page":
			f.Page, err = positiveInt(key, value)
		case "limit":
			f.Limit, err = positiveInt(key, value)
		default:
			err = apperr.Validation("unknown query parameter %q", key)
		}
		if err != nil {
			return models.SubscriptionFilter{}, err
		}
	}
	if err := ValidateFilter(&f); err != nil {
		return models.SubscriptionFilter{}, err
	}
	return f, nil
}

// ParsePage разбирает page и limit, остальные параметры запрещены.
func ParsePage(q url.Values) (int, int, error) {
	var page, limit int
	for key, values := range q {
		value := ""
		if len(values) > 0 {
			value = strings.TrimSpace(values[0])
		}
		var err error
		switch key {
		case "page":
			page, err = positiveInt(key, value)
		case "limit":
			limit, err = positiveInt(key, value)
		default:
			err = apperr.Validation("unknown query parameter %q", key)
		}
		if err != nil {
			return 0, 0, err
		}
	}
	return normalizePage(page, limit)
}

func normalizePage(page, limit int) (int, int, error) {
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return 0, 0, apperr.Validation("page must be at least 1")
	}
	if limit < 1 || limit > MaxLimit {
		return 0, 0, apperr.Validation("limit must be between 1 and %d", MaxLimit)
	}
	return page, limit, nil
}

func positiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, apperr.Validation("%s must be a positive integer", key)
	}
	return n, nil
}
