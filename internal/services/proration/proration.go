// Package proration содержит чистые функции расчёта стоимости подписки,
// доплаты при смене плана и возврата при отмене.
// Все суммы считаются в decimal и округляются до целых единиц валюты.
package proration

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/apperr"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/month"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

// FullRefundDays сколько дней с начала периода возвращается полная сумма.
const FullRefundDays = 7

var (
	yearlyDiscount = decimal.RequireFromString("0.8")
	monthsInYear   = decimal.NewFromInt(12)

	// Множители месячной цены для поддерживаемых сроков.
	durationMultipliers = map[int]decimal.Decimal{
		1:  decimal.NewFromInt(1),
		3:  decimal.RequireFromString("2.7"),
		6:  decimal.RequireFromString("5.1"),
		12: decimal.RequireFromString("9.6"),
	}
)

// SupportedDuration сообщает, продаётся ли подписка на указанный срок.
func SupportedDuration(months int) bool {
	_, ok := durationMultipliers[months]
	return ok
}

// Term проверяет срок подписки для интервала оплаты и возвращает его в месяцах.
// Нулевой срок означает один период. Годовая оплата продаётся только на 12 месяцев,
// ежемесячная на 1, 3 или 6.
func Term(cycle models.BillingCycle, months int) (int, error) {
	if !cycle.Valid() {
		return 0, apperr.Validation("unknown billing cycle %q", cycle)
	}
	if months == 0 {
		return cycle.Months(), nil
	}
	if !SupportedDuration(months) {
		return 0, apperr.Validation("unsupported subscription duration: %d months", months)
	}
	switch {
	case cycle == models.CycleYearly && months != 12:
		return 0, apperr.Validation("yearly billing requires a 12 month term, got %d", months)
	case cycle == models.CycleMonthly && months == 12:
		return 0, apperr.Validation("a 12 month term is billed yearly")
	}
	return months, nil
}

// PriceForDuration стоимость подписки на months месяцев по месячной цене.
func PriceForDuration(monthlyPrice decimal.Decimal, months int) (decimal.Decimal, error) {
	m, ok := durationMultipliers[months]
	if !ok {
		return decimal.Zero, apperr.Validation("unsupported subscription duration: %d months", months)
	}
	return monthlyPrice.Mul(m).Round(0), nil
}

// CyclePrice стоимость одного периода оплаты. Годовой период стоит 12 месяцев со скидкой 20%.
func CyclePrice(monthlyPrice decimal.Decimal, cycle models.BillingCycle) decimal.Decimal {
	if cycle == models.CycleYearly {
		return monthlyPrice.Mul(monthsInYear).Mul(yearlyDiscount)
	}
	return monthlyPrice
}

// EndDate дата окончания подписки на months месяцев.
func EndDate(start time.Time, months int) time.Time {
	return month.Add(start, months)
}

// Input параметры расчёта доплаты при смене плана.
type Input struct {
	OldAmount       decimal.Decimal
	OldStart        time.Time
	OldEnd          time.Time
	NewMonthlyPrice decimal.Decimal
	NewCycle        models.BillingCycle
	AsOf            time.Time
}

// Result результат расчёта доплаты.
type Result struct {
	Type           models.ChangeType
	Amount         decimal.Decimal
	TotalDays      int
	RemainingDays  int
	RemainingValue decimal.Decimal
	NewCost        decimal.Decimal
}

// Prorate считает доплату за переход на новый план до конца текущего периода.
// Положительная доплата означает повышение, иначе понижение без возврата.
func Prorate(in Input) (Result, error) {
	const op = "proration.Prorate"

	totalDays := month.DaysBetween(in.OldStart, in.OldEnd)
	remainingDays := month.DaysBetween(in.AsOf, in.OldEnd)
	if totalDays <= 0 || remainingDays <= 0 {
		return Result{}, fmt.Errorf("%s: %w", op, apperr.ExpiredCycle())
	}

	total := decimal.NewFromInt(int64(totalDays))
	remaining := decimal.NewFromInt(int64(remainingDays))

	remainingValue := in.OldAmount.Mul(remaining).Div(total)
	newCost := CyclePrice(in.NewMonthlyPrice, in.NewCycle).Mul(remaining).Div(total)

	amount := decimal.Max(decimal.Zero, newCost.Sub(remainingValue).Round(0))

	changeType := models.ChangeDowngrade
	if amount.IsPositive() {
		changeType = models.ChangeUpgrade
	}

	return Result{
		Type:           changeType,
		Amount:         amount,
		TotalDays:      totalDays,
		RemainingDays:  remainingDays,
		RemainingValue: remainingValue,
		NewCost:        newCost,
	}, nil
}

// Refund сумма возврата при отмене подписки в момент now.
// В первые FullRefundDays дней возвращается вся сумма, затем пропорционально остатку периода.
func Refund(amount decimal.Decimal, start, end, now time.Time) decimal.Decimal {
	usedDays := month.DaysBetween(start, now)
	if usedDays <= FullRefundDays {
		return amount
	}

	totalDays := month.DaysBetween(start, end)
	remainingDays := totalDays - usedDays
	if remainingDays <= 0 {
		return decimal.Zero
	}

	refund := amount.Mul(decimal.NewFromInt(int64(remainingDays))).
		Div(decimal.NewFromInt(int64(totalDays))).
		Round(0)
	return decimal.Max(decimal.Zero, refund)
}
