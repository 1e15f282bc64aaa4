// Package models содержит доменные сущности биллинга HabitUP:
// тарифные планы, подписки, платежи и проекцию пользователя.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle интервал оплаты подписки.
type BillingCycle string

const (
	// CycleMonthly ежемесячная оплата.
	CycleMonthly BillingCycle = "MONTHLY"
	// CycleYearly годовая оплата со скидкой.
	CycleYearly BillingCycle = "YEARLY"
)

// Valid сообщает, известен ли интервал оплаты.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Months возвращает длительность одного периода в месяцах.
func (c BillingCycle) Months() int {
	if c == CycleYearly {
		return 12
	}
	return 1
}

// Plan тарифный план каталога. Price задаётся за месяц.
type Plan struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationType BillingCycle    `json:"durationType"`
	Features     []string        `json:"features"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// PlanPatch частичное обновление плана, nil означает "не менять".
type PlanPatch struct {
	Name         *string
	Price        *decimal.Decimal
	DurationType *BillingCycle
	Features     []string
	IsActive     *bool
}

// PlanRemoval результат удаления плана.
type PlanRemoval string

const (
	// PlanDeleted план удалён физически.
	PlanDeleted PlanRemoval = "deleted"
	// PlanDeactivated план скрыт, потому что на нём есть активные подписки.
	PlanDeactivated PlanRemoval = "deactivated"
)
