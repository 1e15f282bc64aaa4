package models

import (
	"github.com/shopspring/decimal"
)

// Поля сортировки списка подписок.
const (
	SortCreatedAt = "createdAt"
	SortStartDate = "startDate"
	SortEndDate   = "endDate"
	SortAmount    = "amount"
)

// SubscriptionFilter параметры административного списка подписок.
// Пустые поля не фильтруют.
type SubscriptionFilter struct {
	Status       SubscriptionStatus
	PlanType     string
	BillingCycle BillingCycle
	UserSearch   string
	SortBy       string
	SortDesc     bool
	Page         int
	Limit        int
}

// Offset смещение страницы.
func (f SubscriptionFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page страница результатов с общим числом записей.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Analytics показатели за период.
type Analytics struct {
	PeriodDays             int             `json:"periodDays"`
	TotalRevenue           decimal.Decimal `json:"totalRevenue"`
	ActiveSubscriptions    int             `json:"activeSubscriptions"`
	NewSubscriptions       int             `json:"newSubscriptions"`
	CancelledSubscriptions int             `json:"cancelledSubscriptions"`
	MRR                    decimal.Decimal `json:"mrr"`
	ChurnRate              decimal.Decimal `json:"churnRate"`
}
