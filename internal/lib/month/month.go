// Package month содержит календарные вычисления для периодов подписки.
package month

import (
	"time"
)

const day = 24 * time.Hour

// DaysBetween возвращает количество дней от a до b, округлённое вверх.
// Если b раньше a, результат отрицательный.
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	days := d / day
	if d%day > 0 {
		days++
	}
	return int(days)
}

// Add прибавляет к дате календарные месяцы.
// Переполнение дня переносится вперёд, как в time.AddDate: 31 января + 1 месяц = 3 марта (2 в високосный год).
func Add(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0)
}

// Max возвращает более позднюю из двух дат.
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
