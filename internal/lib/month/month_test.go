package month

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysBetween(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a    time.Time
		b    time.Time
		want int
	}{
		{name: "same instant", a: base, b: base, want: 0},
		{name: "whole days", a: base, b: base.AddDate(0, 0, 30), want: 30},
		{name: "partial day rounds up", a: base, b: base.Add(36 * time.Hour), want: 2},
		{name: "one second rounds up", a: base, b: base.Add(time.Second), want: 1},
		{name: "negative whole days", a: base.AddDate(0, 0, 10), b: base, want: -10},
		{name: "negative partial day", a: base.Add(36 * time.Hour), b: base, want: -1},
		{name: "yearly period", a: base, b: base.AddDate(1, 0, 0), want: 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.a, tt.b))
		})
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		want   time.Time
	}{
		{
			name:   "one month",
			start:  time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:   "twelve months",
			start:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			months: 12,
			want:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "day overflow carries forward",
			start:  time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Add(tt.start, tt.months))
		})
	}
}

func TestMax(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	assert.Equal(t, late, Max(early, late))
	assert.Equal(t, late, Max(late, early))
}
