package forecast

import (
	"testing"
	"time"

	"github.com/rewired-gh/cashcast/internal/models"
)

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		start time.Time
		n     int
		want  time.Time
	}{
		{day(2024, 1, 31), 1, day(2024, 2, 29)},
		{day(2023, 1, 31), 1, day(2023, 2, 28)},
		{day(2023, 3, 31), 1, day(2023, 4, 30)},
		{day(2023, 1, 31), 3, day(2023, 4, 30)},
		{day(2023, 11, 30), 3, day(2024, 2, 29)},
		{day(2023, 12, 15), 1, day(2024, 1, 15)},
		{day(2024, 1, 31), 2, day(2024, 3, 31)},
		{day(2024, 5, 10), 0, day(2024, 5, 10)},
	}
	for _, tt := range tests {
		got := addMonthsClamped(tt.start, tt.n)
		if !got.Equal(tt.want) {
			t.Errorf("addMonthsClamped(%s, %d) = %s, want %s",
				tt.start.Format(models.DateLayout), tt.n, got.Format(models.DateLayout), tt.want.Format(models.DateLayout))
		}
	}
}

func TestOccurrenceDates(t *testing.T) {
	endJan15 := day(2024, 1, 15)
	tests := []struct {
		name        string
		entry       models.FinancialEntry
		windowStart time.Time
		periods     int
		want        []time.Time
	}{
		{
			name:        "one-time inside",
			entry:       expense("e", 1, models.OneTime, day(2024, 1, 3)),
			windowStart: day(2024, 1, 1),
			periods:     1,
			want:        []time.Time{day(2024, 1, 3)},
		},
		{
			name:        "one-time on horizon end is excluded",
			entry:       expense("e", 1, models.OneTime, day(2024, 1, 8)),
			windowStart: day(2024, 1, 1),
			periods:     1,
			want:        nil,
		},
		{
			name: "weekly stops after end date inclusive",
			entry: func() models.FinancialEntry {
				e := expense("e", 1, models.Weekly, day(2024, 1, 1))
				e.EndDate = &endJan15
				return e
			}(),
			windowStart: day(2024, 1, 1),
			periods:     6,
			want:        []time.Time{day(2024, 1, 1), day(2024, 1, 8), day(2024, 1, 15)},
		},
		{
			name:        "weekly started before window keeps its weekday",
			entry:       expense("e", 1, models.Weekly, day(2023, 12, 5)),
			windowStart: day(2024, 1, 1),
			periods:     2,
			want:        []time.Time{day(2024, 1, 2), day(2024, 1, 9)},
		},
		{
			name:        "weekly started exactly a few weeks before window",
			entry:       expense("e", 1, models.Weekly, day(2023, 12, 4)),
			windowStart: day(2024, 1, 1),
			periods:     1,
			want:        []time.Time{day(2024, 1, 1)},
		},
		{
			name:        "monthly on the 31st clamps in short months",
			entry:       expense("e", 1, models.Monthly, day(2023, 3, 31)),
			windowStart: day(2023, 3, 27),
			periods:     10,
			want:        []time.Time{day(2023, 3, 31), day(2023, 4, 30), day(2023, 5, 31)},
		},
		{
			name:        "monthly leap year february",
			entry:       expense("e", 1, models.Monthly, day(2024, 1, 31)),
			windowStart: day(2024, 1, 29),
			periods:     10,
			want:        []time.Time{day(2024, 1, 31), day(2024, 2, 29), day(2024, 3, 31)},
		},
		{
			name:        "monthly started long before window",
			entry:       expense("e", 1, models.Monthly, day(2021, 6, 15)),
			windowStart: day(2024, 1, 1),
			periods:     8,
			want:        []time.Time{day(2024, 1, 15), day(2024, 2, 15)},
		},
		{
			name:        "monthly clamp does not skip the first in-window date",
			entry:       expense("e", 1, models.Monthly, day(2023, 1, 31)),
			windowStart: day(2023, 2, 27),
			periods:     1,
			want:        []time.Time{day(2023, 2, 28)},
		},
		{
			name:        "quarterly from january 31",
			entry:       expense("e", 1, models.Quarterly, day(2023, 1, 31)),
			windowStart: day(2023, 1, 30),
			periods:     45,
			want:        []time.Time{day(2023, 1, 31), day(2023, 4, 30), day(2023, 7, 31), day(2023, 10, 31)},
		},
		{
			name:        "quarterly started before window",
			entry:       expense("e", 1, models.Quarterly, day(2022, 2, 10)),
			windowStart: day(2024, 1, 1),
			periods:     20,
			want:        []time.Time{day(2024, 2, 10), day(2024, 5, 10)},
		},
		{
			name:        "weekly started centuries before window",
			entry:       expense("e", 1, models.Weekly, day(1600, 1, 6)),
			windowStart: day(2025, 1, 6),
			periods:     2,
			want:        []time.Time{day(2025, 1, 9), day(2025, 1, 16)},
		},
		{
			name:        "monthly started centuries before window",
			entry:       expense("e", 1, models.Monthly, day(1600, 1, 31)),
			windowStart: day(2025, 2, 1),
			periods:     5,
			want:        []time.Time{day(2025, 2, 28)},
		},
		{
			name:        "starts after horizon",
			entry:       expense("e", 1, models.Weekly, day(2024, 3, 1)),
			windowStart: day(2024, 1, 1),
			periods:     2,
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windowEnd := tt.windowStart.AddDate(0, 0, daysPerPeriod*tt.periods)
			got := occurrenceDates(&tt.entry, tt.windowStart, windowEnd)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d dates %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("date %d = %s, want %s", i, got[i].Format(models.DateLayout), tt.want[i].Format(models.DateLayout))
				}
			}
		})
	}
}
