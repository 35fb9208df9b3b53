package forecast

import (
	"time"

	"github.com/rewired-gh/cashcast/internal/models"
)

const (
	daysPerPeriod = 7
	secondsPerDay = 24 * 60 * 60
)

// occurrenceDates returns every date on which entry occurs inside
// [windowStart, windowEnd). All dates are calendar days at UTC midnight.
func occurrenceDates(entry *models.FinancialEntry, windowStart, windowEnd time.Time) []time.Time {
	start := models.DateOf(entry.StartDate)

	// last is the exclusive upper bound: the horizon end, or the day after EndDate.
	last := windowEnd
	if entry.Recurrence != models.OneTime && entry.EndDate != nil {
		if afterEnd := models.DateOf(*entry.EndDate).AddDate(0, 0, 1); afterEnd.Before(last) {
			last = afterEnd
		}
	}
	if !start.Before(last) {
		return nil
	}

	switch entry.Recurrence {
	case models.OneTime:
		if !start.Before(windowStart) {
			return []time.Time{start}
		}
		return nil

	case models.Weekly:
		k := 0
		if start.Before(windowStart) {
			k = (daysBetween(start, windowStart) + daysPerPeriod - 1) / daysPerPeriod
		}
		var dates []time.Time
		for ; ; k++ {
			d := start.AddDate(0, 0, daysPerPeriod*k)
			if !d.Before(last) {
				break
			}
			if d.Before(windowStart) {
				continue
			}
			dates = append(dates, d)
		}
		return dates

	case models.Monthly, models.Quarterly:
		step := entry.Recurrence.MonthStep()
		k := 0
		if start.Before(windowStart) {
			// Jump close to the window; clamping can only pull a date earlier
			// by a few days, so starting one step back is enough.
			months := monthsBetween(start, windowStart)
			if k = months/step - 1; k < 0 {
				k = 0
			}
		}
		var dates []time.Time
		for ; ; k++ {
			d := addMonthsClamped(start, k*step)
			if !d.Before(last) {
				break
			}
			if d.Before(windowStart) {
				continue
			}
			dates = append(dates, d)
		}
		return dates
	}
	return nil
}

// addMonthsClamped adds n calendar months to d, keeping the day of month and
// clamping it to the last day of the target month.
func addMonthsClamped(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(d time.Time) int {
	return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysBetween returns the whole days from a to b for UTC-midnight dates.
// It avoids time.Duration, which overflows past about 292 years.
func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
