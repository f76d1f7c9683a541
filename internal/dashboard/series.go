package dashboard

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"citadash/internal/model"

	appLog "citadash/internal/log"
)

// WeekDays is the length of the rolling comparison series.
const WeekDays = 7

// Hour slot labels. BucketOther collects anything outside the opening hours
// and unparseable times.
const (
	BucketMorning   = "09:00-12:00"
	BucketMidday    = "12:00-15:00"
	BucketAfternoon = "15:00-18:00"
	BucketEvening   = "18:00-21:00"
	BucketOther     = "Otras"
)

var hourBuckets = []struct {
	label    string
	from, to int
}{
	{BucketMorning, 9, 12},
	{BucketMidday, 12, 15},
	{BucketAfternoon, 15, 18},
	{BucketEvening, 18, 21},
}

// MonthlyTrend sorts month's accounts by date (stable, so duplicate dates
// keep source order) and emits one point per account.
func MonthlyTrend(month []model.MonthlyAccount, loc *time.Location) []TrendPoint {
	sorted := make([]model.MonthlyAccount, len(month))
	copy(sorted, month)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	out := make([]TrendPoint, 0, len(sorted))
	for _, c := range sorted {
		p := TrendPoint{Date: c.Date, Total: finite(c.Total)}
		if t, ok := ParseDay(c.Date, loc); ok {
			p.Label = dayLabel(t)
		}
		out = append(out, p)
	}
	return out
}

// CategoryMix counts appointments per category in first-seen order.
func CategoryMix(appts []model.Appointment) []CategoryCount {
	out := make([]CategoryCount, 0)
	index := make(map[model.Category]int)
	for _, a := range appts {
		i, ok := index[a.ServiceCategory]
		if !ok {
			i = len(out)
			index[a.ServiceCategory] = i
			out = append(out, CategoryCount{Name: a.ServiceCategory})
		}
		out[i].Value++
	}
	return out
}

// HourBuckets groups appointments by the hour of their start time.
//
// The output order is fixed regardless of row order: 09:00-12:00,
// 12:00-15:00, 15:00-18:00, 18:00-21:00, then Otras. Empty buckets are
// omitted.
func HourBuckets(appts []model.Appointment) []HourBucket {
	counts := make([]int, len(hourBuckets)+1)
	for _, a := range appts {
		counts[bucketIndex(a.Time)]++
	}

	out := make([]HourBucket, 0)
	for i, b := range hourBuckets {
		if counts[i] > 0 {
			out = append(out, HourBucket{Range: b.label, Count: counts[i]})
		}
	}
	if n := counts[len(hourBuckets)]; n > 0 {
		out = append(out, HourBucket{Range: BucketOther, Count: n})
	}
	return out
}

func bucketIndex(clock string) int {
	hour, ok := hourOf(clock)
	if ok {
		for i, b := range hourBuckets {
			if hour >= b.from && hour < b.to {
				return i
			}
		}
	}
	return len(hourBuckets)
}

// Week returns exactly WeekDays points for the days ending at now,
// oldest first. Days without an account are zero.
func Week(accounts []model.MonthlyAccount, now time.Time) []DayPoint {
	byDate := make(map[string]model.MonthlyAccount, len(accounts))
	for _, c := range accounts {
		// First match wins.
		if _, seen := byDate[c.Date]; !seen {
			byDate[c.Date] = c
		}
	}

	out := make([]DayPoint, 0, WeekDays)
	for _, day := range lastDays(now, WeekDays) {
		key := day.Format(time.DateOnly)
		c := byDate[key]
		out = append(out, DayPoint{
			Date:      key,
			Label:     weekdayLabel(day),
			Scheduled: c.ScheduledCount,
			Total:     finite(c.Total),
		})
	}
	return out
}

// lastDays lists n consecutive calendar days ending with now's day. Days are
// anchored at noon so DST shifts cannot move them across midnight.
func lastDays(now time.Time, n int) []time.Time {
	y, m, d := now.Date()
	start := time.Date(y, m, d-(n-1), 12, 0, 0, 0, now.Location())

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start,
		Count:   n,
	})
	if err == nil {
		if days := r.All(); len(days) == n {
			return days
		}
	}

	appLog.Error("week series: daily rule failed, using date arithmetic", err, "start", start.Format(time.DateOnly))
	days := make([]time.Time, n)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}
