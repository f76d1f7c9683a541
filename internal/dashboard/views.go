// Package dashboard derives the dashboard views from normalized records and
// a reference time. Every function here is pure: the same records and the
// same now always produce the same output.
package dashboard

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"citadash/internal/model"
)

// DefaultMonthlyGoal is the revenue target used when none is configured.
const DefaultMonthlyGoal = 15000.0

// Options carries configuration values that feed the views.
type Options struct {
	MonthlyGoal float64
}

// Views is the full set of derived views for one reference time.
type Views struct {
	Now        string           `json:"now"`
	Today      TodaySummary     `json:"today"`
	Month      MonthSummary     `json:"month"`
	Categories []CategoryCount  `json:"categories"`
	Hours      []HourBucket     `json:"hours"`
	Week       []DayPoint       `json:"week"`
	Next       *NextAppointment `json:"next"`
}

// TodaySummary counts today's appointments.
type TodaySummary struct {
	Total     int     `json:"total"`
	Confirmed int     `json:"confirmed"`
	Pending   int     `json:"pending"`
	Revenue   float64 `json:"revenue"`
}

// MonthSummary is the revenue progress for the current month.
type MonthSummary struct {
	Revenue      float64      `json:"revenue"`
	Goal         float64      `json:"goal"`
	GoalProgress float64      `json:"goal_progress"`
	Trend        []TrendPoint `json:"trend"`
}

// TrendPoint is one day of the monthly revenue trend.
type TrendPoint struct {
	Date  string  `json:"date"`
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// CategoryCount is the number of today's appointments in one category.
type CategoryCount struct {
	Name  model.Category `json:"name"`
	Value int            `json:"value"`
}

// HourBucket is the number of today's appointments in one time slot.
type HourBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// DayPoint is one day of the rolling week comparison.
type DayPoint struct {
	Date      string  `json:"date"`
	Label     string  `json:"label"`
	Scheduled int     `json:"scheduled"`
	Total     float64 `json:"total"`
}

// Compute derives every view for now. Missing or empty batches yield zero
// values, never errors.
func Compute(appts []model.Appointment, accounts []model.MonthlyAccount, now time.Time, opts Options) Views {
	today := FilterToday(appts, now)

	return Views{
		Now:        now.Format(time.RFC3339),
		Today:      summarizeToday(today),
		Month:      summarizeMonth(accounts, now, opts.MonthlyGoal),
		Categories: CategoryMix(today),
		Hours:      HourBuckets(today),
		Week:       Week(accounts, now),
		Next:       NextUpcoming(today, now),
	}
}

// FilterToday keeps appointments dated on now's calendar day. Records with
// malformed dates are dropped.
func FilterToday(appts []model.Appointment, now time.Time) []model.Appointment {
	out := make([]model.Appointment, 0)
	for _, a := range appts {
		if IsToday(a.Date, now) {
			out = append(out, a)
		}
	}
	return out
}

// FilterMonth keeps accounts dated within now's calendar month.
func FilterMonth(accounts []model.MonthlyAccount, now time.Time) []model.MonthlyAccount {
	out := make([]model.MonthlyAccount, 0)
	for _, c := range accounts {
		if InMonth(c.Date, now) {
			out = append(out, c)
		}
	}
	return out
}

func summarizeToday(today []model.Appointment) TodaySummary {
	s := TodaySummary{Total: len(today)}
	revenue := decimal.Zero
	for _, a := range today {
		switch a.Status {
		case model.StatusConfirmed:
			s.Confirmed++
			revenue = revenue.Add(amount(a.Price))
		case model.StatusPending:
			s.Pending++
		}
	}
	s.Revenue = revenue.InexactFloat64()
	return s
}

func summarizeMonth(accounts []model.MonthlyAccount, now time.Time, goal float64) MonthSummary {
	if goal == 0 {
		goal = DefaultMonthlyGoal
	}
	month := FilterMonth(accounts, now)

	revenue := decimal.Zero
	for _, c := range month {
		revenue = revenue.Add(amount(c.Total))
	}

	s := MonthSummary{
		Revenue: revenue.InexactFloat64(),
		Goal:    goal,
		Trend:   MonthlyTrend(month, now.Location()),
	}
	s.GoalProgress = GoalProgress(s.Revenue, goal)
	return s
}

// finite maps Inf and NaN record values to 0 so they neither poison sums
// nor break JSON encoding.
func finite(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func amount(f float64) decimal.Decimal {
	return decimal.NewFromFloat(finite(f))
}

// GoalProgress is revenue as a percentage of goal. A non-positive goal
// yields 0.
func GoalProgress(revenue, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return revenue / goal * 100
}
