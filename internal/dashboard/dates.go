package dashboard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Calendar math uses the location of the reference time. Record dates carry
// no zone, so a YYYY-MM-DD value is read as that day in now's location.

var (
	clockRe      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	leadingIntRe = regexp.MustCompile(`^[+-]?\d+`)
)

// Spanish short labels used by the presentation layer.
var (
	monthShort   = [...]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"}
	weekdayShort = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}
)

// ParseDay parses a canonical YYYY-MM-DD date as midnight in loc. Anything
// else reports false.
func ParseDay(s string, loc *time.Location) (time.Time, bool) {
	if len(s) != len(time.DateOnly) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsToday reports whether date denotes the calendar day of now.
func IsToday(date string, now time.Time) bool {
	t, ok := ParseDay(date, now.Location())
	if !ok {
		return false
	}
	y, m, d := now.Date()
	ty, tm, td := t.Date()
	return y == ty && m == tm && d == td
}

// InMonth reports whether date falls within now's calendar month.
func InMonth(date string, now time.Time) bool {
	t, ok := ParseDay(date, now.Location())
	if !ok {
		return false
	}
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// dayLabel formats a date as "01 oct".
func dayLabel(t time.Time) string {
	return fmt.Sprintf("%02d %s", t.Day(), monthShort[t.Month()-1])
}

// weekdayLabel formats a date as "mié".
func weekdayLabel(t time.Time) string {
	return weekdayShort[t.Weekday()]
}

// clockOf parses a strict H:MM / HH:MM value into hour and minute.
func clockOf(s string) (hour, minute int, ok bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// hourOf reads the leading integer before the first ":" ("9:30" -> 9,
// "10am" -> 10). It reports false when there is none.
func hourOf(s string) (int, bool) {
	head, _, _ := strings.Cut(s, ":")
	m := leadingIntRe.FindString(strings.TrimLeft(head, " \t"))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// StartOf combines a YYYY-MM-DD date and a strict H:MM time in loc. Rows
// missing either part report false.
func StartOf(date, clock string, loc *time.Location) (time.Time, bool) {
	day, ok := ParseDay(date, loc)
	if !ok {
		return time.Time{}, false
	}
	hour, minute, ok := clockOf(clock)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), true
}
