package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"citadash/internal/model"
)

// NextAppointment is the earliest of today's appointments still ahead of now.
type NextAppointment struct {
	Appointment model.Appointment `json:"appointment"`
	Minutes     int               `json:"minutes"`
	Remaining   string            `json:"remaining"`
}

// NextUpcoming picks the earliest appointment in today whose start time is
// strictly after now. It returns nil when there is none.
func NextUpcoming(today []model.Appointment, now time.Time) *NextAppointment {
	type candidate struct {
		appt model.Appointment
		slot time.Time
	}

	y, m, d := now.Date()
	upcoming := make([]candidate, 0, len(today))
	for _, a := range today {
		hour, minute, ok := clockOf(a.Time)
		if !ok {
			continue
		}
		slot := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
		if slot.After(now) {
			upcoming = append(upcoming, candidate{appt: a, slot: slot})
		}
	}
	if len(upcoming) == 0 {
		return nil
	}

	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].slot.Before(upcoming[j].slot) })
	next := upcoming[0]

	minutes := int(next.slot.Sub(now) / time.Minute)
	appt := next.appt
	appt.Price = finite(appt.Price)
	return &NextAppointment{
		Appointment: appt,
		Minutes:     minutes,
		Remaining:   RemainingLabel(minutes),
	}
}

// RemainingLabel renders a countdown: "En 25 min" below an hour, otherwise
// "En 2h 5m".
func RemainingLabel(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("En %d min", minutes)
	}
	return fmt.Sprintf("En %dh %dm", minutes/60, minutes%60)
}

// TodayAppointments lists today's appointments matching query (a
// case-insensitive substring of name, service or status), ordered by hour.
// Appointments without a readable hour go last.
func TodayAppointments(appts []model.Appointment, now time.Time, query string) []model.Appointment {
	q := strings.ToLower(strings.TrimSpace(query))

	out := make([]model.Appointment, 0)
	for _, a := range FilterToday(appts, now) {
		if q == "" ||
			strings.Contains(strings.ToLower(a.ClientName), q) ||
			strings.Contains(strings.ToLower(a.ServiceText), q) ||
			strings.Contains(strings.ToLower(a.Status), q) {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		hi, iok := hourOf(out[i].Time)
		hj, jok := hourOf(out[j].Time)
		if iok != jok {
			return iok
		}
		return hi < hj
	})
	return out
}
