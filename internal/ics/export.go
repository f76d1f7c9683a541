// Package ics renders appointments as an iCalendar feed so the agenda can be
// subscribed to from any calendar client.
package ics

import (
	"math"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/shopspring/decimal"

	"citadash/internal/dashboard"
	"citadash/internal/model"

	appLog "citadash/internal/log"
)

const (
	productID          = "-//citadash//agenda//ES"
	defaultSlotMinutes = 30
	uidDomain          = "citadash"
)

// ExportOptions controls Export.
type ExportOptions struct {
	// Name is the calendar display name (X-WR-CALNAME).
	Name string
	// SlotMinutes is the assumed length of each appointment.
	SlotMinutes int
}

// Export builds a calendar with one VEVENT per appointment of now's month
// that has both a canonical date and a readable start time. Events are
// ordered by start time.
func Export(appts []model.Appointment, now time.Time, opts ExportOptions) *ical.Calendar {
	slot := opts.SlotMinutes
	if slot <= 0 {
		slot = defaultSlotMinutes
	}
	loc := now.Location()

	type entry struct {
		appt  model.Appointment
		start time.Time
	}
	entries := make([]entry, 0, len(appts))
	skipped := 0
	for _, a := range appts {
		if !dashboard.InMonth(a.Date, now) {
			continue
		}
		start, ok := dashboard.StartOf(a.Date, a.Time, loc)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry{appt: a, start: start})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].start.Before(entries[j].start) })

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	stamp := now.UTC()
	for _, e := range entries {
		ev := cal.AddEvent(eventUID(e.appt))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(e.start)
		ev.SetEndAt(e.start.Add(time.Duration(slot) * time.Minute))
		ev.SetSummary(summary(e.appt))
		ev.SetDescription(description(e.appt))
		if st, ok := eventStatus(e.appt.Status); ok {
			ev.SetStatus(st)
		}
	}

	appLog.Debug("calendar export", "events", len(entries), "skipped", skipped, "month", now.Format("2006-01"))
	return cal
}

// Serialize is a convenience wrapper around Export.
func Serialize(appts []model.Appointment, now time.Time, opts ExportOptions) string {
	return Export(appts, now, opts).Serialize()
}

func eventUID(a model.Appointment) string {
	return a.ID + "-" + a.Date + "@" + uidDomain
}

func summary(a model.Appointment) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(a.ServiceText); s != "" {
		parts = append(parts, s)
	}
	if n := strings.TrimSpace(a.ClientName); n != "" {
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return "Cita"
	}
	return strings.Join(parts, " - ")
}

func description(a model.Appointment) string {
	lines := []string{
		"Estado: " + a.Status,
		"Categoría: " + string(a.ServiceCategory),
		"Precio: " + priceText(a.Price) + " EUR",
	}
	if a.Phone != "" {
		lines = append(lines, "Teléfono: "+a.Phone)
	}
	return strings.Join(lines, "\n")
}

func priceText(p float64) string {
	if math.IsInf(p, 0) || math.IsNaN(p) {
		p = 0
	}
	return decimal.NewFromFloat(p).StringFixed(2)
}

func eventStatus(status string) (ical.ObjectStatus, bool) {
	switch status {
	case model.StatusConfirmed:
		return ical.ObjectStatusConfirmed, true
	case model.StatusPending:
		return ical.ObjectStatusTentative, true
	case model.StatusCancelled:
		return ical.ObjectStatusCancelled, true
	default:
		return "", false
	}
}
