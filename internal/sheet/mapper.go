package sheet

import (
	"strconv"

	"citadash/internal/model"

	appLog "citadash/internal/log"
)

// Header aliases per canonical field, in priority order. Headers are
// compared after trimming and lower-casing.
var (
	AliasID      = []string{"id"}
	AliasStatus  = []string{"estatus"}
	AliasName    = []string{"nombre"}
	AliasService = []string{"servicio"}
	AliasPrice   = []string{"precio del servicio", "precio"}
	AliasDay     = []string{"dia"}
	AliasHour    = []string{"hora"}
	AliasPhone   = []string{"numero de celular", "número celular", "numero celular", "numero"}
	AliasBatchID = []string{"execution id", "executionid"}
	AliasDate    = []string{"fecha"}
	AliasCount   = []string{"agendas", "agendados"}
	AliasTotal   = []string{"total"}
)

const idPlaceholder = "cita-"

// Batch is the result of one ingestion call: records in source row order
// plus any non-fatal diagnostics.
type Batch[T any] struct {
	Records     []T          `json:"records"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// ParseAppointments ingests the appointments sheet.
func ParseAppointments(text string) Batch[model.Appointment] {
	table, diags := ParseTable(text)

	out := Batch[model.Appointment]{
		Records:     make([]model.Appointment, 0, len(table.Rows)),
		Diagnostics: diags,
	}
	for idx, row := range table.Rows {
		out.Records = append(out.Records, MapAppointment(idx, row))
	}

	logBatch("appointments", len(out.Records), diags)
	return out
}

// MapAppointment builds an Appointment from one row. idx is the 0-based data
// row index used for the placeholder ID.
func MapAppointment(idx int, row Row) model.Appointment {
	id := row.First(AliasID...)
	if id == "" {
		id = idPlaceholder + strconv.Itoa(idx)
	}
	service := row.First(AliasService...)

	return model.Appointment{
		ID:              id,
		Status:          NormalizeStatus(row.First(AliasStatus...)),
		ClientName:      row.First(AliasName...),
		ServiceText:     service,
		Price:           NormalizePrice(row.First(AliasPrice...)),
		Date:            NormalizeDate(row.First(AliasDay...)),
		Time:            NormalizeTime(row.First(AliasHour...)),
		Phone:           row.First(AliasPhone...),
		BatchID:         row.First(AliasBatchID...),
		ServiceCategory: CategorizeService(service),
	}
}

// ParseAccounts ingests the monthly accounts sheet.
func ParseAccounts(text string) Batch[model.MonthlyAccount] {
	table, diags := ParseTable(text)

	out := Batch[model.MonthlyAccount]{
		Records:     make([]model.MonthlyAccount, 0, len(table.Rows)),
		Diagnostics: diags,
	}
	for _, row := range table.Rows {
		out.Records = append(out.Records, MapAccount(row))
	}

	logBatch("accounts", len(out.Records), diags)
	return out
}

// MapAccount builds a MonthlyAccount from one row.
func MapAccount(row Row) model.MonthlyAccount {
	return model.MonthlyAccount{
		Date:           NormalizeDate(row.First(AliasDate...)),
		ScheduledCount: ParseCount(row.First(AliasCount...)),
		Total:          NormalizePrice(row.First(AliasTotal...)),
	}
}

func logBatch(kind string, records int, diags []Diagnostic) {
	if len(diags) > 0 {
		first := diags[0]
		appLog.Warn("csv parse diagnostics",
			"kind", kind,
			"count", len(diags),
			"first", first.String(),
		)
	}
	appLog.Debug("csv parsed", "kind", kind, "records", records)
}
