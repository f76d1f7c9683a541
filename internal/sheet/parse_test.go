package sheet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadash/internal/model"
)

const appointmentsHeader = " ID ,Estatus,Nombre,Servicio,Precio del servicio,Dia,Hora,Numero de celular,Execution ID"

func TestParseTableNormalizesHeaders(t *testing.T) {
	table, diags := ParseTable("\ufeff Fecha , AGENDAS,Total\n2026-10-01,4,120\n")
	require.Empty(t, diags)
	assert.Equal(t, []string{"fecha", "agendas", "total"}, table.Header)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "4", table.Rows[0]["agendas"])
}

func TestParseTableEmptyInput(t *testing.T) {
	table, diags := ParseTable("")
	assert.Empty(t, table.Rows)
	assert.Empty(t, diags)
}

func TestParseTableSkipsBlankLines(t *testing.T) {
	table, diags := ParseTable("fecha,total\n\n2026-10-01,10\n\n2026-10-02,20\n")
	assert.Empty(t, diags)
	assert.Len(t, table.Rows, 2)
}

func TestParseTableFieldCountDiagnostics(t *testing.T) {
	table, diags := ParseTable("a,b,c\n1,2\n1,2,3,4\n1,2,3\n")
	require.Len(t, table.Rows, 3)
	require.Len(t, diags, 2)

	assert.Equal(t, DiagTooFewFields, diags[0].Kind)
	assert.Equal(t, 0, diags[0].Row)
	assert.Equal(t, DiagTooManyFields, diags[1].Kind)
	assert.Equal(t, 1, diags[1].Row)

	// Missing cells default to empty.
	assert.Equal(t, "", table.Rows[0]["c"])
}

func TestParseAppointments(t *testing.T) {
	csvText := strings.Join([]string{
		appointmentsHeader,
		"a1,Confirmada,Luis,Corte de barba,\"€1.234,50\",2026-10-14,10:00-11:00,600111222,ex-1",
		",,Ana,Tinte,2k,14/10/2026,9:30,,",
	}, "\n")

	batch := ParseAppointments(csvText)
	require.Empty(t, batch.Diagnostics)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, model.Appointment{
		ID:              "a1",
		Status:          "confirmada",
		ClientName:      "Luis",
		ServiceText:     "Corte de barba",
		Price:           1234.50,
		Date:            "2026-10-14",
		Time:            "10:00",
		Phone:           "600111222",
		BatchID:         "ex-1",
		ServiceCategory: model.CategoryCutBeard,
	}, batch.Records[0])

	second := batch.Records[1]
	assert.Equal(t, "cita-1", second.ID)
	assert.Equal(t, model.StatusUnknown, second.Status)
	assert.Equal(t, 2000.0, second.Price)
	assert.Equal(t, "2026-10-14", second.Date)
	assert.Equal(t, "9:30", second.Time)
	assert.Equal(t, model.CategoryDye, second.ServiceCategory)
}

func TestParseAppointmentsAliases(t *testing.T) {
	csvText := "nombre,precio,precio del servicio,número celular,numero,executionid,servicio\n" +
		"Eva,10,,611,622,run-9,Afeitado\n"

	batch := ParseAppointments(csvText)
	require.Len(t, batch.Records, 1)
	rec := batch.Records[0]

	// "precio del servicio" wins but is empty, so "precio" is used.
	assert.Equal(t, 10.0, rec.Price)
	assert.Equal(t, "611", rec.Phone)
	assert.Equal(t, "run-9", rec.BatchID)
	assert.Equal(t, model.CategoryShave, rec.ServiceCategory)
	assert.Equal(t, "cita-0", rec.ID)
}

func TestParseAppointmentsMalformedRowStillEmitted(t *testing.T) {
	const good = 3
	goodRow := "x,pendiente,Cliente,Corte,15,2026-10-14,12:00,,"
	lines := []string{
		appointmentsHeader,
		goodRow,
		// Bare quote inside an unquoted field.
		`bad,pendiente,Pe"pe,Corte,15,2026-10-14,12:00,,`,
		goodRow,
		goodRow,
	}

	batch := ParseAppointments(strings.Join(lines, "\n") + "\n")

	assert.Len(t, batch.Records, good+1)
	require.NotEmpty(t, batch.Diagnostics)
	assert.Equal(t, DiagBareQuote, batch.Diagnostics[0].Kind)
	assert.Equal(t, 1, batch.Diagnostics[0].Row)

	for _, rec := range batch.Records {
		assert.True(t, rec.ServiceCategory.Valid())
		assert.GreaterOrEqual(t, rec.Price, 0.0)
	}
}

func TestParseAccounts(t *testing.T) {
	csvText := "Fecha,Agendados,Total\n" +
		"2026-10-01,8,\"1.050,00\"\n" +
		"02/10/2026,,320\n" +
		"sin fecha,abc,xx\n"

	batch := ParseAccounts(csvText)
	require.Len(t, batch.Records, 3)

	assert.Equal(t, model.MonthlyAccount{Date: "2026-10-01", ScheduledCount: 8, Total: 1050}, batch.Records[0])
	assert.Equal(t, model.MonthlyAccount{Date: "2026-02-10", ScheduledCount: 0, Total: 320}, batch.Records[1])
	assert.Equal(t, model.MonthlyAccount{Date: "sin fecha", ScheduledCount: 0, Total: 0}, batch.Records[2])
}

func TestParseAccountsPrefersAgendas(t *testing.T) {
	batch := ParseAccounts("fecha,agendas,agendados,total\n2026-10-03,5,9,100\n2026-10-04,,9,100\n")
	require.Len(t, batch.Records, 2)
	assert.Equal(t, 5, batch.Records[0].ScheduledCount)
	assert.Equal(t, 9, batch.Records[1].ScheduledCount)
}
