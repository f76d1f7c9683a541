package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DiagnosticKind classifies a structural problem found while reading CSV.
type DiagnosticKind string

const (
	DiagBareQuote     DiagnosticKind = "bare_quote"
	DiagQuote         DiagnosticKind = "quote"
	DiagTooFewFields  DiagnosticKind = "too_few_fields"
	DiagTooManyFields DiagnosticKind = "too_many_fields"
	DiagRead          DiagnosticKind = "read"
)

// Diagnostic is a non-fatal parse problem. Row is the 0-based data row
// index the problem was attached to; Line is the 1-based source line.
type Diagnostic struct {
	Row     int            `json:"row"`
	Line    int            `json:"line"`
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("row %d (line %d): %s: %s", d.Row, d.Line, d.Kind, d.Message)
}

// Row maps a lower-cased, trimmed header name to the raw cell value.
type Row map[string]string

// First returns the first non-empty value among the given header aliases,
// in priority order.
func (r Row) First(aliases ...string) string {
	for _, a := range aliases {
		if v := r[a]; v != "" {
			return v
		}
	}
	return ""
}

// Table is the header plus data rows of a CSV document.
type Table struct {
	Header []string
	Rows   []Row
}

// ParseTable splits delimited text into a header and rows. It never fails:
// rows with structural problems are still emitted with whatever cells could
// be recovered, and the problems are returned as diagnostics.
func ParseTable(text string) (Table, []Diagnostic) {
	text = strings.TrimPrefix(text, "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1

	var (
		table Table
		diags []Diagnostic
	)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return table, nil
	}
	if err != nil {
		diags = append(diags, diagnosticFor(-1, err))
	}
	for _, h := range header {
		table.Header = append(table.Header, normalizeHeader(h))
	}
	if len(table.Header) == 0 {
		return table, diags
	}

	for idx := 0; ; {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			diags = append(diags, diagnosticFor(idx, err))
			if rec == nil && !isParseError(err) {
				// Unrecoverable reader failure; nothing more to read.
				break
			}
		}

		if err == nil {
			line, _ := r.FieldPos(0)
			switch {
			case len(rec) < len(table.Header):
				diags = append(diags, Diagnostic{Row: idx, Line: line, Kind: DiagTooFewFields,
					Message: fmt.Sprintf("expected %d fields, got %d", len(table.Header), len(rec))})
			case len(rec) > len(table.Header):
				diags = append(diags, Diagnostic{Row: idx, Line: line, Kind: DiagTooManyFields,
					Message: fmt.Sprintf("expected %d fields, got %d", len(table.Header), len(rec))})
			}
		}

		table.Rows = append(table.Rows, makeRow(table.Header, rec))
		idx++
	}

	return table, diags
}

func makeRow(header []string, rec []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		if _, seen := row[h]; seen {
			continue
		}
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func isParseError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

func diagnosticFor(row int, err error) Diagnostic {
	d := Diagnostic{Row: row, Kind: DiagRead, Message: err.Error()}

	var pe *csv.ParseError
	if errors.As(err, &pe) {
		d.Line = pe.StartLine
		switch {
		case errors.Is(pe.Err, csv.ErrBareQuote):
			d.Kind = DiagBareQuote
		case errors.Is(pe.Err, csv.ErrQuote):
			d.Kind = DiagQuote
		}
	}
	return d
}
