package model

// Category is the service family inferred from an appointment's free-text
// service description. The set is closed; see the constants below.
type Category string

const (
	CategoryCutBeard Category = "Corte+Barba"
	CategoryCut      Category = "Corte"
	CategoryShave    Category = "Afeitado"
	CategoryDye      Category = "Tinte"
	CategoryOther    Category = "Otros"
)

// Categories lists every valid Category in rule priority order.
var Categories = []Category{
	CategoryCutBeard,
	CategoryCut,
	CategoryShave,
	CategoryDye,
	CategoryOther,
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Canonical appointment statuses. Any other lower-cased value is kept as-is.
const (
	StatusConfirmed = "confirmada"
	StatusPending   = "pendiente"
	StatusCancelled = "cancelada"
	StatusUnknown   = "desconocido"
)

// Appointment represents one scheduled service after normalization.
//
// Date is YYYY-MM-DD when the source value could be parsed, otherwise the
// raw source text. Time is HH:MM (or H:MM) when a time-like substring was
// found, otherwise the raw source text.
type Appointment struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	ClientName      string   `json:"client_name"`
	ServiceText     string   `json:"service"`
	Price           float64  `json:"price"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Phone           string   `json:"phone"`
	BatchID         string   `json:"batch_id"`
	ServiceCategory Category `json:"service_category"`
}

// MonthlyAccount represents one day's revenue snapshot.
type MonthlyAccount struct {
	Date           string  `json:"date"`
	ScheduledCount int     `json:"scheduled_count"`
	Total          float64 `json:"total"`
}
