package freight

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names one attribute of a freight draft.
type Field string

const (
	FieldDate         Field = "date"
	FieldOrigin       Field = "origin"
	FieldDestination  Field = "destination"
	FieldTons         Field = "tons"
	FieldPricePerTon  Field = "price_per_ton"
	FieldTotalValue   Field = "total_value"
	FieldCarrier      Field = "carrier"
	FieldTicketNumber Field = "ticket_number"
	FieldPlate        Field = "plate"
	FieldDriver       Field = "driver"
	FieldNote         Field = "note"
)

// RequiredFields lists, in prompt order, what a draft needs before confirmation.
var RequiredFields = []Field{
	FieldDate,
	FieldOrigin,
	FieldDestination,
	FieldTons,
	FieldPricePerTon,
	FieldCarrier,
	FieldTicketNumber,
	FieldPlate,
	FieldDriver,
}

var fieldLabels = map[Field]string{
	FieldDate:         "Data",
	FieldOrigin:       "Origem",
	FieldDestination:  "Destino",
	FieldTons:         "Toneladas",
	FieldPricePerTon:  "Preco por Tonelada",
	FieldTotalValue:   "Valor Total",
	FieldCarrier:      "Transportadora",
	FieldTicketNumber: "Ticket/Nota",
	FieldPlate:        "Placa",
	FieldDriver:       "Motorista",
	FieldNote:         "Observacao",
}

// Label returns the Portuguese label shown to drivers.
func (f Field) Label() string {
	if label, ok := fieldLabels[f]; ok {
		return label
	}
	return string(f)
}

// Draft is a partially known freight record. Nil means unknown.
type Draft struct {
	Date         *string  `json:"date,omitempty"`
	Origin       *string  `json:"origin,omitempty"`
	Destination  *string  `json:"destination,omitempty"`
	Tons         *float64 `json:"tons,omitempty"`
	PricePerTon  *float64 `json:"price_per_ton,omitempty"`
	TotalValue   *float64 `json:"total_value,omitempty"`
	Carrier      *string  `json:"carrier,omitempty"`
	TicketNumber *string  `json:"ticket_number,omitempty"`
	Plate        *string  `json:"plate,omitempty"`
	DriverName   *string  `json:"driver_name,omitempty"`
	Note         *string  `json:"note,omitempty"`
}

// Has reports whether the field carries a usable value. Blank strings count as absent.
func (d Draft) Has(f Field) bool {
	switch f {
	case FieldDate:
		return present(d.Date)
	case FieldOrigin:
		return present(d.Origin)
	case FieldDestination:
		return present(d.Destination)
	case FieldTons:
		return d.Tons != nil
	case FieldPricePerTon:
		return d.PricePerTon != nil
	case FieldTotalValue:
		return d.TotalValue != nil
	case FieldCarrier:
		return present(d.Carrier)
	case FieldTicketNumber:
		return present(d.TicketNumber)
	case FieldPlate:
		return present(d.Plate)
	case FieldDriver:
		return present(d.DriverName)
	case FieldNote:
		return present(d.Note)
	}
	return false
}

// Display renders the field for chat summaries. Absent fields render empty.
func (d Draft) Display(f Field) string {
	if !d.Has(f) {
		return ""
	}
	switch f {
	case FieldDate:
		return deref(d.Date)
	case FieldOrigin:
		return deref(d.Origin)
	case FieldDestination:
		return deref(d.Destination)
	case FieldTons:
		return strconv.FormatFloat(*d.Tons, 'f', -1, 64)
	case FieldPricePerTon:
		return strconv.FormatFloat(*d.PricePerTon, 'f', -1, 64)
	case FieldTotalValue:
		return strconv.FormatFloat(*d.TotalValue, 'f', 2, 64)
	case FieldCarrier:
		return deref(d.Carrier)
	case FieldTicketNumber:
		return deref(d.TicketNumber)
	case FieldPlate:
		return deref(d.Plate)
	case FieldDriver:
		return deref(d.DriverName)
	case FieldNote:
		return deref(d.Note)
	}
	return ""
}

// Missing returns the required fields that are still absent, in RequiredFields order.
func (d Draft) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if !d.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// DeriveTotal fills TotalValue from Tons and PricePerTon when it was not supplied.
func (d *Draft) DeriveTotal() {
	if d.TotalValue != nil || d.Tons == nil || d.PricePerTon == nil {
		return
	}
	total := math.Round(*d.Tons**d.PricePerTon*100) / 100
	d.TotalValue = &total
}

// Fill copies the listed fields from src into d, but only where src has a value
// and d does not. Fields outside the list are never touched.
func (d *Draft) Fill(src Draft, fields []Field) {
	for _, f := range fields {
		if d.Has(f) || !src.Has(f) {
			continue
		}
		switch f {
		case FieldDate:
			d.Date = src.Date
		case FieldOrigin:
			d.Origin = src.Origin
		case FieldDestination:
			d.Destination = src.Destination
		case FieldTons:
			d.Tons = src.Tons
		case FieldPricePerTon:
			d.PricePerTon = src.PricePerTon
		case FieldTotalValue:
			d.TotalValue = src.TotalValue
		case FieldCarrier:
			d.Carrier = src.Carrier
		case FieldTicketNumber:
			d.TicketNumber = src.TicketNumber
		case FieldPlate:
			d.Plate = src.Plate
		case FieldDriver:
			d.DriverName = src.DriverName
		case FieldNote:
			d.Note = src.Note
		}
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02/01/06",
	"02-01-2006",
	time.RFC3339,
}

// ParseDate accepts the date formats drivers and the oracle commonly produce.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// String returns a pointer to a trimmed copy of s, or nil when s is blank.
func String(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
