package core

import (
	"errors"
	"strings"
	"time"
)

// SheetName is the worksheet that holds the ledger.
const SheetName = "Pagos"

// StatusPending marks an obligation that has not been paid yet.
const StatusPending = "Pendiente"

// Column positions inside the canonical header row.
const (
	ColRegistrationDate = iota
	ColArea
	ColPaymentType
	ColProvider
	ColRecordID
	ColCurrency
	ColAmount
	ColExchangeRate
	ColAmountLocal
	ColDueDate
	ColPriority
	ColStatus
	ColNotes
	ColDueTodayFlag
	ColDueWithin7Flag

	NumColumns
)

// Headers is the persisted schema of the ledger. Order matters: it is the
// header row written whenever the worksheet is created or overwritten.
var Headers = []string{
	"Fecha Registro", "Área", "Tipo de Pago", "Proveedor", "ID Registro", "Moneda",
	"Monto", "Tipo Cambio", "Monto en S/", "Fecha Vencimiento", "Prioridad",
	"Estado", "Observaciones", "Pagos hoy", "Proximos 7 dias",
}

var (
	ErrEmptyProvider = errors.New("empty provider")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

type (
	// Date is a calendar date. The zero value means "no date".
	Date struct {
		time.Time
	}

	// Record is one payment obligation, i.e. one ledger row.
	Record struct {
		RegistrationDate Date
		Area             string
		PaymentType      string
		Provider         string
		RecordID         string
		Currency         string
		Amount           Amount
		ExchangeRate     Amount
		AmountLocal      Amount
		DueDate          Date
		Priority         string
		Status           string
		Notes            string
		DueTodayFlag     string
		DueWithin7Flag   string
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the calendar date of now, in now's location.
func Today(now time.Time) Date {
	y, m, d := now.Date()
	return NewDate(y, int(m), d)
}

// IsEmpty reports whether the date is null.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	if d.IsEmpty() {
		return d
	}
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// String formats the date as YYYY-MM-DD, or "" for a null date.
func (d Date) String() string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format("2006-01-02")
}

// Cells returns the record as raw cells in canonical column order.
func (r Record) Cells() []string {
	cells := make([]string, NumColumns)
	cells[ColRegistrationDate] = r.RegistrationDate.String()
	cells[ColArea] = r.Area
	cells[ColPaymentType] = r.PaymentType
	cells[ColProvider] = r.Provider
	cells[ColRecordID] = r.RecordID
	cells[ColCurrency] = r.Currency
	cells[ColAmount] = r.Amount.String()
	cells[ColExchangeRate] = r.ExchangeRate.String()
	cells[ColAmountLocal] = r.AmountLocal.String()
	cells[ColDueDate] = r.DueDate.String()
	cells[ColPriority] = r.Priority
	cells[ColStatus] = r.Status
	cells[ColNotes] = r.Notes
	cells[ColDueTodayFlag] = r.DueTodayFlag
	cells[ColDueWithin7Flag] = r.DueWithin7Flag
	return cells
}

// IsDueToday reports whether the due date falls on today.
func (r Record) IsDueToday(today Date) bool {
	return !r.DueDate.IsEmpty() && r.DueDate.Equal(today.Time)
}

// IsDueWithin reports whether the due date is strictly after today and at
// most days after it.
func (r Record) IsDueWithin(today Date, days int) bool {
	if r.DueDate.IsEmpty() {
		return false
	}
	return r.DueDate.After(today.Time) && !r.DueDate.After(today.AddDays(days).Time)
}

// Validate checks a record entered through the add form. Loaded rows are
// never validated: bad cells there degrade to null instead.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Provider) == "" {
		return ErrEmptyProvider
	}
	if !r.Amount.Valid() {
		return ErrInvalidAmount
	}
	if r.DueDate.IsEmpty() {
		return ErrInvalidDate
	}
	return nil
}

// flag renders a boolean the way the ledger stores it.
func flag(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}

// WithComputedFlags fills the informational due flags when they are blank.
// Existing values are left as they are.
func (r Record) WithComputedFlags(today Date) Record {
	if strings.TrimSpace(r.DueTodayFlag) == "" {
		r.DueTodayFlag = flag(r.IsDueToday(today))
	}
	if strings.TrimSpace(r.DueWithin7Flag) == "" {
		r.DueWithin7Flag = flag(r.IsDueWithin(today, 7))
	}
	return r
}
