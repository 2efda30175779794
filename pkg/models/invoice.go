package models

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Placeholder is rendered for any value the backend did not supply.
const Placeholder = "—"

// Payment status values understood by the client. Anything else is kept
// verbatim and treated as unknown by the dashboard.
const (
	PaymentPaid    = "paid"
	PaymentPending = "pending"
	PaymentUnknown = "unknown"
)

// Invoice is a record as returned by the backend. The client never mutates
// it; a changed view always comes from a new fetch.
type Invoice struct {
	ID               ID     `json:"id"`
	InvoiceNumber    string `json:"invoice_number,omitempty"`
	VendorName       string `json:"vendor_name,omitempty"`
	InvoiceDate      string `json:"invoice_date,omitempty"`
	Amount           Amount `json:"amount"`
	TaxAmount        Amount `json:"tax_amount"`
	TotalAmount      Amount `json:"total_amount"`
	PaymentStatus    string `json:"payment_status,omitempty"`
	SourceFile       string `json:"source_file,omitempty"`
	UploadTimestamp  string `json:"upload_timestamp,omitempty"`
	ProcessingStatus string `json:"processing_status,omitempty"`
}

// NormalizedPaymentStatus returns the payment status trimmed and lower-cased.
func (i Invoice) NormalizedPaymentStatus() string {
	return NormalizeStatus(i.PaymentStatus)
}

// UploadLogEntry is one row of the backend's upload history.
type UploadLogEntry struct {
	ID               ID     `json:"id"`
	Filename         string `json:"filename"`
	FileType         string `json:"file_type"`
	RecordsExtracted int    `json:"records_extracted"`
	Status           string `json:"status"`
	UploadedAt       string `json:"uploaded_at,omitempty"`
}

// NormalizeStatus folds a status value for case-insensitive comparison.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ID is an opaque identifier. The backend sends integers today, but nothing
// in the client relies on that.
type ID string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Amount is an optional monetary value. Missing, null and non-numeric input
// all decode to an invalid Amount instead of failing the whole record.
type Amount struct {
	Value decimal.Decimal
	Valid bool
}

// NewAmount returns a valid Amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Value: d, Valid: true}
}

// ParseAmount parses a decimal string; invalid input yields an invalid Amount.
func ParseAmount(s string) Amount {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}
	}
	return NewAmount(d)
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "" || raw == "null":
		*a = Amount{}
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*a = Amount{}
			return nil
		}
		*a = ParseAmount(s)
	default:
		*a = ParseAmount(raw)
	}
	return nil
}

// MarshalJSON writes the value as a bare JSON number, or null.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Value.String()), nil
}

// OrZero returns the value, or zero when the amount is missing.
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Value
}

// Display formats the amount with two fraction digits, or the placeholder.
func (a Amount) Display(prefix string) string {
	if !a.Valid {
		return Placeholder
	}
	return prefix + a.Value.StringFixed(2)
}
