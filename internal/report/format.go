// Package report renders invoices, upload results and dashboards for the
// terminal and as XLSX workbooks.
package report

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// CurrencyPrefix is prepended to every money value.
const CurrencyPrefix = "$"

// Style is the badge style of a status cell.
type Style int

const (
	StyleNeutral Style = iota
	StyleSuccess
	StyleWarning
	StyleDanger
)

// String returns the style name.
func (s Style) String() string {
	switch s {
	case StyleSuccess:
		return "success"
	case StyleWarning:
		return "warning"
	case StyleDanger:
		return "danger"
	default:
		return "neutral"
	}
}

func (s Style) colors() tablewriter.Colors {
	switch s {
	case StyleSuccess:
		return tablewriter.Colors{tablewriter.FgGreenColor}
	case StyleWarning:
		return tablewriter.Colors{tablewriter.FgYellowColor}
	case StyleDanger:
		return tablewriter.Colors{tablewriter.FgRedColor}
	default:
		return tablewriter.Colors{tablewriter.FgHiBlackColor}
	}
}

// StatusStyle picks the badge style for a payment or processing status.
// Matching is case-insensitive; unrecognized values are neutral.
func StatusStyle(status string) Style {
	switch models.NormalizeStatus(status) {
	case models.PaymentPaid, "success":
		return StyleSuccess
	case models.PaymentPending:
		return StyleWarning
	case "failed", "rejected", "error":
		return StyleDanger
	default:
		return StyleNeutral
	}
}

// Badge returns the display text of a status, or the placeholder.
func Badge(status string) string {
	s := models.NormalizeStatus(status)
	if s == "" {
		return models.Placeholder
	}
	return s
}

// Money formats a KPI value with thousands separators and at most two
// fraction digits, e.g. $12,345.6.
func Money(d decimal.Decimal) string {
	f := d.Round(2).InexactFloat64()
	return CurrencyPrefix + humanize.CommafWithDigits(f, 2)
}

// Cell returns s, or the placeholder when s is blank.
func Cell(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.Placeholder
	}
	return s
}
