// Package dashboard derives the dashboard metrics from a list of invoices.
//
// Compute is pure: it holds no state between calls and every view is rebuilt
// from the input on each call, so a summary can never be stale relative to
// the list it was computed from.
//
// Views:
//   - Totals: sum of total_amount overall and for paid and pending invoices
//   - Distribution: paid / pending / unknown counts, unknown by subtraction
//   - Vendors: invoice count per vendor, top TopVendors only
//   - Monthly: invoice count per upload month (YYYY-MM), oldest first
package dashboard

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// TopVendors is the maximum number of vendor groups kept in the histogram.
// The histogram is a lossy view: vendors beyond the top are dropped.
const TopVendors = 8

// UnknownVendor replaces a missing or blank vendor name when grouping.
const UnknownVendor = "Unknown"

// Bucket labels used by the status distribution, in output order.
const (
	BucketPaid    = "Paid"
	BucketPending = "Pending"
	BucketUnknown = "Unknown"
)

var monthKey = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}$`)

// Totals holds the KPI figures.
type Totals struct {
	Count        int             `json:"count"`
	TotalValue   decimal.Decimal `json:"total_value"`
	PaidCount    int             `json:"paid_count"`
	PaidValue    decimal.Decimal `json:"paid_value"`
	PendingCount int             `json:"pending_count"`
	PendingValue decimal.Decimal `json:"pending_value"`
}

// StatusBucket is one slice of the payment status distribution.
type StatusBucket struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// VendorCount is one bar of the vendor histogram.
type VendorCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// MonthCount is one point of the monthly series.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Summary is everything the dashboard shows.
type Summary struct {
	Totals       Totals         `json:"totals"`
	Distribution []StatusBucket `json:"distribution"`
	Vendors      []VendorCount  `json:"vendors"`
	Monthly      []MonthCount   `json:"monthly"`
}

// Compute builds a Summary from invoices.
func Compute(invoices []models.Invoice) Summary {
	totals := ComputeTotals(invoices)
	return Summary{
		Totals:       totals,
		Distribution: Distribution(totals),
		Vendors:      VendorHistogram(invoices),
		Monthly:      MonthlySeries(invoices),
	}
}

// ComputeTotals sums total_amount overall and per paid/pending status.
// Missing or non-numeric totals contribute zero.
func ComputeTotals(invoices []models.Invoice) Totals {
	t := Totals{
		Count:        len(invoices),
		TotalValue:   decimal.Zero,
		PaidValue:    decimal.Zero,
		PendingValue: decimal.Zero,
	}
	for _, inv := range invoices {
		v := inv.TotalAmount.OrZero()
		t.TotalValue = t.TotalValue.Add(v)
		switch inv.NormalizedPaymentStatus() {
		case models.PaymentPaid:
			t.PaidCount++
			t.PaidValue = t.PaidValue.Add(v)
		case models.PaymentPending:
			t.PendingCount++
			t.PendingValue = t.PendingValue.Add(v)
		}
	}
	return t
}

// Distribution splits the invoice count into paid, pending and unknown.
// Unknown is whatever is left after paid and pending, never a match on the
// status string, so the three buckets always add up to Count. Empty buckets
// are omitted.
func Distribution(t Totals) []StatusBucket {
	all := []StatusBucket{
		{Name: BucketPaid, Count: t.PaidCount},
		{Name: BucketPending, Count: t.PendingCount},
		{Name: BucketUnknown, Count: t.Count - t.PaidCount - t.PendingCount},
	}
	out := make([]StatusBucket, 0, len(all))
	for _, b := range all {
		if b.Count > 0 {
			out = append(out, b)
		}
	}
	return out
}

// VendorHistogram counts invoices per vendor, sorted by count descending.
// Ties keep the order in which vendors were first seen. Only the first
// TopVendors groups are returned.
func VendorHistogram(invoices []models.Invoice) []VendorCount {
	index := make(map[string]int)
	var groups []VendorCount
	for _, inv := range invoices {
		name := inv.VendorName
		if strings.TrimSpace(name) == "" {
			name = UnknownVendor
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, VendorCount{Name: name})
		}
		groups[i].Count++
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Count > groups[b].Count
	})

	if len(groups) > TopVendors {
		groups = groups[:TopVendors]
	}
	if groups == nil {
		groups = []VendorCount{}
	}
	return groups
}

// MonthlySeries counts invoices per upload month. Invoices without an upload
// timestamp, or whose prefix is not a YYYY-MM key, are left out of this view
// only.
func MonthlySeries(invoices []models.Invoice) []MonthCount {
	counts := make(map[string]int)
	for _, inv := range invoices {
		key, ok := MonthOf(inv.UploadTimestamp)
		if !ok {
			continue
		}
		counts[key]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	series := make([]MonthCount, 0, len(keys))
	for _, k := range keys {
		series = append(series, MonthCount{Month: k, Count: counts[k]})
	}
	return series
}

// MonthOf returns the YYYY-MM bucket key of an ISO-8601 timestamp.
func MonthOf(timestamp string) (string, bool) {
	if len(timestamp) < 7 {
		return "", false
	}
	key := timestamp[:7]
	if !monthKey.MatchString(key) {
		return "", false
	}
	return key, true
}
