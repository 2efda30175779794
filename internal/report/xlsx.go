package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/dashboard"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// Workbook sheet names.
const (
	SheetSummary  = "Summary"
	SheetVendors  = "Vendors"
	SheetMonthly  = "Monthly"
	SheetInvoices = "Invoices"
)

// moneyFormat is the custom number format for money cells.
var moneyFormat = `"$"#,##0.00`

// WriteDashboardXLSX writes the dashboard as an XLSX workbook: KPIs and the
// payment status split with a pie chart, top vendors with a bar chart, the
// monthly series with a column chart, and the invoice list itself.
func WriteDashboardXLSX(w io.Writer, invoices []models.Invoice, s dashboard.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetVendors, SheetMonthly, SheetInvoices} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFormat})
	if err != nil {
		return fmt.Errorf("money style: %w", err)
	}

	if err := writeSummary(f, s, bold, money); err != nil {
		return err
	}
	if err := writeVendors(f, s.Vendors, bold); err != nil {
		return err
	}
	if err := writeMonthly(f, s.Monthly, bold); err != nil {
		return err
	}
	if err := writeInvoices(f, invoices, bold, money); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s dashboard.Summary, bold, money int) error {
	const sheet = SheetSummary

	rows := [][]any{
		{"Metric", "Value"},
		{"Total Invoices", s.Totals.Count},
		{"Total Value", s.Totals.TotalValue.InexactFloat64()},
		{"Paid Invoices", s.Totals.PaidCount},
		{"Paid Value", s.Totals.PaidValue.InexactFloat64()},
		{"Pending Invoices", s.Totals.PendingCount},
		{"Pending Value", s.Totals.PendingValue.InexactFloat64()},
	}
	if err := writeRows(f, sheet, 1, rows); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheet, "A1", "B1", bold)
	_ = f.SetCellStyle(sheet, "B3", "B3", money)
	_ = f.SetCellStyle(sheet, "B5", "B5", money)
	_ = f.SetCellStyle(sheet, "B7", "B7", money)

	// Payment status split starts two rows below the KPIs.
	const distStart = 10
	dist := [][]any{{"Status", "Invoices"}}
	for _, b := range s.Distribution {
		dist = append(dist, []any{b.Name, b.Count})
	}
	if err := writeRows(f, sheet, distStart-1, dist); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", distStart-1), fmt.Sprintf("B%d", distStart-1), bold)
	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 16)

	if len(s.Distribution) == 0 {
		return nil
	}
	last := distStart + len(s.Distribution) - 1
	return addChart(f, sheet, "D2", excelize.Pie, "Payment Status",
		fmt.Sprintf("%s!$A$%d:$A$%d", sheet, distStart, last),
		fmt.Sprintf("%s!$B$%d:$B$%d", sheet, distStart, last))
}

func writeVendors(f *excelize.File, vendors []dashboard.VendorCount, bold int) error {
	const sheet = SheetVendors

	rows := [][]any{{"Vendor", "Invoices"}}
	for _, v := range vendors {
		rows = append(rows, []any{v.Name, v.Count})
	}
	if err := writeRows(f, sheet, 1, rows); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheet, "A1", "B1", bold)
	_ = f.SetColWidth(sheet, "A", "A", 32)

	if len(vendors) == 0 {
		return nil
	}
	last := len(vendors) + 1
	return addChart(f, sheet, "D2", excelize.Bar, "Top Vendors",
		fmt.Sprintf("%s!$A$2:$A$%d", sheet, last),
		fmt.Sprintf("%s!$B$2:$B$%d", sheet, last))
}

func writeMonthly(f *excelize.File, months []dashboard.MonthCount, bold int) error {
	const sheet = SheetMonthly

	rows := [][]any{{"Month", "Invoices"}}
	for _, m := range months {
		rows = append(rows, []any{m.Month, m.Count})
	}
	if err := writeRows(f, sheet, 1, rows); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheet, "A1", "B1", bold)

	if len(months) == 0 {
		return nil
	}
	last := len(months) + 1
	return addChart(f, sheet, "D2", excelize.Col, "Invoices per Month",
		fmt.Sprintf("%s!$A$2:$A$%d", sheet, last),
		fmt.Sprintf("%s!$B$2:$B$%d", sheet, last))
}

func writeInvoices(f *excelize.File, invoices []models.Invoice, bold, money int) error {
	const sheet = SheetInvoices

	header := make([]any, 0, len(InvoiceHeaders)+1)
	for _, h := range InvoiceHeaders {
		header = append(header, h)
	}
	header = append(header, "Uploaded")

	rows := [][]any{header}
	for _, inv := range invoices {
		rows = append(rows, []any{
			inv.ID.String(),
			inv.InvoiceNumber,
			inv.VendorName,
			inv.InvoiceDate,
			amountCell(inv.Amount),
			amountCell(inv.TaxAmount),
			amountCell(inv.TotalAmount),
			inv.PaymentStatus,
			inv.SourceFile,
			inv.ProcessingStatus,
			inv.UploadTimestamp,
		})
	}
	if err := writeRows(f, sheet, 1, rows); err != nil {
		return err
	}

	_ = f.SetCellStyle(sheet, "A1", "K1", bold)
	if len(invoices) > 0 {
		_ = f.SetCellStyle(sheet, "E2", fmt.Sprintf("G%d", len(invoices)+1), money)
	}
	_ = f.SetColWidth(sheet, "B", "C", 24)
	_ = f.SetColWidth(sheet, "D", "G", 14)
	_ = f.SetColWidth(sheet, "I", "I", 32)
	_ = f.SetColWidth(sheet, "K", "K", 24)
	return nil
}

// amountCell leaves invalid amounts blank so they do not count in sums.
func amountCell(a models.Amount) any {
	if !a.Valid {
		return nil
	}
	return a.Value.InexactFloat64()
}

func writeRows(f *excelize.File, sheet string, startRow int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, startRow+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, startRow+i, err)
		}
	}
	return nil
}

func addChart(f *excelize.File, sheet, cell string, typ excelize.ChartType, title, categories, values string) error {
	err := f.AddChart(sheet, cell, &excelize.Chart{
		Type: typ,
		Series: []excelize.ChartSeries{
			{Name: title, Categories: categories, Values: values},
		},
		Title:  []excelize.RichTextRun{{Text: title}},
		Legend: excelize.ChartLegend{Position: "bottom"},
	})
	if err != nil {
		return fmt.Errorf("add %s chart: %w", sheet, err)
	}
	return nil
}
