package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/dashboard"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/upload"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// InvoiceHeaders are the invoice table columns.
var InvoiceHeaders = []string{
	"ID", "Invoice #", "Vendor", "Date", "Amount", "Tax", "Total", "Payment", "Source", "Processing",
}

// Renderer writes tables to a terminal.
type Renderer struct {
	w     io.Writer
	color bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithColor enables ANSI badge colors.
func WithColor(enabled bool) Option {
	return func(r *Renderer) {
		r.color = enabled
	}
}

// NewRenderer creates a renderer writing to w. Colors are off by default.
func NewRenderer(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{w: w}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) table(headers []string) *tablewriter.Table {
	t := tablewriter.NewWriter(r.w)
	t.SetHeader(headers)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	return t
}

// append adds a row. styles maps column index to a badge style.
func (r *Renderer) append(t *tablewriter.Table, row []string, styles map[int]Style) {
	if !r.color || len(styles) == 0 {
		t.Append(row)
		return
	}
	colors := make([]tablewriter.Colors, len(row))
	for i := range row {
		if s, ok := styles[i]; ok {
			colors[i] = s.colors()
		} else {
			colors[i] = tablewriter.Colors{}
		}
	}
	t.Rich(row, colors)
}

// InvoiceRow returns the table cells for one invoice.
func InvoiceRow(inv models.Invoice) []string {
	return []string{
		Cell(inv.ID.String()),
		Cell(inv.InvoiceNumber),
		Cell(inv.VendorName),
		Cell(inv.InvoiceDate),
		inv.Amount.Display(CurrencyPrefix),
		inv.TaxAmount.Display(CurrencyPrefix),
		inv.TotalAmount.Display(CurrencyPrefix),
		Badge(inv.PaymentStatus),
		Cell(inv.SourceFile),
		Badge(inv.ProcessingStatus),
	}
}

// Invoices renders the invoice list.
func (r *Renderer) Invoices(invoices []models.Invoice) {
	if len(invoices) == 0 {
		fmt.Fprintln(r.w, "No invoices found.")
		return
	}

	t := r.table(InvoiceHeaders)
	t.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
	})
	for _, inv := range invoices {
		r.append(t, InvoiceRow(inv), map[int]Style{
			7: StatusStyle(inv.PaymentStatus),
			9: StatusStyle(inv.ProcessingStatus),
		})
	}
	t.Render()
	fmt.Fprintf(r.w, "%d invoice(s)\n", len(invoices))
}

// Invoice renders a single invoice as a field/value table.
func (r *Renderer) Invoice(inv models.Invoice) {
	t := r.table([]string{"Field", "Value"})
	row := InvoiceRow(inv)
	for i, h := range InvoiceHeaders {
		styles := map[int]Style{}
		if i == 7 || i == 9 {
			styles[1] = StatusStyle(row[i])
		}
		r.append(t, []string{h, row[i]}, styles)
	}
	r.append(t, []string{"Uploaded", Cell(inv.UploadTimestamp)}, nil)
	t.Render()
}

// UploadResult renders the per-file outcomes of a batch.
func (r *Renderer) UploadResult(result *upload.BatchResult) {
	if result == nil || len(result.Files) == 0 {
		return
	}

	t := r.table([]string{"File", "Status", "Result"})
	for _, f := range result.Files {
		state := string(f.Outcome.State())
		r.append(t, []string{f.Filename, state, f.Outcome.Describe()}, map[int]Style{1: outcomeStyle(f.Outcome)})
	}
	t.Render()

	succeeded, rejected, failed := result.Counts()
	fmt.Fprintf(r.w, "%d succeeded, %d rejected, %d failed, %d record(s) extracted\n",
		succeeded, rejected, failed, result.RecordsExtracted())
}

func outcomeStyle(o upload.Outcome) Style {
	switch o.State() {
	case upload.StateSucceeded:
		return StyleSuccess
	case upload.StateRejected:
		return StyleWarning
	default:
		return StyleDanger
	}
}

// Logs renders at most limit upload log entries. limit <= 0 means all.
func (r *Renderer) Logs(logs []models.UploadLogEntry, limit int) {
	if len(logs) == 0 {
		fmt.Fprintln(r.w, "No uploads yet.")
		return
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	t := r.table([]string{"ID", "File", "Type", "Records", "Status", "Uploaded"})
	for _, l := range logs {
		r.append(t, []string{
			Cell(l.ID.String()),
			Cell(l.Filename),
			Cell(l.FileType),
			strconv.Itoa(l.RecordsExtracted),
			Badge(l.Status),
			Cell(l.UploadedAt),
		}, map[int]Style{4: StatusStyle(l.Status)})
	}
	t.Render()
}

// Tasks renders the local upload queue.
func (r *Renderer) Tasks(tasks []upload.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(r.w, "Queue is empty.")
		return
	}

	t := r.table([]string{"ID", "File", "Size", "Type", "State", "Added"})
	for _, task := range tasks {
		r.append(t, []string{
			task.ID,
			task.Name,
			humanize.Bytes(uint64(max(task.Size, 0))),
			Cell(task.ContentType),
			string(task.State),
			humanize.Time(task.AddedAt),
		}, nil)
	}
	t.Render()
}

// Dashboard renders the KPI cards, status distribution, top vendors and
// monthly series.
func (r *Renderer) Dashboard(s dashboard.Summary) {
	kpi := r.table([]string{"Total Invoices", "Total Value", "Paid", "Pending"})
	kpi.Append([]string{
		strconv.Itoa(s.Totals.Count),
		Money(s.Totals.TotalValue),
		fmt.Sprintf("%s (%d)", Money(s.Totals.PaidValue), s.Totals.PaidCount),
		fmt.Sprintf("%s (%d)", Money(s.Totals.PendingValue), s.Totals.PendingCount),
	})
	kpi.Render()

	if len(s.Distribution) > 0 {
		fmt.Fprintln(r.w, "\nPayment Status")
		t := r.table([]string{"Status", "Invoices", "Share"})
		for _, b := range s.Distribution {
			r.append(t, []string{b.Name, strconv.Itoa(b.Count), share(b.Count, s.Totals.Count)},
				map[int]Style{0: StatusStyle(b.Name)})
		}
		t.Render()
	}

	if len(s.Vendors) > 0 {
		fmt.Fprintln(r.w, "\nTop Vendors")
		t := r.table([]string{"Vendor", "Invoices"})
		for _, v := range s.Vendors {
			t.Append([]string{v.Name, strconv.Itoa(v.Count)})
		}
		t.Render()
	}

	if len(s.Monthly) > 0 {
		fmt.Fprintln(r.w, "\nInvoices per Month")
		t := r.table([]string{"Month", "Invoices"})
		for _, m := range s.Monthly {
			t.Append([]string{m.Month, strconv.Itoa(m.Count)})
		}
		t.Render()
	}
}

func share(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
