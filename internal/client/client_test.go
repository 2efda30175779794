package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
)

var _ = Describe("Client", func() {
	var (
		server *ghttp.Server
		api    *client.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		api, err = client.New(server.URL() + "/api/")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("New", func() {
		It("rejects non-http base URLs", func() {
			_, err := client.New("ftp://example.com")
			Expect(err).To(HaveOccurred())
		})

		It("trims the trailing slash", func() {
			Expect(api.BaseURL()).To(Equal(server.URL() + "/api"))
			Expect(api.ExportURL()).To(Equal(server.URL() + "/api/export"))
		})
	})

	Describe("ListInvoices", func() {
		It("sends only the given filters and decodes invoices", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/api/invoices", "vendor=Acme"),
				ghttp.RespondWith(http.StatusOK, `[
					{"id": 1, "vendor_name": "Acme", "total_amount": "12.50", "payment_status": "paid", "source_file": "a.pdf", "processing_status": "success"},
					{"id": 2, "vendor_name": null, "total_amount": null, "payment_status": "pending", "source_file": "b.csv", "processing_status": "failed"}
				]`),
			))

			invoices, err := api.ListInvoices(ctx, url.Values{"vendor": {"Acme"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(invoices).To(HaveLen(2))
			Expect(invoices[0].ID.String()).To(Equal("1"))
			Expect(invoices[0].TotalAmount.Display("$")).To(Equal("$12.50"))
			Expect(invoices[1].TotalAmount.Valid).To(BeFalse())
		})

		It("returns an empty list for a null body", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `null`))

			invoices, err := api.ListInvoices(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(invoices).NotTo(BeNil())
			Expect(invoices).To(BeEmpty())
		})

		It("maps error statuses", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, `boom`))

			_, err := api.ListInvoices(ctx, nil)
			Expect(err).To(MatchError(client.ErrUnexpectedStatus))
			var apiErr *client.APIError
			Expect(err).To(BeAssignableToTypeOf(apiErr))
			Expect(err.Error()).To(ContainSubstring("boom"))
		})

		It("reports undecodable bodies", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"not": "a list"}`))

			_, err := api.ListInvoices(ctx, nil)
			Expect(err).To(MatchError(client.ErrInvalidResponse))
		})
	})

	Describe("GetInvoice", func() {
		It("fetches one invoice", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/api/invoices/7"),
				ghttp.RespondWith(http.StatusOK, `{"id": 7, "invoice_number": "INV-7"}`),
			))

			inv, err := api.GetInvoice(ctx, "7")
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.InvoiceNumber).To(Equal("INV-7"))
		})

		It("maps 404 to ErrNotFound", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"detail": "Invoice not found"}`))

			_, err := api.GetInvoice(ctx, "99")
			Expect(err).To(MatchError(client.ErrNotFound))
		})
	})

	Describe("ListLogs", func() {
		It("decodes upload log entries", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/api/logs"),
				ghttp.RespondWith(http.StatusOK, `[{"id": 3, "filename": "a.pdf", "file_type": "pdf", "records_extracted": 2, "status": "success"}]`),
			))

			logs, err := api.ListLogs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(logs).To(HaveLen(1))
			Expect(logs[0].RecordsExtracted).To(Equal(2))
		})
	})

	Describe("Health", func() {
		It("returns the reported status", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"status": "ok"}`))

			status, err := api.Health(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal("ok"))
		})
	})

	Describe("Export", func() {
		It("streams the body and keeps the server's filename", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/api/export"),
				ghttp.RespondWith(http.StatusOK, "PK\x03\x04fake", http.Header{
					"Content-Type":        {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
					"Content-Disposition": {"attachment; filename=invoices-2024.xlsx"},
				}),
			))

			var buf bytes.Buffer
			info, err := api.Export(ctx, &buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Filename).To(Equal("invoices-2024.xlsx"))
			Expect(info.Bytes).To(BeEquivalentTo(8))
			Expect(buf.String()).To(Equal("PK\x03\x04fake"))
		})

		Context("with a short request timeout", func() {
			BeforeEach(func() {
				var err error
				api, err = client.New(server.URL()+"/api", client.WithTimeout(100*time.Millisecond))
				Expect(err).NotTo(HaveOccurred())
			})

			It("keeps downloading a slow body after the headers arrived", func() {
				server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Disposition", "attachment; filename=invoices.xlsx")
					w.WriteHeader(http.StatusOK)
					_, _ = io.WriteString(w, "PK\x03\x04")
					w.(http.Flusher).Flush()
					time.Sleep(300 * time.Millisecond)
					_, _ = io.WriteString(w, "rest")
				})

				var buf bytes.Buffer
				info, err := api.Export(ctx, &buf)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Bytes).To(BeEquivalentTo(8))
				Expect(buf.String()).To(Equal("PK\x03\x04rest"))
			})

			It("times out when the headers never arrive", func() {
				server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(300 * time.Millisecond)
					w.WriteHeader(http.StatusOK)
				})

				var buf bytes.Buffer
				_, err := api.Export(ctx, &buf)
				Expect(err).To(MatchError(client.ErrNoResponse))
				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
				Expect(buf.Len()).To(BeZero())
			})
		})
	})

	Describe("Upload", func() {
		files := func() []client.UploadFile {
			return []client.UploadFile{
				{Name: "a.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.4 first")},
				{Name: "b.csv", ContentType: "text/csv", Content: strings.NewReader("vendor,total\nAcme,1\n")},
			}
		}

		It("sends every file under the files field and decodes the results", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/upload"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					Expect(r.ParseMultipartForm(1 << 20)).To(Succeed())
					parts := r.MultipartForm.File[client.UploadField]
					Expect(parts).To(HaveLen(2))
					Expect(parts[0].Filename).To(Equal("a.pdf"))
					Expect(parts[1].Filename).To(Equal("b.csv"))

					f, err := parts[1].Open()
					Expect(err).NotTo(HaveOccurred())
					data, _ := io.ReadAll(f)
					Expect(string(data)).To(ContainSubstring("Acme"))
				},
				ghttp.RespondWith(http.StatusOK, `{"results": [
					{"filename": "a.pdf", "status": "success", "records_extracted": 2, "file_type": "pdf"},
					{"filename": "b.csv", "status": "rejected", "reason": "Unsupported file type"}
				]}`),
			))

			resp, err := api.Upload(ctx, files(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(HaveLen(2))
			Expect(*resp.Results[0].RecordsExtracted).To(Equal(2))
			Expect(resp.Results[1].RecordsExtracted).To(BeNil())
			Expect(resp.Results[1].Reason).To(Equal("Unsupported file type"))
		})

		It("reports monotonic progress ending at the body size", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"results": []}`))

			var sent []int64
			var total int64
			_, err := api.Upload(ctx, files(), func(s, t int64) {
				sent = append(sent, s)
				total = t
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(sent).NotTo(BeEmpty())
			Expect(sent[0]).To(BeZero())
			for i := 1; i < len(sent); i++ {
				Expect(sent[i]).To(BeNumerically(">=", sent[i-1]))
			}
			Expect(sent[len(sent)-1]).To(Equal(total))
		})

		It("rejects responses that do not match the contract", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"results": [{"status": "success"}]}`))

			_, err := api.Upload(ctx, files(), nil)
			Expect(err).To(MatchError(client.ErrInvalidResponse))
			Expect(client.IsTransport(err)).To(BeTrue())
		})

		It("rejects negative record counts", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"results": [{"filename": "a.pdf", "status": "success", "records_extracted": -1}]}`))

			_, err := api.Upload(ctx, files(), nil)
			Expect(err).To(MatchError(client.ErrInvalidResponse))
		})

		It("reports a missing backend as no response", func() {
			server.Close()

			_, err := api.Upload(ctx, files(), nil)
			Expect(err).To(MatchError(client.ErrNoResponse))
			Expect(client.IsTransport(err)).To(BeTrue())
		})
	})
})
