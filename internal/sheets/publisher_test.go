package sheets_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/dashboard"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/sheets"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

const sheetURL = "https://docs.google.com/spreadsheets/d/sheet123/edit"

var _ = Describe("Publisher", func() {
	var (
		server    *ghttp.Server
		publisher *sheets.Publisher
		ctx       context.Context
		written   *sheetsapi.ValueRange
	)

	captureValues := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())
		written = &sheetsapi.ValueRange{}
		Expect(json.Unmarshal(body, written)).To(Succeed())
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		ctx = context.Background()
		written = nil

		var err error
		publisher, err = sheets.NewPublisher(ctx, sheetURL,
			option.WithEndpoint(server.URL()+"/"),
			option.WithHTTPClient(http.DefaultClient),
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.SpreadsheetID()).To(Equal("sheet123"))
	})

	AfterEach(func() {
		server.Close()
	})

	It("rejects URLs without a spreadsheet id", func() {
		_, err := sheets.NewPublisher(ctx, "https://example.com", option.WithHTTPClient(http.DefaultClient))
		Expect(err).To(MatchError(sheets.ErrInvalidSheetURL))
	})

	It("requires credentials when no client options are given", func() {
		prevFile, hadFile := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
		prevJSON, hadJSON := os.LookupEnv("GOOGLE_CREDENTIALS")
		os.Unsetenv("GOOGLE_APPLICATION_CREDENTIALS")
		os.Unsetenv("GOOGLE_CREDENTIALS")
		DeferCleanup(func() {
			if hadFile {
				os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", prevFile)
			}
			if hadJSON {
				os.Setenv("GOOGLE_CREDENTIALS", prevJSON)
			}
		})

		_, err := sheets.NewPublisher(ctx, sheetURL)
		Expect(err).To(MatchError(sheets.ErrMissingCredentials))
	})

	It("replaces an existing worksheet with the invoice list", func() {
		server.AppendHandlers(
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/v4/spreadsheets/sheet123"),
				ghttp.RespondWith(http.StatusOK, `{"sheets": [{"properties": {"title": "Invoices", "sheetId": 7}}]}`),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, MatchRegexp(`/values/Invoices:clear$`)),
				ghttp.RespondWith(http.StatusOK, `{}`),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPut, MatchRegexp(`/values/Invoices!A1$`)),
				captureValues,
				ghttp.RespondWith(http.StatusOK, `{"updatedRows": 2}`),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, MatchRegexp(`:batchUpdate$`)),
				ghttp.RespondWith(http.StatusOK, `{}`),
			),
		)

		invoices := []models.Invoice{{ID: "1", VendorName: "Acme", TotalAmount: models.ParseAmount("12.5")}}
		n, err := publisher.PublishInvoices(ctx, "Invoices", invoices)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(server.ReceivedRequests()).To(HaveLen(4))

		Expect(written).NotTo(BeNil())
		Expect(written.Values).To(HaveLen(2))
		Expect(written.Values[0][0]).To(Equal("ID"))
		Expect(written.Values[1][2]).To(Equal("Acme"))
		Expect(written.Values[1][6]).To(BeNumerically("==", 12.5))
	})

	It("creates a missing worksheet before writing the dashboard", func() {
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusOK, `{"sheets": [{"properties": {"title": "Sheet1", "sheetId": 0}}]}`),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, MatchRegexp(`:batchUpdate$`)),
				ghttp.RespondWith(http.StatusOK, `{"replies": [{"addSheet": {"properties": {"title": "Dashboard", "sheetId": 9}}}]}`),
			),
			ghttp.RespondWith(http.StatusOK, `{}`),
			ghttp.CombineHandlers(captureValues, ghttp.RespondWith(http.StatusOK, `{"updatedRows": 12}`)),
			ghttp.RespondWith(http.StatusOK, `{}`),
		)

		err := publisher.PublishDashboard(ctx, "Dashboard", dashboard.Compute(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(server.ReceivedRequests()).To(HaveLen(5))
		Expect(written.Values[0]).To(Equal([]interface{}{"Metric", "Value"}))
	})

	It("keeps going when header formatting fails", func() {
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusOK, `{"sheets": [{"properties": {"title": "Invoices", "sheetId": 7}}]}`),
			ghttp.RespondWith(http.StatusOK, `{}`),
			ghttp.RespondWith(http.StatusOK, `{"updatedRows": 1}`),
			ghttp.RespondWith(http.StatusBadRequest, `{"error": {"code": 400, "message": "boom"}}`),
		)

		_, err := publisher.PublishInvoices(ctx, "Invoices", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns an error when the spreadsheet cannot be read", func() {
		server.AppendHandlers(
			ghttp.RespondWith(http.StatusForbidden, `{"error": {"code": 403, "message": "denied"}}`),
		)

		_, err := publisher.PublishInvoices(ctx, "Invoices", nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("failed to get spreadsheet"))
	})
})
