// Package filter turns user-entered invoice filters into list queries and
// keeps the last published result.
package filter

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

// Query parameter names understood by GET /invoices.
const (
	ParamVendor        = "vendor"
	ParamPaymentStatus = "payment_status"
)

// PaymentStatuses lists the accepted payment status filter values.
var PaymentStatuses = []string{models.PaymentPaid, models.PaymentPending, models.PaymentUnknown}

// Criteria is the set of active filters. Empty fields are inactive.
type Criteria struct {
	Vendor        string
	PaymentStatus string
}

// Normalize trims both fields and lower-cases the payment status.
func (c Criteria) Normalize() Criteria {
	return Criteria{
		Vendor:        strings.TrimSpace(c.Vendor),
		PaymentStatus: models.NormalizeStatus(c.PaymentStatus),
	}
}

// IsEmpty reports whether no filter is active.
func (c Criteria) IsEmpty() bool {
	n := c.Normalize()
	return n.Vendor == "" && n.PaymentStatus == ""
}

// Validate checks the payment status against PaymentStatuses.
func (c Criteria) Validate() error {
	n := c.Normalize()
	if n.PaymentStatus == "" {
		return nil
	}
	for _, s := range PaymentStatuses {
		if n.PaymentStatus == s {
			return nil
		}
	}
	return &ValidationError{Field: ParamPaymentStatus, Value: c.PaymentStatus, Err: ErrInvalidPaymentStatus}
}

// Params returns the query parameters for the active filters only. A
// whitespace-only field produces no parameter.
func (c Criteria) Params() url.Values {
	n := c.Normalize()
	q := url.Values{}
	if n.Vendor != "" {
		q.Set(ParamVendor, n.Vendor)
	}
	if n.PaymentStatus != "" {
		q.Set(ParamPaymentStatus, n.PaymentStatus)
	}
	return q
}

// Lister fetches the invoice list. *client.Client implements it.
type Lister interface {
	ListInvoices(ctx context.Context, query url.Values) ([]models.Invoice, error)
}

// Listener is called with every published invoice list.
type Listener func(invoices []models.Invoice)

// Controller applies criteria against the backend and publishes the result.
type Controller struct {
	mu        sync.Mutex
	lister    Lister
	criteria  Criteria
	invoices  []models.Invoice
	listeners []Listener
	log       zerolog.Logger
}

// NewController creates a controller with empty criteria.
func NewController(lister Lister) *Controller {
	return &Controller{
		lister:   lister,
		invoices: []models.Invoice{},
		log:      logger.WithComponent("filter"),
	}
}

// Subscribe registers fn for every future publish.
func (c *Controller) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Criteria returns the active criteria.
func (c *Controller) Criteria() Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.criteria
}

// Invoices returns the last published list.
func (c *Controller) Invoices() []models.Invoice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invoices
}

// Apply validates criteria, queries the backend and publishes the result.
// On a fetch failure an empty list is published and a *FetchError returned.
func (c *Controller) Apply(ctx context.Context, criteria Criteria) ([]models.Invoice, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	return c.query(ctx, "Apply", criteria.Normalize())
}

// Reset clears every filter and re-queries immediately.
func (c *Controller) Reset(ctx context.Context) ([]models.Invoice, error) {
	return c.query(ctx, "Reset", Criteria{})
}

func (c *Controller) query(ctx context.Context, op string, criteria Criteria) ([]models.Invoice, error) {
	c.mu.Lock()
	c.criteria = criteria
	c.mu.Unlock()

	params := criteria.Params()
	c.log.Debug().Str("op", op).Str("query", params.Encode()).Msg("Querying invoices")

	invoices, err := c.lister.ListInvoices(ctx, params)
	if err != nil {
		c.log.Error().Err(err).Str("op", op).Msg("Failed to load invoices")
		c.publish([]models.Invoice{})
		return []models.Invoice{}, &FetchError{Op: op, Err: err}
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}

	c.log.Info().Str("op", op).Int("count", len(invoices)).Msg("Invoices loaded")
	c.publish(invoices)
	return invoices, nil
}

func (c *Controller) publish(invoices []models.Invoice) {
	c.mu.Lock()
	c.invoices = invoices
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(invoices)
	}
}
