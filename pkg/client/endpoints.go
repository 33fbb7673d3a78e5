package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Ghostified/autoexpress-dashboard/pkg/storage"
)

// API endpoint paths.
const (
	PathOpportunities   = "/opportunities"
	PathSalesOrders     = "/sales-orders"
	PathHelpdeskTickets = "/helpdesk-tickets"
	PathDashboard       = "/dashboard/summary"
	PathPDFGenerate     = "/pdf/generate"
	PathPDFDownload     = "/pdf/download"
	PathEmailSend       = "/email/send"
	PathUserPreferences = "/user/preferences"
	PathLogin           = "/auth/login"
	PathLogout          = "/auth/logout"
	PathRefresh         = "/auth/refresh"
	PathHealth          = "/health"
)

// Opportunity is a single sales opportunity.
type Opportunity struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Stage     string  `json:"stage"`
	Owner     string  `json:"owner"`
	Amount    float64 `json:"amount"`
	CloseDate string  `json:"close_date"`
}

// OpportunitySummary carries figures derived from an opportunity set.
type OpportunitySummary struct {
	PipelineTotal float64 `json:"pipeline_total"`
	Count         int     `json:"count"`
	Average       float64 `json:"average"`
}

// OpportunityList is the opportunities listing with its derived summary.
type OpportunityList struct {
	Items   []Opportunity      `json:"items"`
	Summary OpportunitySummary `json:"summary"`
}

// OpportunityFilter names the supported opportunity filter parameters.
type OpportunityFilter struct {
	Stage string
	Owner string
}

// SalesOrder is a single sales order.
type SalesOrder struct {
	ID        string  `json:"id"`
	Customer  string  `json:"customer"`
	Status    string  `json:"status"`
	Total     float64 `json:"total"`
	CreatedAt string  `json:"created_at"`
}

// SalesOrderList is the sales-orders listing.
type SalesOrderList struct {
	Items []SalesOrder `json:"items"`
}

// OrderFilter names the supported sales-order filter parameters.
type OrderFilter struct {
	Status   string
	Customer string
}

// HelpdeskTicket is a single support ticket.
type HelpdeskTicket struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
	Assignee string `json:"assignee"`
}

// TicketList is the helpdesk-tickets listing.
type TicketList struct {
	Items []HelpdeskTicket `json:"items"`
}

// TicketFilter names the supported helpdesk-ticket filter parameters.
type TicketFilter struct {
	Status   string
	Priority string
}

// DashboardSummary aggregates the opportunity and order fixtures.
type DashboardSummary struct {
	Pipeline    OpportunitySummary `json:"pipeline"`
	OrderCount  int                `json:"order_count"`
	OrdersTotal float64            `json:"orders_total"`
	OpenTickets int                `json:"open_tickets"`
}

// PDFRequest describes a PDF-generation request.
type PDFRequest struct {
	ReportType string            `json:"report_type"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// PDFReceipt identifies a generated PDF for later download.
type PDFReceipt struct {
	ID string `json:"id"`
}

// EmailRequest describes an email-report request.
type EmailRequest struct {
	To           []string `json:"to"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	AttachmentID string   `json:"attachment_id,omitempty"`
}

// Credentials are login credentials.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the body returned by login and refresh.
type TokenResponse struct {
	Token string `json:"token"`
}

// UserPreferences is the persisted user-preference object.
type UserPreferences struct {
	Theme           string `json:"theme"`
	DefaultView     string `json:"default_view"`
	RefreshInterval int    `json:"refresh_interval"`
}

// ListOpportunities fetches the opportunities listing with its derived
// summary, filtered by the named parameters.
func (c *Client) ListOpportunities(ctx context.Context, filter OpportunityFilter) (*OpportunityList, error) {
	query := url.Values{}
	if filter.Stage != "" {
		query.Set("stage", filter.Stage)
	}
	if filter.Owner != "" {
		query.Set("owner", filter.Owner)
	}

	var list OpportunityList
	if err := c.getJSON(ctx, withQuery(PathOpportunities, query), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListSalesOrders fetches the sales-orders listing.
func (c *Client) ListSalesOrders(ctx context.Context, filter OrderFilter) (*SalesOrderList, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Customer != "" {
		query.Set("customer", filter.Customer)
	}

	var list SalesOrderList
	if err := c.getJSON(ctx, withQuery(PathSalesOrders, query), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListHelpdeskTickets fetches the helpdesk-tickets listing.
func (c *Client) ListHelpdeskTickets(ctx context.Context, filter TicketFilter) (*TicketList, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Priority != "" {
		query.Set("priority", filter.Priority)
	}

	var list TicketList
	if err := c.getJSON(ctx, withQuery(PathHelpdeskTickets, query), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetDashboardSummary fetches the aggregated dashboard summary.
func (c *Client) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := c.getJSON(ctx, PathDashboard, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// GeneratePDF requests PDF generation and returns the receipt identifying it.
func (c *Client) GeneratePDF(ctx context.Context, req PDFRequest) (*PDFReceipt, error) {
	env, err := c.Post(ctx, PathPDFGenerate, req)
	if err != nil {
		return nil, err
	}

	var receipt PDFReceipt
	if err := env.DecodeJSON(&receipt); err != nil {
		return nil, c.parseFailure(ctx, err)
	}
	return &receipt, nil
}

// DownloadPDF fetches the binary payload for a previously generated PDF.
func (c *Client) DownloadPDF(ctx context.Context, id string) ([]byte, error) {
	env, err := c.Get(ctx, PathPDFDownload+"/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.Kind != ContentBinary {
		return nil, c.parseFailure(ctx, fmt.Errorf("%w: expected binary payload, got %s", ErrParse, env.Kind))
	}
	return env.Binary, nil
}

// SendEmail submits an email-report job. This is the only operation the
// scheduler collaborator calls.
func (c *Client) SendEmail(ctx context.Context, req EmailRequest) error {
	_, err := c.Post(ctx, PathEmailSend, req)
	return err
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	env, err := c.Post(ctx, PathLogin, creds)
	if err != nil {
		return nil, err
	}

	var token TokenResponse
	if err := env.DecodeJSON(&token); err != nil {
		return nil, c.parseFailure(ctx, err)
	}

	// In mock mode the router already updated the token store.
	if c.mode == ModeLive && token.Token != "" {
		if err := c.tokens.Set(ctx, token.Token); err != nil {
			return nil, err
		}
	}
	return &token, nil
}

// Logout invalidates the session and clears the stored token.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.Post(ctx, PathLogout, nil); err != nil {
		return err
	}
	if c.mode == ModeLive {
		return c.tokens.Clear(ctx)
	}
	return nil
}

// RefreshToken exchanges the current token for a fresh one and stores it.
func (c *Client) RefreshToken(ctx context.Context) (*TokenResponse, error) {
	env, err := c.Post(ctx, PathRefresh, nil)
	if err != nil {
		return nil, err
	}

	var token TokenResponse
	if err := env.DecodeJSON(&token); err != nil {
		return nil, c.parseFailure(ctx, err)
	}

	if c.mode == ModeLive && token.Token != "" {
		if err := c.tokens.Set(ctx, token.Token); err != nil {
			return nil, err
		}
	}
	return &token, nil
}

// GetUserPreferences reads the persisted user-preference object.
func (c *Client) GetUserPreferences(ctx context.Context) (*UserPreferences, error) {
	var prefs UserPreferences
	if err := c.getJSON(ctx, PathUserPreferences, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// SaveUserPreferences writes the user-preference object.
func (c *Client) SaveUserPreferences(ctx context.Context, prefs UserPreferences) error {
	_, err := c.Put(ctx, PathUserPreferences, prefs)
	return err
}

// Health checks backend availability.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Get(ctx, PathHealth)
	return err
}

// EnableMockMode persists the mock-mode preference flag. The flag takes
// effect for clients constructed afterwards; an existing instance's mode
// never changes.
func EnableMockMode(ctx context.Context, store storage.Store, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return store.Set(ctx, storage.KeyMockMode, value)
}

// getJSON fetches endpoint and unmarshals the JSON envelope into v.
func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	env, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := env.DecodeJSON(v); err != nil {
		return c.parseFailure(ctx, err)
	}
	return nil
}

// parseFailure normalizes a decode failure of an otherwise successful
// response into an ErrorRecord.
func (c *Client) parseFailure(ctx context.Context, cause error) *ErrorRecord {
	wrapped := fmt.Errorf("%w: %v", ErrParse, cause)
	kind := c.classifier.Classify(ctx, 0, wrapped)
	return &ErrorRecord{
		Kind:          kind,
		HTTPStatus:    http.StatusOK,
		Message:       "response payload decode failed",
		CorrelationID: c.ids.Next(),
		Cause:         wrapped,
	}
}

// withQuery appends encoded query parameters to an endpoint path.
func withQuery(endpoint string, query url.Values) string {
	if len(query) == 0 {
		return endpoint
	}
	return endpoint + "?" + query.Encode()
}

// compile-time check that ErrorRecord satisfies error.
var _ error = (*ErrorRecord)(nil)
