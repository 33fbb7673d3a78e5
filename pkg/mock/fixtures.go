package mock

import (
	"github.com/Ghostified/autoexpress-dashboard/pkg/client"
)

// Fixture data answering the dashboard endpoint contract. The set is fixed
// so repeated calls return structurally identical figures.

var opportunityFixtures = []client.Opportunity{
	{ID: "opp-1001", Name: "Fleet telematics rollout", Stage: "proposal", Owner: "amara", Amount: 48000, CloseDate: "2026-09-15"},
	{ID: "opp-1002", Name: "Depot WiFi upgrade", Stage: "negotiation", Owner: "joseph", Amount: 12500, CloseDate: "2026-08-30"},
	{ID: "opp-1003", Name: "Nairobi branch expansion", Stage: "qualification", Owner: "amara", Amount: 96000, CloseDate: "2026-11-01"},
	{ID: "opp-1004", Name: "Courier app licensing", Stage: "proposal", Owner: "wanjiru", Amount: 30500, CloseDate: "2026-10-12"},
	{ID: "opp-1005", Name: "Warehouse scanners", Stage: "closed-won", Owner: "joseph", Amount: 8000, CloseDate: "2026-07-22"},
}

var salesOrderFixtures = []client.SalesOrder{
	{ID: "so-2001", Customer: "Acme Logistics", Status: "fulfilled", Total: 15200, CreatedAt: "2026-07-02"},
	{ID: "so-2002", Customer: "Savanna Freight", Status: "pending", Total: 7300, CreatedAt: "2026-07-18"},
	{ID: "so-2003", Customer: "Twiga Distribution", Status: "fulfilled", Total: 22100, CreatedAt: "2026-08-03"},
	{ID: "so-2004", Customer: "Acme Logistics", Status: "cancelled", Total: 4100, CreatedAt: "2026-08-11"},
}

var ticketFixtures = []client.HelpdeskTicket{
	{ID: "tkt-3001", Subject: "Tracking page shows stale locations", Priority: "high", Status: "open", Assignee: "support-2"},
	{ID: "tkt-3002", Subject: "Invoice PDF missing line items", Priority: "medium", Status: "open", Assignee: "support-1"},
	{ID: "tkt-3003", Subject: "Password reset email not received", Priority: "low", Status: "resolved", Assignee: "support-3"},
	{ID: "tkt-3004", Subject: "Dashboard summary totals mismatch", Priority: "high", Status: "in-progress", Assignee: "support-1"},
}

var defaultPreferences = client.UserPreferences{
	Theme:           "light",
	DefaultView:     "dashboard",
	RefreshInterval: 300,
}

// summarizeOpportunities derives the pipeline figures for a fixture set.
func summarizeOpportunities(items []client.Opportunity) client.OpportunitySummary {
	summary := client.OpportunitySummary{Count: len(items)}
	for _, item := range items {
		summary.PipelineTotal += item.Amount
	}
	if summary.Count > 0 {
		summary.Average = summary.PipelineTotal / float64(summary.Count)
	}
	return summary
}
