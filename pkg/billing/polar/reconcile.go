package polar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/membership"
)

const ordersEndpoint = "/v1/orders"

// orderListResponse mirrors the Polar paginated order listing.
type orderListResponse struct {
	Items      []order    `json:"items"`
	Pagination pagination `json:"pagination"`
}

type order struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	SubscriptionID string            `json:"subscription_id"`
	Metadata       map[string]string `json:"metadata"`
	Customer       *payloadCustomer  `json:"customer"`
}

type pagination struct {
	TotalCount int `json:"total_count"`
	MaxPage    int `json:"max_page"`
}

// Reconcile pages through Polar's order history and repairs any member whose
// stored plan disagrees with a paid order: missing rows are created directly
// on the paid plan (the order is proof of payment) and free rows are
// upgraded. Per-order failures are collected into the report without
// aborting the scan, and the run never demotes anyone, so it is safe both to
// re-run and to run concurrently with live webhook traffic.
func (p *Provider) Reconcile(ctx context.Context) (*billing.ReconcileReport, error) {
	startTime := time.Now()

	if p.accessToken == "" {
		p.metrics.RecordReconcileRun(providerName, "error")
		return nil, fmt.Errorf("%w: missing access token", billing.ErrProviderNotConfigured)
	}

	report := &billing.ReconcileReport{
		ReconciledUserIDs: []string{},
		Errors:            []string{},
	}

	for page := 1; ; page++ {
		listing, err := p.listOrders(ctx, page)
		if err != nil {
			p.metrics.RecordReconcileRun(providerName, "error")
			p.metrics.RecordReconcileDuration(providerName, time.Since(startTime))
			return nil, err
		}

		if len(listing.Items) == 0 {
			break
		}

		for i := range listing.Items {
			p.reconcileOrder(ctx, &listing.Items[i], report)
		}

		// The provider's reported page count bounds the loop, so it
		// terminates even when max_page is zero.
		if page >= listing.Pagination.MaxPage {
			break
		}
	}

	p.logger.Info("reconciliation complete",
		membership.Field{Key: "provider", Value: providerName},
		membership.Field{Key: "total_orders", Value: report.TotalOrders},
		membership.Field{Key: "total_reconciled", Value: report.TotalReconciled},
		membership.Field{Key: "errors", Value: len(report.Errors)},
	)
	p.metrics.RecordReconcileRun(providerName, "success")
	p.metrics.RecordReconcileDuration(providerName, time.Since(startTime))

	return report, nil
}

// reconcileOrder applies a single order to the report, turning failures into
// report entries rather than errors.
func (p *Provider) reconcileOrder(ctx context.Context, o *order, report *billing.ReconcileReport) {
	report.TotalOrders++

	userID := resolveUserID(o.Metadata, nil, o.Customer)
	if userID == "" {
		report.Errors = append(report.Errors,
			fmt.Sprintf("order %s: no %s in metadata", o.ID, userIDMetadataKey))
		return
	}

	repaired, err := p.manager.RepairPaidMember(ctx, userID, o.SubscriptionID)
	if err != nil {
		report.Errors = append(report.Errors,
			fmt.Sprintf("order %s: member %s: %v", o.ID, userID, err))
		return
	}
	if repaired {
		report.TotalReconciled++
		report.ReconciledUserIDs = append(report.ReconciledUserIDs, userID)
	}
}

// listOrders fetches one fixed-size page of the provider's order history.
func (p *Provider) listOrders(ctx context.Context, page int) (*orderListResponse, error) {
	url := fmt.Sprintf("%s%s?page=%d&limit=%d&sorting=-created_at",
		p.apiBaseURL, ordersEndpoint, page, reconcilePageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Accept", "application/json")

	callStart := time.Now()
	res, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordAPICall(providerName, ordersEndpoint, "error")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer res.Body.Close()

	p.metrics.RecordAPICall(providerName, ordersEndpoint, strconv.Itoa(res.StatusCode))
	p.metrics.RecordAPICallDuration(providerName, ordersEndpoint, time.Since(callStart))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", billing.ErrProviderAPIError, res.StatusCode, string(body))
	}

	var listing orderListResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse order listing: %w", err)
	}
	return &listing, nil
}
