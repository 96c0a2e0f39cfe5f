package paddle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/voxnote/membership/pkg/billing"
)

const transactionsEndpoint = "/transactions"

type transactionResponse struct {
	Data struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		SubscriptionID string `json:"subscription_id"`
	} `json:"data"`
}

// VerifyTransaction confirms a checkout transaction directly against the
// Paddle API and promotes the calling member on confirmed payment. This
// covers clients that return from checkout before the webhook lands.
// Returns ErrPaymentNotConfirmed when the transaction has not settled.
func (p *Provider) VerifyTransaction(ctx context.Context, userID, transactionID string) error {
	if p.accessToken == "" {
		return fmt.Errorf("%w: missing access token", billing.ErrProviderNotConfigured)
	}
	if userID == "" || transactionID == "" {
		return fmt.Errorf("%w: missing user or transaction id", billing.ErrInvalidWebhookPayload)
	}

	url := fmt.Sprintf("%s%s/%s", p.apiBaseURL, transactionsEndpoint, transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Accept", "application/json")

	callStart := time.Now()
	res, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordAPICall(providerName, transactionsEndpoint, "error")
		return fmt.Errorf("failed to fetch transaction: %w", err)
	}
	defer res.Body.Close()

	p.metrics.RecordAPICall(providerName, transactionsEndpoint, strconv.Itoa(res.StatusCode))
	p.metrics.RecordAPICallDuration(providerName, transactionsEndpoint, time.Since(callStart))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", billing.ErrProviderAPIError, res.StatusCode, string(body))
	}

	var tx transactionResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return fmt.Errorf("failed to parse transaction: %w", err)
	}

	if tx.Data.Status != "completed" && tx.Data.Status != "paid" {
		return fmt.Errorf("%w: transaction %s is %s", billing.ErrPaymentNotConfirmed, transactionID, tx.Data.Status)
	}

	return p.manager.Promote(ctx, userID, tx.Data.SubscriptionID)
}
