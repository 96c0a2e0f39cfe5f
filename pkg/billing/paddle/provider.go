// Package paddle implements the billing.Provider interface for Paddle.
package paddle

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/billing/internal"
	"github.com/voxnote/membership/pkg/membership"
)

const (
	providerName             = "paddle"
	signatureHeader          = "Paddle-Signature"
	defaultAPIBaseURL        = "https://api.paddle.com"
	sandboxAPIBaseURL        = "https://sandbox-api.paddle.com"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Webhook event names handled by this provider.
const (
	eventTransactionCompleted = "transaction.completed"
	eventSubscriptionCanceled = "subscription.canceled"
	eventSubscriptionPastDue  = "subscription.past_due"
)

// userIDCustomDataKey is the custom-data key carrying the internal user id,
// attached to transactions at checkout time.
const userIDCustomDataKey = "userId"

// Provider implements the billing.Provider interface for Paddle.
type Provider struct {
	manager       *membership.Manager
	router        *billing.Router
	httpClient    *http.Client
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	accessToken   string
	apiBaseURL    string
	metrics       billing.Metrics
	logger        membership.Logger
}

// Config holds Paddle provider configuration.
type Config struct {
	billing.Config

	// Sandbox points outbound API calls at the Paddle sandbox environment.
	Sandbox bool

	// APIBaseURL overrides the Paddle API endpoint entirely (tests).
	APIBaseURL string
}

// NewProvider creates a new Paddle billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	logger := config.Logger
	if logger == nil {
		logger = &membership.NoopLogger{}
	}

	router, err := billing.NewRouter(config.Manager, providerName, metrics, logger)
	if err != nil {
		return nil, err
	}

	apiBaseURL := strings.TrimRight(config.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
		if config.Sandbox {
			apiBaseURL = sandboxAPIBaseURL
		}
	}

	return &Provider{
		manager:       config.Manager,
		router:        router,
		httpClient:    httpClient,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
		accessToken:   strings.TrimSpace(config.AccessToken),
		apiBaseURL:    apiBaseURL,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Paddle webhooks, wrapped with
// per-IP rate limiting.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// webhookPayload mirrors the subset of the Paddle event shape this package
// reads.
type webhookPayload struct {
	EventType string      `json:"event_type"`
	Data      payloadData `json:"data"`
}

type payloadData struct {
	ID              string                  `json:"id"`
	Status          string                  `json:"status"`
	SubscriptionID  string                  `json:"subscription_id"`
	CustomData      map[string]string       `json:"custom_data"`
	ScheduledChange *payloadScheduledChange `json:"scheduled_change"`
}

type payloadScheduledChange struct {
	Action string `json:"action"`
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if p.webhookSecret == "" {
		http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
		p.metrics.RecordWebhookError(providerName, "not_configured")
		return
	}

	body, err := internal.ReadBodyStrict(w, r, internal.MaxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	if !VerifySignature(r.Header.Get(signatureHeader), body, p.webhookSecret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}
	if payload.EventType == "" {
		http.Error(w, "missing event type", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	ev := p.extractEvent(&payload)

	if err := p.router.Route(r.Context(), ev); err != nil {
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, payload.EventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, payload.EventType, time.Since(startTime))
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})

	status := "success"
	if ev.Kind == billing.KindIgnore {
		status = "ignored"
	}
	p.metrics.RecordWebhookEvent(providerName, payload.EventType, status)
	p.metrics.RecordWebhookProcessingDuration(providerName, payload.EventType, time.Since(startTime))
}

// extractEvent maps a verified Paddle payload to a normalized billing event.
func (p *Provider) extractEvent(payload *webhookPayload) billing.Event {
	data := &payload.Data

	switch payload.EventType {
	case eventTransactionCompleted:
		if !transactionPaid(data.Status) {
			return billing.Ignore(payload.EventType)
		}
		userID := strings.TrimSpace(data.CustomData[userIDCustomDataKey])
		if userID == "" {
			p.logger.Warn("webhook payload carries no resolvable user id",
				membership.Field{Key: "provider", Value: providerName},
				membership.Field{Key: "event_type", Value: payload.EventType},
				membership.Field{Key: "object_id", Value: data.ID},
			)
			return billing.Ignore(payload.EventType)
		}
		return billing.Promote(userID, data.SubscriptionID, payload.EventType)

	case eventSubscriptionCanceled:
		// A cancellation scheduled for the period boundary keeps paid access
		// until the subscription actually ends.
		if data.Status == "active" && data.ScheduledChange != nil && data.ScheduledChange.Action == "cancel" {
			return billing.Ignore(payload.EventType)
		}
		return billing.Demote("", subscriptionID(data), payload.EventType)

	case eventSubscriptionPastDue:
		return billing.Demote("", subscriptionID(data), payload.EventType)

	default:
		return billing.Ignore(payload.EventType)
	}
}

// transactionPaid gates transaction completion on its embedded status.
// Paddle reports settled transactions as "completed" or "paid"; an absent
// status on a completion event is accepted as settled.
func transactionPaid(status string) bool {
	switch status {
	case "", "completed", "paid":
		return true
	default:
		return false
	}
}

// subscriptionID prefers the object id on subscription events, falling back
// to an embedded subscription_id for transaction-shaped payloads.
func subscriptionID(data *payloadData) string {
	if data.ID != "" {
		return data.ID
	}
	return data.SubscriptionID
}
