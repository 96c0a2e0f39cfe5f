// Package stripe implements the billing.Provider interface for Stripe.
// Signature verification is delegated to the official stripe-go client.
package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/billing/internal"
	"github.com/voxnote/membership/pkg/membership"
)

const (
	providerName             = "stripe"
	signatureHeader          = "Stripe-Signature"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// userIDMetadataKey is the metadata key carrying the internal user id,
// attached to checkout sessions and subscriptions at creation time.
const userIDMetadataKey = "userId"

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	manager       *membership.Manager
	router        *billing.Router
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	metrics       billing.Metrics
	logger        membership.Logger
}

// Config holds Stripe provider configuration.
type Config struct {
	billing.Config
}

// NewProvider creates a new Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
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

	return &Provider{
		manager:       config.Manager,
		router:        router,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks, wrapped with
// per-IP rate limiting.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
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

	event, err := stripe.ConstructEvent(body, r.Header.Get(signatureHeader), p.webhookSecret)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	ev, err := p.extractEvent(&event)
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	if err := p.router.Route(r.Context(), ev); err != nil {
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})

	status := "success"
	if ev.Kind == billing.KindIgnore {
		status = "ignored"
	}
	p.metrics.RecordWebhookEvent(providerName, eventType, status)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// extractEvent maps a verified Stripe event to a normalized billing event.
func (p *Provider) extractEvent(event *stripe.Event) (billing.Event, error) {
	eventType := string(event.Type)

	switch eventType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return billing.Event{}, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		if !checkoutPaid(&session) {
			return billing.Ignore(eventType), nil
		}
		userID := session.Metadata[userIDMetadataKey]
		if userID == "" {
			p.logUnresolved(eventType, session.ID)
			return billing.Ignore(eventType), nil
		}
		subscriptionID := ""
		if session.Subscription != nil {
			subscriptionID = session.Subscription.ID
		}
		return billing.Promote(userID, subscriptionID, eventType), nil

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return billing.Event{}, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		status := string(sub.Status)
		if status == "active" {
			// Covers both a live renewal and a cancellation scheduled for
			// the period boundary; neither demotes.
			userID := subscriptionUserID(&sub)
			if userID == "" || sub.CancelAtPeriodEnd {
				return billing.Ignore(eventType), nil
			}
			return billing.Promote(userID, sub.ID, eventType), nil
		}
		if demotingStatus(status) {
			return billing.Demote("", sub.ID, eventType), nil
		}
		return billing.Ignore(eventType), nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return billing.Event{}, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		return billing.Demote("", sub.ID, eventType), nil

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return billing.Event{}, fmt.Errorf("failed to unmarshal charge: %w", err)
		}
		userID := charge.Metadata[userIDMetadataKey]
		if userID == "" {
			p.logUnresolved(eventType, charge.ID)
			return billing.Ignore(eventType), nil
		}
		return billing.Demote(userID, "", eventType), nil

	default:
		return billing.Ignore(eventType), nil
	}
}

// checkoutPaid gates session completion on its embedded payment status.
func checkoutPaid(session *stripe.CheckoutSession) bool {
	switch string(session.PaymentStatus) {
	case "paid", "no_payment_required":
		return true
	default:
		return false
	}
}

// subscriptionUserID resolves the internal user id from subscription
// metadata, falling back to customer metadata embedded in the event.
func subscriptionUserID(sub *stripe.Subscription) string {
	if id := sub.Metadata[userIDMetadataKey]; id != "" {
		return id
	}
	if sub.Customer != nil && sub.Customer.Metadata != nil {
		return sub.Customer.Metadata[userIDMetadataKey]
	}
	return ""
}

func demotingStatus(status string) bool {
	switch status {
	case "past_due", "canceled", "unpaid", "incomplete", "incomplete_expired":
		return true
	default:
		return false
	}
}

func (p *Provider) logUnresolved(eventType, objectID string) {
	p.logger.Warn("webhook payload carries no resolvable user id",
		membership.Field{Key: "provider", Value: providerName},
		membership.Field{Key: "event_type", Value: eventType},
		membership.Field{Key: "object_id", Value: objectID},
	)
}
