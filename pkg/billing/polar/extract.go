package polar

import (
	"strings"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/membership"
)

// Payload event names handled by this provider.
const (
	eventCheckoutUpdated      = "checkout.updated"
	eventOrderCreated         = "order.created"
	eventOrderPaid            = "order.paid"
	eventOrderRefunded        = "order.refunded"
	eventSubscriptionActive   = "subscription.active"
	eventSubscriptionUpdated  = "subscription.updated"
	eventSubscriptionCanceled = "subscription.canceled"
	eventSubscriptionRevoked  = "subscription.revoked"
)

// Payload status values.
const (
	statusSucceeded = "succeeded"
	statusPaid      = "paid"
	statusActive    = "active"
)

// userIDMetadataKey is the metadata key carrying the internal user id,
// attached to checkouts at session creation time.
const userIDMetadataKey = "userId"

// webhookPayload mirrors the subset of the Polar event shape this package
// reads. Unknown fields are ignored.
type webhookPayload struct {
	Type string      `json:"type"`
	Data payloadData `json:"data"`
}

type payloadData struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	SubscriptionID    string            `json:"subscription_id"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	CustomerMetadata  map[string]string `json:"customer_metadata"`
	Customer          *payloadCustomer  `json:"customer"`
}

type payloadCustomer struct {
	Metadata   map[string]string `json:"metadata"`
	ExternalID string            `json:"external_id"`
}

// resolveUserID walks the ordered fallback chain over the places a user id
// may appear: checkout metadata, customer metadata attached to the event,
// the embedded customer's metadata, and finally the customer's external id.
// Returns "" when none match.
func resolveUserID(metadata, customerMetadata map[string]string, customer *payloadCustomer) string {
	if id := strings.TrimSpace(metadata[userIDMetadataKey]); id != "" {
		return id
	}
	if id := strings.TrimSpace(customerMetadata[userIDMetadataKey]); id != "" {
		return id
	}
	if customer != nil {
		if id := strings.TrimSpace(customer.Metadata[userIDMetadataKey]); id != "" {
			return id
		}
		if id := strings.TrimSpace(customer.ExternalID); id != "" {
			return id
		}
	}
	return ""
}

// demotingStatus reports whether a subscription lifecycle status terminates
// paid access.
func demotingStatus(status string) bool {
	switch status {
	case "past_due", "canceled", "revoked", "incomplete", "incomplete_expired":
		return true
	default:
		return false
	}
}

// extractEvent maps a verified Polar payload to a normalized billing event.
// A payload this system can never resolve (missing user id) normalizes to
// Ignore so the provider does not retry it forever.
func (p *Provider) extractEvent(payload *webhookPayload) billing.Event {
	data := &payload.Data

	switch payload.Type {
	case eventCheckoutUpdated, eventOrderCreated, eventOrderPaid:
		if !completionSucceeded(payload.Type, data.Status) {
			return billing.Ignore(payload.Type)
		}
		userID := resolveUserID(data.Metadata, data.CustomerMetadata, data.Customer)
		if userID == "" {
			p.logUnresolved(payload.Type, data.ID)
			return billing.Ignore(payload.Type)
		}
		return billing.Promote(userID, data.SubscriptionID, payload.Type)

	case eventSubscriptionActive:
		userID := resolveUserID(data.Metadata, data.CustomerMetadata, data.Customer)
		if userID == "" {
			p.logUnresolved(payload.Type, data.ID)
			return billing.Ignore(payload.Type)
		}
		// For subscription events the subscription id is the object id itself.
		return billing.Promote(userID, data.ID, payload.Type)

	case eventSubscriptionCanceled:
		// Grace period: a cancellation scheduled for the period boundary
		// keeps paid access until the terminal revocation event arrives.
		if data.Status == statusActive && data.CancelAtPeriodEnd {
			return billing.Ignore(payload.Type)
		}
		return billing.Demote("", data.ID, payload.Type)

	case eventSubscriptionRevoked:
		return billing.Demote("", data.ID, payload.Type)

	case eventSubscriptionUpdated:
		// An update reporting the subscription still active (including one
		// scheduled to cancel at the period boundary) changes nothing; only
		// terminal statuses demote.
		if !demotingStatus(data.Status) {
			return billing.Ignore(payload.Type)
		}
		return billing.Demote("", data.ID, payload.Type)

	case eventOrderRefunded:
		userID := resolveUserID(data.Metadata, data.CustomerMetadata, data.Customer)
		if userID == "" {
			p.logUnresolved(payload.Type, data.ID)
			return billing.Ignore(payload.Type)
		}
		return billing.Demote(userID, "", payload.Type)

	default:
		return billing.Ignore(payload.Type)
	}
}

// completionSucceeded gates checkout and order completion events on their
// embedded status: checkouts settle as "succeeded", orders as "paid".
func completionSucceeded(eventType, status string) bool {
	switch eventType {
	case eventCheckoutUpdated:
		return status == statusSucceeded
	default:
		return status == statusPaid || status == statusSucceeded
	}
}

func (p *Provider) logUnresolved(eventType, objectID string) {
	p.logger.Warn("webhook payload carries no resolvable user id",
		membership.Field{Key: "provider", Value: providerName},
		membership.Field{Key: "event_type", Value: eventType},
		membership.Field{Key: "object_id", Value: objectID},
	)
}
