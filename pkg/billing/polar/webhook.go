package polar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/billing/internal"
)

// Delivery headers required on every Polar webhook request.
const (
	headerWebhookID        = "webhook-id"
	headerWebhookTimestamp = "webhook-timestamp"
	headerWebhookSignature = "webhook-signature"
)

type receivedResponse struct {
	Received bool `json:"received"`
}

// handleWebhook processes one inbound Polar webhook delivery.
// The flow is strictly one direction: verify, parse, extract, route, respond.
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

	ok := VerifySignature(body,
		r.Header.Get(headerWebhookID),
		r.Header.Get(headerWebhookTimestamp),
		r.Header.Get(headerWebhookSignature),
		p.webhookSecret,
	)
	if !ok {
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
	if payload.Type == "" {
		http.Error(w, "missing event type", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	ev := p.extractEvent(&payload)

	if err := p.router.Route(r.Context(), ev); err != nil {
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, payload.Type, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, payload.Type, time.Since(startTime))
		return
	}

	// Ignored events still acknowledge with 200 so the provider stops retrying.
	_ = internal.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})

	status := "success"
	if ev.Kind == billing.KindIgnore {
		status = "ignored"
	}
	p.metrics.RecordWebhookEvent(providerName, payload.Type, status)
	p.metrics.RecordWebhookProcessingDuration(providerName, payload.Type, time.Since(startTime))
}
