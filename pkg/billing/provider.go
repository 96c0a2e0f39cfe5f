// Package billing converts subscription-provider webhooks into membership
// state changes. Each provider lives in its own subpackage and implements
// the Provider interface; the shared Router applies normalized events to
// the membership Manager.
package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface that any billing backend must implement.
// This allows the application to mount Polar next to Paddle with zero logic
// changes.
type Provider interface {
	// Name returns the provider name (e.g., "polar", "paddle").
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles signature verification, parsing, and
	// membership updates internally.
	WebhookHandler() http.Handler
}

// Reconciler is implemented by providers that can repair membership state
// from their polled order history. Reconciliation only ever promotes:
// absence of an order is not proof of cancellation.
type Reconciler interface {
	// Reconcile pages through the provider's order history and fixes any
	// member whose stored plan disagrees with provider records.
	// It is safe to re-run to idempotent completion.
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

// ReconcileReport aggregates the outcome of one reconciliation run.
// Per-order failures are collected into Errors without aborting the scan.
type ReconcileReport struct {
	TotalOrders       int      `json:"totalOrders"`
	TotalReconciled   int      `json:"totalReconciled"`
	ReconciledUserIDs []string `json:"reconciledUserIds"`
	Errors            []string `json:"errors"`
}
