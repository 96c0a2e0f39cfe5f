package billing

import (
	"net/http"

	"github.com/voxnote/membership/pkg/membership"
)

// Config defines the standard configuration all providers accept.
type Config struct {
	// Manager is the membership Manager updated by webhook events.
	Manager *membership.Manager

	// WebhookSecret verifies incoming webhook requests.
	// A provider with no secret rejects every delivery as a configuration
	// error rather than accepting unauthenticated payloads.
	WebhookSecret string

	// AccessToken authorizes outbound calls to the provider's API
	// (order listing for reconciliation, transaction lookups).
	AccessToken string

	// HTTPClient is an optional client for outbound API calls.
	// If nil, a default client with a 10s timeout is used.
	HTTPClient *http.Client

	// Metrics is an optional collector for webhook and reconciliation
	// operations. If nil, metrics are silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics

	// Logger receives structured operational events such as unresolved
	// payload identities. If nil, logging is a no-op.
	Logger membership.Logger
}
