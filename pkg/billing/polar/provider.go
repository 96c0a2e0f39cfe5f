// Package polar implements the billing.Provider interface for Polar.
// It authenticates webhook deliveries with the standard-webhooks HMAC scheme
// and can reconcile membership state from the Polar order-listing API.
package polar

import (
	"net/http"
	"strings"
	"time"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/billing/internal"
	"github.com/voxnote/membership/pkg/membership"
)

const (
	providerName             = "polar"
	defaultAPIBaseURL        = "https://api.polar.sh"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	reconcilePageSize        = 100
)

// Provider implements the billing.Provider and billing.Reconciler interfaces
// for Polar.
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

// Config holds Polar provider configuration.
type Config struct {
	billing.Config

	// APIBaseURL overrides the Polar API endpoint (sandbox, tests).
	APIBaseURL string
}

// NewProvider creates a new Polar billing provider.
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

// WebhookHandler returns the HTTP handler for Polar webhooks, wrapped with
// per-IP rate limiting.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}
