package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is missing a
	// required secret, token, or manager.
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails.
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when a webhook payload cannot be parsed.
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrProviderAPIError is returned when the provider's API returns an error.
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrPaymentNotConfirmed is returned when a transaction lookup reports a
	// payment that has not completed.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
)
