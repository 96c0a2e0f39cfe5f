package api

import (
	"context"
	"net/http"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/membership"
)

// TransactionVerifier confirms a checkout transaction against the provider
// API and promotes the member on confirmed payment (e.g. the Paddle
// provider's VerifyTransaction).
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, userID, transactionID string) error
}

// Config holds the handler's collaborators.
type Config struct {
	// Manager is the membership Manager. Required.
	Manager *membership.Manager

	// Authenticate resolves the request's bearer credential to the acting
	// user id. Required. An error or empty id rejects the request with 401.
	Authenticate func(r *http.Request) (string, error)

	// Reconciler runs the order-history repair pass (usually the Polar
	// provider). Optional; the reconcile endpoint answers 500 without it.
	Reconciler billing.Reconciler

	// Verifier confirms checkout transactions on demand. Optional; the
	// verify endpoint answers 500 without it.
	Verifier TransactionVerifier

	// Logger receives structured log events. Nil means no logging.
	Logger membership.Logger
}
