package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxnote/membership/pkg/membership"
)

// Router is the state machine that applies normalized events to membership
// state. Events are applied independently: no ordering is assumed from the
// provider and the last-applied event wins, which keeps promote and demote
// idempotent regardless of arrival order.
type Router struct {
	manager  *membership.Manager
	provider string
	metrics  Metrics
	logger   membership.Logger
}

// NewRouter creates a Router for the named provider.
// Nil metrics and logger default to no-ops.
func NewRouter(manager *membership.Manager, provider string, metrics Metrics, logger membership.Logger) (*Router, error) {
	if manager == nil {
		return nil, ErrProviderNotConfigured
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	if logger == nil {
		logger = &membership.NoopLogger{}
	}
	return &Router{
		manager:  manager,
		provider: provider,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Route applies one normalized event. A returned error is a persistence
// failure the caller should surface as retryable; ignored events and
// unresolved identities succeed silently.
func (r *Router) Route(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindPromote:
		return r.promote(ctx, ev)
	case KindDemote:
		return r.demote(ctx, ev)
	default:
		return nil
	}
}

func (r *Router) promote(ctx context.Context, ev Event) error {
	if ev.UserID == "" {
		// Extractors normalize id-less promotions to Ignore; this guards
		// events built by hand.
		r.logger.Warn("promote event without user id",
			membership.Field{Key: "provider", Value: r.provider},
			membership.Field{Key: "event_type", Value: ev.Type},
		)
		return nil
	}

	previous := membership.PlanFree
	existing, err := r.manager.GetMember(ctx, ev.UserID)
	if err != nil && !errors.Is(err, membership.ErrMemberNotFound) {
		return fmt.Errorf("failed to load member %s: %w", ev.UserID, err)
	}
	if existing != nil {
		previous = existing.Plan
	}

	if err := r.manager.Promote(ctx, ev.UserID, ev.SubscriptionID); err != nil {
		return err
	}

	if previous != membership.PlanPro {
		r.metrics.RecordPlanChange(r.provider, string(previous), string(membership.PlanPro))
	}
	return nil
}

func (r *Router) demote(ctx context.Context, ev Event) error {
	switch {
	case ev.SubscriptionID != "":
		return r.manager.DemoteBySubscription(ctx, ev.SubscriptionID)
	case ev.UserID != "":
		return r.manager.DemoteByUser(ctx, ev.UserID)
	default:
		r.logger.Warn("demote event without subscription or user id",
			membership.Field{Key: "provider", Value: r.provider},
			membership.Field{Key: "event_type", Value: ev.Type},
		)
		return nil
	}
}
