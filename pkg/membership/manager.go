// Package membership owns the member rows mutated by billing events.
// All plan transitions go through the Manager, which keeps every mutation
// idempotent and independent of webhook arrival order.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Config holds optional Manager configuration.
type Config struct {
	// Logger receives structured log events. Nil means no logging.
	Logger Logger
}

// Manager is the single place that mutates membership state.
type Manager struct {
	store  Store
	logger Logger
}

// NewManager creates a membership Manager backed by the given store.
func NewManager(store Store, config *Config) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	var logger Logger = &NoopLogger{}
	if config != nil && config.Logger != nil {
		logger = config.Logger
	}

	return &Manager{
		store:  store,
		logger: logger,
	}, nil
}

// GetMember retrieves a member by user id.
// Returns ErrMemberNotFound when no row exists.
func (m *Manager) GetMember(ctx context.Context, userID string) (*Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return m.store.GetMember(ctx, userID)
}

// EnsureExists inserts a free member row for userID if none exists.
// An existing row is left untouched regardless of its plan.
func (m *Manager) EnsureExists(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUserID
	}

	if err := m.store.InsertMemberIfAbsent(ctx, NewFreeMember(userID)); err != nil {
		return fmt.Errorf("failed to ensure member %s exists: %w", userID, err)
	}
	return nil
}

// Promote moves the member to the paid plan, clearing the trial flag and
// recording the provider subscription id when one is supplied.
// The row is created first when the promotion is the first event ever seen
// for this user.
func (m *Manager) Promote(ctx context.Context, userID, subscriptionID string) error {
	if err := m.EnsureExists(ctx, userID); err != nil {
		return err
	}

	upd := MemberUpdate{
		Plan:      planPtr(PlanPro),
		IsOnTrial: boolPtr(false),
	}
	if subscriptionID != "" {
		upd.SubscriptionID = &subscriptionID
	}

	if err := m.store.UpdateMemberByID(ctx, userID, upd); err != nil {
		return fmt.Errorf("failed to promote member %s: %w", userID, err)
	}

	m.logger.Info("member promoted",
		Field{Key: "user_id", Value: userID},
		Field{Key: "subscription_id", Value: subscriptionID},
	)
	return nil
}

// DemoteBySubscription returns the member holding subscriptionID to the free
// plan and clears the stored subscription id. A demotion for an unknown
// subscription has nothing to do and is not an error.
func (m *Manager) DemoteBySubscription(ctx context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil
	}

	err := m.store.UpdateMemberBySubscription(ctx, subscriptionID, demoteUpdate())
	if errors.Is(err, ErrMemberNotFound) {
		m.logger.Debug("demotion for unknown subscription",
			Field{Key: "subscription_id", Value: subscriptionID},
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to demote subscription %s: %w", subscriptionID, err)
	}

	m.logger.Info("member demoted",
		Field{Key: "subscription_id", Value: subscriptionID},
	)
	return nil
}

// DemoteByUser returns the member to the free plan by user id.
// A demotion for an unknown user is a no-op.
func (m *Manager) DemoteByUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}

	err := m.store.UpdateMemberByID(ctx, userID, demoteUpdate())
	if errors.Is(err, ErrMemberNotFound) {
		m.logger.Debug("demotion for unknown member",
			Field{Key: "user_id", Value: userID},
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to demote member %s: %w", userID, err)
	}

	m.logger.Info("member demoted",
		Field{Key: "user_id", Value: userID},
	)
	return nil
}

// RepairPaidMember makes the member's plan agree with a paid provider order.
// A missing row is created directly on the paid plan (the order is proof of
// payment); a row already on the paid plan is left untouched. Reconciliation
// only repairs missed promotions, never demotes.
// Returns true when a row was created or upgraded.
func (m *Manager) RepairPaidMember(ctx context.Context, userID, subscriptionID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrInvalidUserID
	}

	existing, err := m.store.GetMember(ctx, userID)
	if errors.Is(err, ErrMemberNotFound) {
		member := NewFreeMember(userID)
		member.Plan = PlanPro
		member.SubscriptionID = subscriptionID
		if err := m.store.InsertMemberIfAbsent(ctx, member); err != nil {
			return false, fmt.Errorf("failed to create member %s: %w", userID, err)
		}
		m.logger.Info("reconciled: created paid member",
			Field{Key: "user_id", Value: userID},
		)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load member %s: %w", userID, err)
	}

	if existing.Plan == PlanPro {
		return false, nil
	}

	upd := MemberUpdate{
		Plan:      planPtr(PlanPro),
		IsOnTrial: boolPtr(false),
	}
	if subscriptionID != "" {
		upd.SubscriptionID = &subscriptionID
	}
	if err := m.store.UpdateMemberByID(ctx, userID, upd); err != nil {
		return false, fmt.Errorf("failed to upgrade member %s: %w", userID, err)
	}

	m.logger.Info("reconciled: upgraded member",
		Field{Key: "user_id", Value: userID},
	)
	return true, nil
}

// demoteUpdate is the single partial update applied by both demote paths.
func demoteUpdate() MemberUpdate {
	empty := ""
	return MemberUpdate{
		Plan:           planPtr(PlanFree),
		SubscriptionID: &empty,
	}
}

func planPtr(p Plan) *Plan { return &p }

func boolPtr(b bool) *bool { return &b }
