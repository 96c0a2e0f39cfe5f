package membership

import "time"

// Plan identifies a member's subscription plan.
type Plan string

const (
	// PlanFree is the baseline plan every member starts on.
	PlanFree Plan = "free"
	// PlanPro is the paid plan, granted by a billing event or a reconciled order.
	PlanPro Plan = "pro"
)

// Member represents a single membership row.
// Rows are created lazily and never deleted by this subsystem.
type Member struct {
	// ID is the opaque, stable user identifier (primary key).
	ID string

	// Plan reflects the most recently applied terminal billing event for the
	// member's current subscription.
	Plan Plan

	// IsOnTrial is cleared whenever the plan changes via a billing event.
	IsOnTrial bool

	// SubscriptionID is the provider's subscription identifier.
	// Set on promotion, cleared on demotion; empty when none.
	SubscriptionID string

	// Usage counters are owned by the metering subsystem. This package only
	// zeroes them on first creation and never otherwise touches them.
	WordsToday      int
	WordsThisMonth  int
	WordsTotal      int
	TokensToday     int
	TokensThisMonth int
	TokensTotal     int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewFreeMember returns the row inserted for a previously unknown user:
// free plan, no trial, zeroed counters.
func NewFreeMember(userID string) *Member {
	return &Member{
		ID:   userID,
		Plan: PlanFree,
	}
}

// MemberUpdate describes a partial update to a member row.
// Nil fields are left unchanged.
type MemberUpdate struct {
	Plan      *Plan
	IsOnTrial *bool

	// SubscriptionID overwrites the stored subscription id when non-nil.
	// Pointing at the empty string clears it.
	SubscriptionID *string
}
