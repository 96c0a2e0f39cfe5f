package membership

import "context"

// Store defines the persistence interface for member rows.
// Implementations must make each method a single atomic row operation;
// the Manager never requires multi-row transactions.
type Store interface {
	// GetMember retrieves a member by user id.
	// Returns ErrMemberNotFound when no row exists.
	GetMember(ctx context.Context, userID string) (*Member, error)

	// InsertMemberIfAbsent inserts m if and only if no row exists for m.ID.
	// An existing row is left untouched; a conflict is not an error.
	InsertMemberIfAbsent(ctx context.Context, m *Member) error

	// UpdateMemberByID applies upd to the row with the given user id.
	// Returns ErrMemberNotFound when no row matches.
	UpdateMemberByID(ctx context.Context, userID string, upd MemberUpdate) error

	// UpdateMemberBySubscription applies upd to the row whose stored
	// subscription id matches. Returns ErrMemberNotFound when no row matches.
	UpdateMemberBySubscription(ctx context.Context, subscriptionID string, upd MemberUpdate) error
}
