package membership

import "errors"

var (
	// ErrMemberNotFound is returned when no row exists for the lookup key.
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvalidMember is returned for a member with no user id.
	ErrInvalidMember = errors.New("invalid member")

	// ErrInvalidUserID is returned for an empty user id.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrStoreRequired is returned when a Manager is constructed without a store.
	ErrStoreRequired = errors.New("membership store is required")
)
