package billing

// EventKind discriminates the normalized event variants.
type EventKind int

const (
	// KindIgnore marks deliveries that carry no membership side effect.
	// Ignored events still succeed from the provider's point of view so it
	// does not retry them indefinitely.
	KindIgnore EventKind = iota

	// KindPromote moves the member to the paid plan.
	KindPromote

	// KindDemote returns the member to the free plan.
	KindDemote
)

// String returns the kind name for logging and metrics.
func (k EventKind) String() string {
	switch k {
	case KindPromote:
		return "promote"
	case KindDemote:
		return "demote"
	default:
		return "ignore"
	}
}

// Event is the normalized form of one webhook delivery or one scanned order.
// It is ephemeral and never persisted. Extractors produce it from
// heterogeneous provider payloads; the Router consumes it.
type Event struct {
	Kind EventKind

	// UserID is the acting user, resolved through the provider's metadata
	// fallback chain. Empty when the payload carried none.
	UserID string

	// SubscriptionID is the provider's subscription/session identifier.
	// Demotions prefer this over UserID: the member is located by the
	// stored subscription id, which handles events that carry no user id.
	SubscriptionID string

	// Type is the provider-specific event name, kept for logging and metrics.
	Type string
}

// Promote builds a promoting event.
func Promote(userID, subscriptionID, eventType string) Event {
	return Event{Kind: KindPromote, UserID: userID, SubscriptionID: subscriptionID, Type: eventType}
}

// Demote builds a demoting event. Either id may be empty, not both.
func Demote(userID, subscriptionID, eventType string) Event {
	return Event{Kind: KindDemote, UserID: userID, SubscriptionID: subscriptionID, Type: eventType}
}

// Ignore builds a no-op event.
func Ignore(eventType string) Event {
	return Event{Kind: KindIgnore, Type: eventType}
}
