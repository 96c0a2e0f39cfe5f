package api

import "time"

// MemberResponse is the JSON shape returned by GetMember.
// Usage counters are owned by the metering subsystem and are not exposed here.
type MemberResponse struct {
	ID             string    `json:"id"`
	Plan           string    `json:"plan"`
	IsOnTrial      bool      `json:"isOnTrial"`
	SubscriptionID string    `json:"subscriptionId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type verifyRequest struct {
	TransactionID string `json:"transactionId"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}
