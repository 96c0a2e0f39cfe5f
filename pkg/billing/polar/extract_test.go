package polar

import (
	"testing"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/membership"
	"github.com/voxnote/membership/storage/memory"
)

func testProvider(t *testing.T) *Provider {
	t.Helper()
	manager, err := membership.NewManager(memory.New(), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	provider, err := NewProvider(Config{
		Config: billing.Config{
			Manager:       manager,
			WebhookSecret: "whsec_dGVzdC1zZWNyZXQ=",
			AccessToken:   "polar_token",
		},
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return provider
}

func TestResolveUserID_FallbackChain(t *testing.T) {
	cases := []struct {
		name             string
		metadata         map[string]string
		customerMetadata map[string]string
		customer         *payloadCustomer
		want             string
	}{
		{
			name:     "checkout metadata wins",
			metadata: map[string]string{"userId": "u_meta"},
			customer: &payloadCustomer{ExternalID: "u_ext"},
			want:     "u_meta",
		},
		{
			name:             "customer metadata second",
			customerMetadata: map[string]string{"userId": "u_cust_meta"},
			customer:         &payloadCustomer{ExternalID: "u_ext"},
			want:             "u_cust_meta",
		},
		{
			name:     "embedded customer metadata third",
			customer: &payloadCustomer{Metadata: map[string]string{"userId": "u_embedded"}, ExternalID: "u_ext"},
			want:     "u_embedded",
		},
		{
			name:     "external id last",
			customer: &payloadCustomer{ExternalID: "u_ext"},
			want:     "u_ext",
		},
		{
			name: "nothing resolves",
			want: "",
		},
		{
			name:     "whitespace ids skipped",
			metadata: map[string]string{"userId": "   "},
			customer: &payloadCustomer{ExternalID: "u_ext"},
			want:     "u_ext",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveUserID(tc.metadata, tc.customerMetadata, tc.customer)
			if got != tc.want {
				t.Errorf("resolveUserID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractEvent_Mapping(t *testing.T) {
	p := testProvider(t)

	cases := []struct {
		name    string
		payload webhookPayload
		want    billing.Event
	}{
		{
			name: "order paid promotes",
			payload: webhookPayload{
				Type: "order.paid",
				Data: payloadData{
					Status:         "paid",
					SubscriptionID: "sub_1",
					Metadata:       map[string]string{"userId": "u1"},
				},
			},
			want: billing.Promote("u1", "sub_1", "order.paid"),
		},
		{
			name: "order paid with succeeded status promotes",
			payload: webhookPayload{
				Type: "order.paid",
				Data: payloadData{
					Status:         "succeeded",
					SubscriptionID: "sub_1",
					Metadata:       map[string]string{"userId": "u1"},
				},
			},
			want: billing.Promote("u1", "sub_1", "order.paid"),
		},
		{
			name: "pending checkout ignored",
			payload: webhookPayload{
				Type: "checkout.updated",
				Data: payloadData{
					Status:   "open",
					Metadata: map[string]string{"userId": "u1"},
				},
			},
			want: billing.Ignore("checkout.updated"),
		},
		{
			name: "succeeded checkout promotes",
			payload: webhookPayload{
				Type: "checkout.updated",
				Data: payloadData{
					Status:         "succeeded",
					SubscriptionID: "sub_1",
					Metadata:       map[string]string{"userId": "u1"},
				},
			},
			want: billing.Promote("u1", "sub_1", "checkout.updated"),
		},
		{
			name: "subscription active promotes with object id",
			payload: webhookPayload{
				Type: "subscription.active",
				Data: payloadData{
					ID:       "sub_1",
					Status:   "active",
					Metadata: map[string]string{"userId": "u1"},
				},
			},
			want: billing.Promote("u1", "sub_1", "subscription.active"),
		},
		{
			name: "scheduled cancellation keeps access",
			payload: webhookPayload{
				Type: "subscription.canceled",
				Data: payloadData{
					ID:                "sub_1",
					Status:            "active",
					CancelAtPeriodEnd: true,
				},
			},
			want: billing.Ignore("subscription.canceled"),
		},
		{
			name: "immediate cancellation demotes",
			payload: webhookPayload{
				Type: "subscription.canceled",
				Data: payloadData{
					ID:     "sub_1",
					Status: "canceled",
				},
			},
			want: billing.Demote("", "sub_1", "subscription.canceled"),
		},
		{
			name: "revocation demotes",
			payload: webhookPayload{
				Type: "subscription.revoked",
				Data: payloadData{ID: "sub_1", Status: "revoked"},
			},
			want: billing.Demote("", "sub_1", "subscription.revoked"),
		},
		{
			name: "update to past_due demotes",
			payload: webhookPayload{
				Type: "subscription.updated",
				Data: payloadData{ID: "sub_1", Status: "past_due"},
			},
			want: billing.Demote("", "sub_1", "subscription.updated"),
		},
		{
			name: "update still active ignored",
			payload: webhookPayload{
				Type: "subscription.updated",
				Data: payloadData{ID: "sub_1", Status: "active", CancelAtPeriodEnd: true},
			},
			want: billing.Ignore("subscription.updated"),
		},
		{
			name: "refund demotes by user",
			payload: webhookPayload{
				Type: "order.refunded",
				Data: payloadData{
					Metadata: map[string]string{"userId": "u1"},
				},
			},
			want: billing.Demote("u1", "", "order.refunded"),
		},
		{
			name: "unknown event ignored",
			payload: webhookPayload{
				Type: "benefit.granted",
				Data: payloadData{Metadata: map[string]string{"userId": "u1"}},
			},
			want: billing.Ignore("benefit.granted"),
		},
		{
			name: "unresolved identity ignored",
			payload: webhookPayload{
				Type: "order.paid",
				Data: payloadData{Status: "paid"},
			},
			want: billing.Ignore("order.paid"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.extractEvent(&tc.payload)
			if got != tc.want {
				t.Errorf("extractEvent = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDemotingStatus(t *testing.T) {
	demoting := []string{"past_due", "canceled", "revoked", "incomplete", "incomplete_expired"}
	for _, status := range demoting {
		if !demotingStatus(status) {
			t.Errorf("Expected %s to demote", status)
		}
	}
	for _, status := range []string{"active", "trialing", ""} {
		if demotingStatus(status) {
			t.Errorf("Expected %s not to demote", status)
		}
	}
}
