package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/membership"
	"github.com/voxnote/membership/storage/memory"
)

// headerAuth resolves the user id from a plain test header.
func headerAuth(r *http.Request) (string, error) {
	userID := r.Header.Get("X-Test-User")
	if userID == "" {
		return "", errors.New("no credential")
	}
	return userID, nil
}

type fakeReconciler struct {
	report *billing.ReconcileReport
	err    error
}

func (f *fakeReconciler) Reconcile(_ context.Context) (*billing.ReconcileReport, error) {
	return f.report, f.err
}

type fakeVerifier struct {
	err     error
	lastTxn string
}

func (f *fakeVerifier) VerifyTransaction(_ context.Context, _, transactionID string) error {
	f.lastTxn = transactionID
	return f.err
}

func testHandler(t *testing.T, config Config) (*Handler, *membership.Manager) {
	t.Helper()
	manager, err := membership.NewManager(memory.New(), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	config.Manager = manager
	if config.Authenticate == nil {
		config.Authenticate = headerAuth
	}
	handler, err := NewHandler(config)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return handler, manager
}

func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("X-Test-User", "u1")
	return req
}

func TestNewHandler_MissingCollaborators(t *testing.T) {
	if _, err := NewHandler(Config{}); err == nil {
		t.Error("Expected error without manager and authenticator")
	}
}

func TestInitMember_CreatesFreeMember(t *testing.T) {
	handler, manager := testHandler(t, Config{})

	rec := httptest.NewRecorder()
	handler.InitMember(rec, authedRequest(http.MethodPost, "/member/init", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	member, err := manager.GetMember(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if member.Plan != membership.PlanFree {
		t.Errorf("Expected free plan, got %s", member.Plan)
	}
}

func TestInitMember_Idempotent(t *testing.T) {
	handler, manager := testHandler(t, Config{})
	ctx := context.Background()

	if err := manager.Promote(ctx, "u1", "sub_1"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.InitMember(rec, authedRequest(http.MethodPost, "/member/init", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	member, err := manager.GetMember(ctx, "u1")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if member.Plan != membership.PlanPro {
		t.Errorf("Re-init must not downgrade, got %s", member.Plan)
	}
}

func TestInitMember_Unauthorized(t *testing.T) {
	handler, _ := testHandler(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/member/init", http.NoBody)
	rec := httptest.NewRecorder()
	handler.InitMember(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestGetMember(t *testing.T) {
	handler, manager := testHandler(t, Config{})

	if err := manager.Promote(context.Background(), "u1", "sub_1"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.GetMember(rec, authedRequest(http.MethodGet, "/member", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"plan":"pro"`) {
		t.Errorf("Expected pro plan in response, got %s", body)
	}
	if !strings.Contains(body, `"subscriptionId":"sub_1"`) {
		t.Errorf("Expected subscription id in response, got %s", body)
	}
}

func TestGetMember_NotFound(t *testing.T) {
	handler, _ := testHandler(t, Config{})

	rec := httptest.NewRecorder()
	handler.GetMember(rec, authedRequest(http.MethodGet, "/member", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetMember_MethodNotAllowed(t *testing.T) {
	handler, _ := testHandler(t, Config{})

	rec := httptest.NewRecorder()
	handler.GetMember(rec, authedRequest(http.MethodPost, "/member", ""))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestReconcile_ReturnsReport(t *testing.T) {
	reconciler := &fakeReconciler{
		report: &billing.ReconcileReport{
			TotalOrders:       3,
			TotalReconciled:   1,
			ReconciledUserIDs: []string{"u2"},
			Errors:            []string{},
		},
	}
	handler, _ := testHandler(t, Config{Reconciler: reconciler})

	rec := httptest.NewRecorder()
	handler.Reconcile(rec, authedRequest(http.MethodPost, "/member/reconcile", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"totalOrders":3`) {
		t.Errorf("Expected order count in report, got %s", body)
	}
	if !strings.Contains(body, `"reconciledUserIds":["u2"]`) {
		t.Errorf("Expected reconciled ids in report, got %s", body)
	}
}

func TestReconcile_NotConfigured(t *testing.T) {
	handler, _ := testHandler(t, Config{})

	rec := httptest.NewRecorder()
	handler.Reconcile(rec, authedRequest(http.MethodPost, "/member/reconcile", ""))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 without a reconciler, got %d", rec.Code)
	}
}

func TestReconcile_ProviderAPIError(t *testing.T) {
	reconciler := &fakeReconciler{
		err: fmt.Errorf("%w: status 503", billing.ErrProviderAPIError),
	}
	handler, _ := testHandler(t, Config{Reconciler: reconciler})

	rec := httptest.NewRecorder()
	handler.Reconcile(rec, authedRequest(http.MethodPost, "/member/reconcile", ""))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for provider API error, got %d", rec.Code)
	}
}

func TestVerifyTransaction(t *testing.T) {
	verifier := &fakeVerifier{}
	handler, _ := testHandler(t, Config{Verifier: verifier})

	rec := httptest.NewRecorder()
	handler.VerifyTransaction(rec,
		authedRequest(http.MethodPost, "/member/verify", `{"transactionId":"txn_1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if verifier.lastTxn != "txn_1" {
		t.Errorf("Expected verifier called with txn_1, got %q", verifier.lastTxn)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("Expected success response, got %s", rec.Body.String())
	}
}

func TestVerifyTransaction_MissingTransactionID(t *testing.T) {
	handler, _ := testHandler(t, Config{Verifier: &fakeVerifier{}})

	rec := httptest.NewRecorder()
	handler.VerifyTransaction(rec, authedRequest(http.MethodPost, "/member/verify", `{}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestVerifyTransaction_PaymentNotConfirmed(t *testing.T) {
	verifier := &fakeVerifier{
		err: fmt.Errorf("%w: transaction pending", billing.ErrPaymentNotConfirmed),
	}
	handler, _ := testHandler(t, Config{Verifier: verifier})

	rec := httptest.NewRecorder()
	handler.VerifyTransaction(rec,
		authedRequest(http.MethodPost, "/member/verify", `{"transactionId":"txn_1"}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unconfirmed payment, got %d", rec.Code)
	}
}

func TestVerifyTransaction_NotConfigured(t *testing.T) {
	handler, _ := testHandler(t, Config{})

	rec := httptest.NewRecorder()
	handler.VerifyTransaction(rec,
		authedRequest(http.MethodPost, "/member/verify", `{"transactionId":"txn_1"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 without a verifier, got %d", rec.Code)
	}
}
