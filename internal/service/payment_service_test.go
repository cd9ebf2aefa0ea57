package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tilemate_backend/internal/model"
	"tilemate_backend/pkg/paystack"
)

const testSecret = "sk_test_secret"

func newPaymentService(t *testing.T, db *gorm.DB, handler http.HandlerFunc) *PaymentService {
	t.Helper()

	gateway, err := paystack.New(testSecret, "")
	require.NoError(t, err)

	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		gateway.BaseURL = srv.URL
	}

	return NewPaymentService(db, gateway, NewActivationService(db), nil)
}

func signBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestInitiatePaymentOTPRequired(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)

	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/charge", r.URL.Path)
		w.Write([]byte(`{
			"status": true,
			"message": "Charge attempted",
			"data": {"reference": "ignored", "status": "send_otp", "display_text": "Enter OTP"}
		}`))
	})

	result, err := svc.InitiatePayment(context.Background(), user, InitiatePaymentInput{
		Amount:         50.00,
		PhoneNumber:    "233241234567",
		MobileOperator: "mtn",
		PlanName:       "Basic",
	})
	require.NoError(t, err)

	assert.Equal(t, "otp_required", result.Next)
	assert.NotEmpty(t, result.Reference)

	record, err := model.FindPaymentByReference(db, result.Reference, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentOTPRequired, record.Status)
	assert.Equal(t, int64(5000), record.AmountMinor)
	assert.Equal(t, "0241234567", record.PhoneNumber)
	assert.Equal(t, model.OperatorMTN, record.Operator)
	assert.Equal(t, "Basic", record.PlanNameHint)
	assert.Nil(t, record.CompletedAt)
}

func TestInitiatePaymentRejectsBadInput(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	_, err := svc.InitiatePayment(context.Background(), user, InitiatePaymentInput{
		Amount:         50.00,
		PhoneNumber:    "12345",
		MobileOperator: "mtn",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.InitiatePayment(context.Background(), user, InitiatePaymentInput{
		Amount:         50.00,
		PhoneNumber:    "0241234567",
		MobileOperator: "glo",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.InitiatePayment(context.Background(), user, InitiatePaymentInput{
		Amount:         -5,
		PhoneNumber:    "0241234567",
		MobileOperator: "mtn",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Nothing was charged, no records left behind.
	var count int64
	db.Model(&model.PaymentRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestInitiatePaymentGatewayDownMarksFailed(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)

	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := svc.InitiatePayment(context.Background(), user, InitiatePaymentInput{
		Amount:         50.00,
		PhoneNumber:    "0241234567",
		MobileOperator: "vodafone",
	})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	record, err := model.LatestPaymentForUser(db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, record.Status)
	assert.NotEmpty(t, record.GatewayMessage)
}

func TestInitiatePaymentGatewayAuthIsMisconfiguration(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)

	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := svc.InitiatePayment(context.Background(), user, InitiatePaymentInput{
		Amount:         50.00,
		PhoneNumber:    "0241234567",
		MobileOperator: "mtn",
	})
	assert.ErrorIs(t, err, ErrGatewayMisconfigured)

	// The stored failure message must not hint at the key.
	record, err := model.LatestPaymentForUser(db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "gateway authentication failed", record.GatewayMessage)
}

func TestCompletePaymentCASWinsExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	record := model.PaymentRecord{
		Reference:   "tlm-cas-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	now := time.Now()

	won, err := svc.completePaymentCAS(db, record.Reference, now, "success", "first confirmation")
	require.NoError(t, err)
	assert.True(t, won, "first confirmation must win the CAS")

	won, err = svc.completePaymentCAS(db, record.Reference, now.Add(time.Second), "success", "second confirmation")
	require.NoError(t, err)
	assert.False(t, won, "second confirmation must lose the CAS")

	reloaded, err := model.FindPaymentByReference(db, record.Reference, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)
	assert.Equal(t, "first confirmation", reloaded.GatewayMessage)
}

func TestMarkTerminalNeverTouchesCompleted(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	record := model.PaymentRecord{
		Reference:   "tlm-term-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	won, err := svc.completePaymentCAS(db, record.Reference, time.Now(), "success", "confirmed")
	require.NoError(t, err)
	require.True(t, won)

	svc.markTerminal(record.Reference, model.PaymentAbandoned, "abandoned", "late webhook")

	reloaded, err := model.FindPaymentByReference(db, record.Reference, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, reloaded.Status)
}

func createBasicPlan(t *testing.T, db *gorm.DB) *model.Plan {
	t.Helper()

	plan := model.Plan{
		Name:                "Basic",
		Slug:                "basic",
		Price:               50.00,
		DurationDays:        30,
		ProjectLimit:        10,
		ThreeDViewLimit:     5,
		ManualEstimateLimit: 3,
		Kind:                model.PlanTimeBased,
	}
	require.NoError(t, db.Create(&plan).Error)
	return &plan
}

func TestVerifyPaymentReportsExistingTerminalFailure(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)

	gatewayCalled := false
	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		gatewayCalled = true
	})

	terminalFailures := []model.PaymentStatus{
		model.PaymentFailed,
		model.PaymentAbandoned,
		model.PaymentAmountMismatch,
		model.PaymentVerificationFailed,
	}

	for i, status := range terminalFailures {
		record := model.PaymentRecord{
			Reference:   fmt.Sprintf("tlm-terminal-%d", i),
			UserID:      user.ID,
			AmountMajor: 50.00,
			AmountMinor: 5000,
			Status:      status,
		}
		require.NoError(t, db.Create(&record).Error)

		outcome, err := svc.VerifyPayment(context.Background(), user.ID, record.Reference)
		require.NoError(t, err)
		assert.Equal(t, status, outcome.Status, "a %s record must report itself, not completed", status)
		assert.False(t, outcome.AlreadyCompleted)

		reloaded, err := model.FindPaymentByReference(db, record.Reference, user.ID)
		require.NoError(t, err)
		assert.Equal(t, status, reloaded.Status)
		assert.Nil(t, reloaded.CompletedAt)
	}

	assert.False(t, gatewayCalled, "terminal records must not reach the gateway")
}

func TestVerifyPaymentSuccessActivatesSubscription(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	plan := createBasicPlan(t, db)

	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {"status": "success", "amount": 5000, "gateway_response": "Approved"}
		}`))
	})

	record := model.PaymentRecord{
		Reference:    "tlm-e2e-1",
		UserID:       user.ID,
		AmountMajor:  50.00,
		AmountMinor:  5000,
		PhoneNumber:  "0241234567",
		PlanNameHint: "Basic",
		Status:       model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	outcome, err := svc.VerifyPayment(context.Background(), user.ID, record.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, outcome.Status)
	assert.True(t, outcome.Activated)

	reloaded, err := model.FindPaymentByReference(db, record.Reference, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)

	var ledger model.UserSubscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&ledger).Error)
	assert.True(t, ledger.Active)
	assert.Equal(t, plan.ID, ledger.PlanID)
	assert.Equal(t, model.SubscriptionPaymentPaid, ledger.PaymentStatus)
	assert.Equal(t, 10, ledger.ProjectLimit)
	assert.Equal(t, 5, ledger.ThreeDViewLimit)
	assert.Equal(t, 3, ledger.ManualEstimateLimit)
	assert.Zero(t, ledger.ProjectUsed)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), ledger.ExpiresAt, time.Minute)

	// A late webhook for the same charge is acknowledged without a second
	// activation.
	expiresBefore := ledger.ExpiresAt
	body := []byte(`{"event":"charge.success","data":{"reference":"tlm-e2e-1","amount":5000,"status":"success"}}`)
	require.NoError(t, svc.HandleWebhook(signBody(body), body))

	require.NoError(t, db.Where("user_id = ?", user.ID).First(&ledger).Error)
	assert.WithinDuration(t, expiresBefore, ledger.ExpiresAt, time.Second,
		"a replayed confirmation must not extend the window again")
	assert.Equal(t, 10, ledger.ProjectLimit)
}

func TestWebhookSuccessActivatesSubscription(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	plan := createBasicPlan(t, db)

	gatewayCalled := false
	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		gatewayCalled = true
	})

	record := model.PaymentRecord{
		Reference:    "tlm-e2e-2",
		UserID:       user.ID,
		AmountMajor:  50.00,
		AmountMinor:  5000,
		PhoneNumber:  "0241234567",
		PlanNameHint: "Basic",
		Status:       model.PaymentOTPRequired,
	}
	require.NoError(t, db.Create(&record).Error)

	body := []byte(`{"event":"charge.success","data":{"reference":"tlm-e2e-2","amount":5000,"status":"success"}}`)
	require.NoError(t, svc.HandleWebhook(signBody(body), body))

	reloaded, err := model.FindPaymentByReference(db, record.Reference, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)

	var ledger model.UserSubscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&ledger).Error)
	assert.True(t, ledger.Active)
	assert.Equal(t, plan.ID, ledger.PlanID)
	assert.Equal(t, 10, ledger.ProjectLimit)
	assert.Equal(t, 5, ledger.ThreeDViewLimit)
	assert.Equal(t, 3, ledger.ManualEstimateLimit)

	// The client-side verify that raced the webhook sees the idempotent
	// completed reply without touching the gateway.
	outcome, err := svc.VerifyPayment(context.Background(), user.ID, record.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, outcome.Status)
	assert.True(t, outcome.AlreadyCompleted)
	assert.False(t, gatewayCalled)
}

func TestVerifyPaymentAlreadyCompletedIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)

	gatewayCalled := false
	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		gatewayCalled = true
	})

	now := time.Now()
	record := model.PaymentRecord{
		Reference:   "tlm-done-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentCompleted,
		CompletedAt: &now,
	}
	require.NoError(t, db.Create(&record).Error)

	outcome, err := svc.VerifyPayment(context.Background(), user.ID, record.Reference)
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyCompleted)
	assert.Equal(t, model.PaymentCompleted, outcome.Status)
	assert.False(t, gatewayCalled, "an already-completed record must not reach the gateway")
}

func TestVerifyPaymentUnknownReference(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	_, err := svc.VerifyPayment(context.Background(), user.ID, "no-such-reference")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyPaymentBelongsToCaller(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	record := model.PaymentRecord{
		Reference:   "tlm-owner-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	_, err := svc.VerifyPayment(context.Background(), user.ID+1, record.Reference)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyPaymentMapsFailedAndAbandoned(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)

	gatewayStatus := "failed"
	svc := newPaymentService(t, db, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {"status": "` + gatewayStatus + `", "amount": 5000, "gateway_response": "Declined"}
		}`))
	})

	record := model.PaymentRecord{
		Reference:   "tlm-fail-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	outcome, err := svc.VerifyPayment(context.Background(), user.ID, record.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, outcome.Status)

	reloaded, _ := model.FindPaymentByReference(db, record.Reference, user.ID)
	assert.Equal(t, model.PaymentFailed, reloaded.Status)
	assert.Nil(t, reloaded.CompletedAt)

	// Abandoned path on a fresh record.
	gatewayStatus = "abandoned"
	record2 := model.PaymentRecord{
		Reference:   "tlm-aband-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentOTPRequired,
	}
	require.NoError(t, db.Create(&record2).Error)

	outcome, err = svc.VerifyPayment(context.Background(), user.ID, record2.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentAbandoned, outcome.Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	record := model.PaymentRecord{
		Reference:   "tlm-sig-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	body := []byte(`{"event":"charge.success","data":{"reference":"tlm-sig-1","amount":5000}}`)

	err := svc.HandleWebhook("deadbeef", body)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	err = svc.HandleWebhook("", body)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Valid signature over a tampered body fails too.
	sig := signBody(body)
	tampered := append([]byte(nil), body...)
	tampered[10] = 'X'
	err = svc.HandleWebhook(sig, tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// No state change on any of the rejected requests.
	reloaded, _ := model.FindPaymentByReference(db, record.Reference, user.ID)
	assert.Equal(t, model.PaymentPending, reloaded.Status)
	assert.Nil(t, reloaded.CompletedAt)
}

func TestWebhookRejectsUnparseablePayload(t *testing.T) {
	db := setupTestDB(t)
	svc := newPaymentService(t, db, nil)

	body := []byte(`{"event": "charge.success", "data":`)
	err := svc.HandleWebhook(signBody(body), body)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	missingRef := []byte(`{"event":"charge.success","data":{"amount":5000}}`)
	err = svc.HandleWebhook(signBody(missingRef), missingRef)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestWebhookAmountMismatchParksRecordAndAcks(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	record := model.PaymentRecord{
		Reference:   "tlm-mismatch-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	// Gateway says 40.00 against a recorded 50.00.
	body := []byte(`{"event":"charge.success","data":{"reference":"tlm-mismatch-1","amount":4000,"status":"success"}}`)

	err := svc.HandleWebhook(signBody(body), body)
	assert.NoError(t, err, "mismatches are recorded but still acknowledged")

	reloaded, _ := model.FindPaymentByReference(db, record.Reference, user.ID)
	assert.Equal(t, model.PaymentAmountMismatch, reloaded.Status)
	assert.Nil(t, reloaded.CompletedAt)

	// No ledger was created for the user.
	var ledgerCount int64
	db.Model(&model.UserSubscription{}).Where("user_id = ?", user.ID).Count(&ledgerCount)
	assert.Zero(t, ledgerCount)
}

func TestWebhookFailureEventsAreTerminalButGuarded(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := newPaymentService(t, db, nil)

	record := model.PaymentRecord{
		Reference:   "tlm-evt-1",
		UserID:      user.ID,
		AmountMajor: 50.00,
		AmountMinor: 5000,
		Status:      model.PaymentPending,
	}
	require.NoError(t, db.Create(&record).Error)

	body := []byte(`{"event":"charge.failed","data":{"reference":"tlm-evt-1","amount":5000,"status":"failed"}}`)
	require.NoError(t, svc.HandleWebhook(signBody(body), body))

	reloaded, _ := model.FindPaymentByReference(db, record.Reference, user.ID)
	assert.Equal(t, model.PaymentFailed, reloaded.Status)

	// A second, contradictory event cannot resurrect the record.
	body = []byte(`{"event":"charge.abandoned","data":{"reference":"tlm-evt-1","amount":5000,"status":"abandoned"}}`)
	require.NoError(t, svc.HandleWebhook(signBody(body), body))

	reloaded, _ = model.FindPaymentByReference(db, record.Reference, user.ID)
	assert.Equal(t, model.PaymentFailed, reloaded.Status)
}

func TestWebhookUnknownReferenceAndEventAreAcked(t *testing.T) {
	db := setupTestDB(t)
	svc := newPaymentService(t, db, nil)

	body := []byte(`{"event":"charge.success","data":{"reference":"never-seen","amount":5000}}`)
	assert.NoError(t, svc.HandleWebhook(signBody(body), body))

	body = []byte(`{"event":"transfer.success","data":{"reference":"never-seen","amount":5000}}`)
	assert.NoError(t, svc.HandleWebhook(signBody(body), body))
}

func TestMapGatewayError(t *testing.T) {
	assert.ErrorIs(t, mapGatewayError(paystack.ErrAuth), ErrGatewayMisconfigured)

	serverErr := &paystack.APIError{StatusCode: 502, Message: "bad gateway"}
	assert.ErrorIs(t, mapGatewayError(serverErr), ErrGatewayUnavailable)

	clientErr := &paystack.APIError{StatusCode: 400, Message: "bad request"}
	mapped := mapGatewayError(clientErr)
	assert.False(t, errors.Is(mapped, ErrGatewayUnavailable))
	assert.False(t, errors.Is(mapped, ErrGatewayMisconfigured))

	transport := errors.New("dial tcp: connection refused")
	assert.ErrorIs(t, mapGatewayError(transport), ErrGatewayUnavailable)
}
