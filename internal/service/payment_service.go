package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tilemate_backend/internal/model"
	"tilemate_backend/pkg/paystack"
	"tilemate_backend/pkg/sms"
	"tilemate_backend/pkg/utils/phone"
)

// PaymentService drives a charge through its observable states: initiation,
// optional OTP, and exactly-once confirmation from whichever of the webhook
// or client verify arrives first.
type PaymentService struct {
	DB         *gorm.DB
	Gateway    *paystack.Client
	Activation *ActivationService
	SMS        *sms.Service
	Now        func() time.Time
}

func NewPaymentService(db *gorm.DB, gateway *paystack.Client, activation *ActivationService, smsService *sms.Service) *PaymentService {
	return &PaymentService{
		DB:         db,
		Gateway:    gateway,
		Activation: activation,
		SMS:        smsService,
		Now:        time.Now,
	}
}

type InitiatePaymentInput struct {
	Amount         float64 `json:"amount"`
	PhoneNumber    string  `json:"phoneNumber"`
	MobileOperator string  `json:"mobileOperator"`
	CustomerName   string  `json:"customerName"`
	PlanName       string  `json:"plan_name"`
}

type InitiateResult struct {
	Reference string `json:"reference"`
	Next      string `json:"next"`
	Message   string `json:"message"`
}

// VerifyOutcome is the result of a confirmation attempt from either path.
type VerifyOutcome struct {
	Status           model.PaymentStatus `json:"status"`
	AlreadyCompleted bool                `json:"already_completed"`
	Activated        bool                `json:"activated"`
	Message          string              `json:"message"`
}

var nonTerminalStatuses = []model.PaymentStatus{model.PaymentPending, model.PaymentOTPRequired}

// InitiatePayment creates the pending record and posts the charge. The
// locally generated reference is the identifier across all systems and the
// gateway idempotency key.
func (s *PaymentService) InitiatePayment(ctx context.Context, user *model.User, in InitiatePaymentInput) (*InitiateResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	normalized, err := phone.Normalize(in.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	operator, err := phone.ParseOperator(in.MobileOperator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	record := model.PaymentRecord{
		Reference:    generatePaymentReference(),
		UserID:       user.ID,
		AmountMajor:  in.Amount,
		AmountMinor:  model.MinorUnits(in.Amount),
		PhoneNumber:  normalized,
		Operator:     operator,
		PlanNameHint: in.PlanName,
		Status:       model.PaymentPending,
	}
	if err := s.DB.Create(&record).Error; err != nil {
		return nil, err
	}

	charge, err := s.Gateway.Charge(ctx, paystack.ChargeRequest{
		Email:     user.Email,
		Amount:    record.AmountMinor,
		Reference: record.Reference,
		MobileMoney: paystack.MobileMoney{
			Phone:    normalized,
			Provider: phone.ProviderCode(operator),
		},
		Metadata: chargeMetadata(user, in),
	})
	if err != nil {
		s.DB.Model(&record).Updates(map[string]interface{}{
			"status":          model.PaymentFailed,
			"gateway_message": gatewayFailureMessage(err),
		})
		return nil, mapGatewayError(err)
	}

	next := "pending"
	status := model.PaymentPending
	switch charge.State {
	case paystack.ChargeSendOTP:
		next = "otp_required"
		status = model.PaymentOTPRequired
	case paystack.ChargeSuccess:
		// The charge settled synchronously; activation still waits for the
		// verify or webhook confirmation.
		next = "success"
	case paystack.ChargePending, paystack.ChargePayOffline:
		next = "pending"
	case paystack.ChargeUnknown:
		log.Printf("payment %s: unrecognised gateway charge status %q", record.Reference, charge.RawStatus)
	}

	rawResponse, _ := json.Marshal(charge)
	s.DB.Model(&record).Updates(map[string]interface{}{
		"status":             status,
		"gateway_message":    charge.Message,
		"gateway_status_raw": charge.RawStatus,
		"gateway_response":   rawResponse,
	})

	message := charge.DisplayText
	if message == "" {
		message = charge.Message
	}
	return &InitiateResult{
		Reference: record.Reference,
		Next:      next,
		Message:   message,
	}, nil
}

// SubmitOTP forwards the customer's OTP for a charge still awaiting it.
// Confirmation and activation come later, via webhook or verify.
func (s *PaymentService) SubmitOTP(ctx context.Context, userID uint, reference, otp string) (*paystack.OTPResult, error) {
	if reference == "" || otp == "" {
		return nil, fmt.Errorf("%w: reference and otp are required", ErrInvalidInput)
	}

	record, err := model.FindPaymentByReference(s.DB, reference, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if record.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: payment is already %s", ErrInvalidInput, record.Status)
	}

	result, err := s.Gateway.SubmitOTP(ctx, reference, otp)
	if err != nil {
		return nil, mapGatewayError(err)
	}

	s.DB.Model(record).Updates(map[string]interface{}{
		"gateway_message":    result.Message,
		"gateway_status_raw": result.RawStatus,
	})
	return result, nil
}

// VerifyPayment is the client-initiated confirmation path. Idempotent: a
// record already completed returns immediately with no side effects.
func (s *PaymentService) VerifyPayment(ctx context.Context, userID uint, reference string) (*VerifyOutcome, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}

	record, err := model.FindPaymentByReference(s.DB, reference, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if record.Status.IsTerminal() {
		return terminalOutcome(record.Status), nil
	}

	verification, err := s.Gateway.Verify(ctx, reference)
	if err != nil {
		return nil, mapGatewayError(err)
	}

	switch verification.State {
	case paystack.VerifySuccess:
		return s.confirmCharge(record, verification.AmountMinor, verification.RawStatus, verification.GatewayResponse)

	case paystack.VerifyFailed:
		s.markTerminal(record.Reference, model.PaymentFailed, verification.RawStatus, verification.GatewayResponse)
		return &VerifyOutcome{Status: model.PaymentFailed, Message: verification.GatewayResponse}, nil

	case paystack.VerifyAbandoned:
		s.markTerminal(record.Reference, model.PaymentAbandoned, verification.RawStatus, verification.GatewayResponse)
		return &VerifyOutcome{Status: model.PaymentAbandoned, Message: verification.GatewayResponse}, nil

	case paystack.VerifyPending:
		return &VerifyOutcome{Status: model.PaymentPending, Message: "Payment is still pending"}, nil

	default:
		log.Printf("payment %s: unrecognised verify status %q", record.Reference, verification.RawStatus)
		s.markTerminal(record.Reference, model.PaymentVerificationFailed, verification.RawStatus, verification.GatewayResponse)
		return &VerifyOutcome{Status: model.PaymentVerificationFailed, Message: verification.GatewayResponse}, nil
	}
}

// HandleWebhook is the asynchronous confirmation path. Handled and
// unrecognised events both return nil so the gateway never retries; only an
// unsigned or unparseable request is an error.
func (s *PaymentService) HandleWebhook(signature string, body []byte) error {
	if !s.Gateway.VerifyWebhookSignature(body, signature) {
		return ErrInvalidSignature
	}

	var event paystack.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Data.Reference == "" {
		return fmt.Errorf("%w: missing reference", ErrInvalidPayload)
	}

	record, err := model.FindPaymentByReferenceAny(s.DB, event.Data.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("webhook: no payment record for reference %s, acknowledging", event.Data.Reference)
			return nil
		}
		return err
	}

	switch event.Event {
	case paystack.EventChargeSuccess:
		if _, err := s.confirmCharge(record, event.Data.Amount, event.Data.Status, "charge.success webhook"); err != nil {
			// An amount mismatch is recorded terminally but still
			// acknowledged, otherwise the gateway would retry forever.
			if errors.Is(err, ErrAmountMismatch) {
				return nil
			}
			return err
		}
		return nil

	case paystack.EventChargeFailed:
		s.markTerminal(record.Reference, model.PaymentFailed, event.Data.Status, "charge.failed webhook")
		return nil

	case paystack.EventChargeAbandoned:
		s.markTerminal(record.Reference, model.PaymentAbandoned, event.Data.Status, "charge.abandoned webhook")
		return nil

	default:
		log.Printf("webhook: ignoring event %q for reference %s", event.Event, event.Data.Reference)
		return nil
	}
}

// CheckStatus is the read-only polling endpoint's backing query.
func (s *PaymentService) CheckStatus(userID uint, reference string) (*model.PaymentRecord, error) {
	record, err := model.FindPaymentByReference(s.DB, reference, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// confirmCharge runs the shared success pipeline: amount reconciliation,
// then the CAS completion and activation inside one transaction. The CAS
// predicate (non-terminal status AND completed_at IS NULL) is the single
// serialization point between a concurrent webhook and verify; exactly one
// confirmation activates, the other observes already-completed.
func (s *PaymentService) confirmCharge(record *model.PaymentRecord, receivedMinor int64, rawStatus, message string) (*VerifyOutcome, error) {
	if !model.AmountsReconcile(record.AmountMajor, receivedMinor) {
		log.Printf("payment %s: amount mismatch, recorded %.2f received minor %d",
			record.Reference, record.AmountMajor, receivedMinor)
		s.markTerminal(record.Reference, model.PaymentAmountMismatch, rawStatus,
			fmt.Sprintf("confirmed amount %d does not match recorded amount", receivedMinor))
		return &VerifyOutcome{Status: model.PaymentAmountMismatch}, ErrAmountMismatch
	}

	now := s.Now()
	activated := false
	var activatedPlan *model.Plan

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		completed, err := s.completePaymentCAS(tx, record.Reference, now, rawStatus, message)
		if err != nil {
			return err
		}
		if !completed {
			return errAlreadyCompleted
		}

		plan, err := s.Activation.ResolvePlan(tx, record.PlanNameHint, record.AmountMajor)
		if err != nil {
			return err
		}
		if plan == nil {
			log.Printf("payment %s: completed but no plan matches hint %q or amount %.2f, needs manual review",
				record.Reference, record.PlanNameHint, record.AmountMajor)
			return nil
		}

		if err := s.Activation.Activate(tx, record.UserID, plan, now); err != nil {
			return err
		}
		activated = true
		activatedPlan = plan
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyCompleted) {
			// The CAS also loses against terminal failure states, so the
			// record is re-read to report what actually happened.
			current, readErr := model.FindPaymentByReferenceAny(s.DB, record.Reference)
			if readErr != nil {
				return nil, readErr
			}
			return terminalOutcome(current.Status), nil
		}
		return nil, err
	}

	if activated {
		if err := s.SMS.SendPaymentConfirmation(record.PhoneNumber, activatedPlan.Name, record.AmountMajor); err != nil {
			log.Printf("payment %s: confirmation sms failed: %v", record.Reference, err)
		}
	}

	return &VerifyOutcome{
		Status:    model.PaymentCompleted,
		Activated: activated,
		Message:   "Payment verified successfully",
	}, nil
}

// terminalOutcome reports a record that already reached a terminal state.
// The idempotent already-completed reply is reserved for completed records;
// terminal failures surface as themselves.
func terminalOutcome(status model.PaymentStatus) *VerifyOutcome {
	if status == model.PaymentCompleted {
		return &VerifyOutcome{
			Status:           model.PaymentCompleted,
			AlreadyCompleted: true,
			Message:          "Payment already verified",
		}
	}
	return &VerifyOutcome{
		Status:  status,
		Message: fmt.Sprintf("Payment is already %s", status),
	}
}

// completePaymentCAS is the conditional transition into completed. It both
// tests and sets in one UPDATE, so only one caller can ever win.
func (s *PaymentService) completePaymentCAS(tx *gorm.DB, reference string, now time.Time, rawStatus, message string) (bool, error) {
	res := tx.Model(&model.PaymentRecord{}).
		Where("reference = ? AND status IN ? AND completed_at IS NULL", reference, nonTerminalStatuses).
		Updates(map[string]interface{}{
			"status":             model.PaymentCompleted,
			"completed_at":       now,
			"gateway_status_raw": rawStatus,
			"gateway_message":    message,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// markTerminal moves a record into a terminal failure state, but only from a
// non-terminal one. Completed records are never overwritten.
func (s *PaymentService) markTerminal(reference string, status model.PaymentStatus, rawStatus, message string) {
	res := s.DB.Model(&model.PaymentRecord{}).
		Where("reference = ? AND status IN ?", reference, nonTerminalStatuses).
		Updates(map[string]interface{}{
			"status":             status,
			"gateway_status_raw": rawStatus,
			"gateway_message":    message,
		})
	if res.Error != nil {
		log.Printf("payment %s: could not record terminal status %s: %v", reference, status, res.Error)
	}
}

func generatePaymentReference() string {
	return fmt.Sprintf("tlm-%d-%s", time.Now().Unix(), strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func chargeMetadata(user *model.User, in InitiatePaymentInput) map[string]string {
	metadata := map[string]string{
		"user_id": fmt.Sprintf("%d", user.ID),
	}
	if in.CustomerName != "" {
		metadata["customer_name"] = in.CustomerName
	}
	if in.PlanName != "" {
		metadata["plan_name"] = in.PlanName
	}
	return metadata
}

func gatewayFailureMessage(err error) string {
	if errors.Is(err, paystack.ErrAuth) {
		// Never echo anything about the key itself.
		return "gateway authentication failed"
	}
	return err.Error()
}

// mapGatewayError translates transport and gateway errors into the service
// taxonomy. A 401 from the gateway is an operator problem, not a payment
// failure.
func mapGatewayError(err error) error {
	if errors.Is(err, paystack.ErrAuth) {
		return ErrGatewayMisconfigured
	}

	var apiErr *paystack.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return err
	}

	// Timeouts and connection failures.
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
