package model

import (
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending            PaymentStatus = "pending"
	PaymentOTPRequired        PaymentStatus = "otp_required"
	PaymentCompleted          PaymentStatus = "completed"
	PaymentFailed             PaymentStatus = "failed"
	PaymentAbandoned          PaymentStatus = "abandoned"
	PaymentAmountMismatch     PaymentStatus = "amount_mismatch"
	PaymentVerificationFailed PaymentStatus = "verification_failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentPending && s != PaymentOTPRequired
}

type MobileOperator string

const (
	OperatorMTN        MobileOperator = "mtn"
	OperatorVodafone   MobileOperator = "vodafone"
	OperatorAirtelTigo MobileOperator = "airtel_tigo"
)

// PaymentRecord logs a single charge attempt against the gateway. Records are
// never deleted; only status transitions mutate them. Reference doubles as
// the gateway idempotency key.
type PaymentRecord struct {
	gorm.Model
	Reference   string         `json:"reference" gorm:"uniqueIndex;not null"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	AmountMajor float64        `json:"amount" gorm:"type:decimal(10,2);not null"`
	AmountMinor int64          `json:"amount_minor" gorm:"not null"`
	PhoneNumber string         `json:"phone_number"`
	Operator    MobileOperator `json:"mobile_operator"`
	// PlanNameHint lets the client pin the plan instead of relying on the
	// price match at activation time.
	PlanNameHint string `json:"plan_name,omitempty"`

	Status           PaymentStatus  `json:"status" gorm:"default:'pending';index"`
	GatewayMessage   string         `json:"gateway_message"`
	GatewayStatusRaw string         `json:"gateway_status_raw"`
	GatewayResponse  datatypes.JSON `json:"-"`
	// CompletedAt is set exactly once, by the CAS transition into completed.
	CompletedAt *time.Time `json:"completed_at"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

// MinorUnits converts a major-unit amount to the integer form the gateway
// expects (GHS pesewas, factor 100).
func MinorUnits(amountMajor float64) int64 {
	return int64(math.Round(amountMajor * 100))
}

// AmountsReconcile checks a confirmed minor-unit amount against the recorded
// major amount within the 0.01 fraud-guard tolerance.
func AmountsReconcile(recordedMajor float64, receivedMinor int64) bool {
	return math.Abs(float64(receivedMinor)/100-recordedMajor) <= 0.01
}

func FindPaymentByReference(db *gorm.DB, reference string, userID uint) (*PaymentRecord, error) {
	var record PaymentRecord
	if err := db.Where("reference = ? AND user_id = ?", reference, userID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func FindPaymentByReferenceAny(db *gorm.DB, reference string) (*PaymentRecord, error) {
	var record PaymentRecord
	if err := db.Where("reference = ?", reference).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func LatestPaymentForUser(db *gorm.DB, userID uint) (*PaymentRecord, error) {
	var record PaymentRecord
	if err := db.Where("user_id = ?", userID).Order("created_at desc").First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
