package model

import (
	"time"

	"gorm.io/gorm"
)

type SubscriptionPaymentStatus string

const (
	SubscriptionPaymentPending SubscriptionPaymentStatus = "pending"
	SubscriptionPaymentPaid    SubscriptionPaymentStatus = "paid"
	SubscriptionPaymentFailed  SubscriptionPaymentStatus = "failed"
)

// UserSubscription is the per-user entitlement ledger: at most one row per
// user, holding the validity window and the metered feature counters. It is
// written only by the activation engine and the feature gate, both under a
// row lock.
type UserSubscription struct {
	gorm.Model
	UserID uint `json:"user_id" gorm:"uniqueIndex;not null"`
	PlanID uint `json:"plan_id"`

	StartsAt    time.Time `json:"starts_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"active" gorm:"default:false"`
	TrialActive bool      `json:"trial_active" gorm:"default:false"`

	ProjectLimit        int `json:"project_limit" gorm:"not null;default:0"`
	ProjectUsed         int `json:"project_used" gorm:"not null;default:0"`
	ThreeDViewLimit     int `json:"three_d_view_limit" gorm:"not null;default:0"`
	ThreeDViewUsed      int `json:"three_d_view_used" gorm:"not null;default:0"`
	ManualEstimateLimit int `json:"manual_estimate_limit" gorm:"not null;default:0"`
	ManualEstimateUsed  int `json:"manual_estimate_used" gorm:"not null;default:0"`

	PaymentStatus SubscriptionPaymentStatus `json:"payment_status" gorm:"default:'pending'"`

	// İlişkiler
	User User `json:"-" gorm:"foreignKey:UserID"`
	Plan Plan `json:"plan" gorm:"foreignKey:PlanID"`
}

// HasWindow reports whether a time-based plan ever gave this ledger a
// validity window. Ledgers built purely from pay-per-use top-ups carry none.
func (s *UserSubscription) HasWindow() bool {
	return !s.ExpiresAt.IsZero()
}

// WindowExpired is only meaningful when HasWindow is true.
func (s *UserSubscription) WindowExpired(now time.Time) bool {
	return s.HasWindow() && now.After(s.ExpiresAt)
}
