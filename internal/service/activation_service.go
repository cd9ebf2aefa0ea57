package service

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tilemate_backend/internal/model"
)

// ActivationService turns a confirmed payment into subscription entitlements.
// Activate must run inside the same transaction that completed the payment
// record, so the ledger mutation and the CAS commit or roll back together.
type ActivationService struct {
	DB *gorm.DB
}

func NewActivationService(db *gorm.DB) *ActivationService {
	return &ActivationService{DB: db}
}

// ResolvePlan picks the plan for a confirmed payment: the client's name hint
// first, then an exact price match against the active catalog. A nil plan
// with nil error means the payment is genuine but unattributable; the caller
// completes the record and leaves the ledger alone.
func (s *ActivationService) ResolvePlan(tx *gorm.DB, nameHint string, amountMajor float64) (*model.Plan, error) {
	if nameHint != "" {
		plan, err := model.FindPlanByName(tx, nameHint)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	plan, err := model.FindPlanByPrice(tx, amountMajor)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}

// Activate applies a resolved plan to the user's ledger under a row lock,
// creating the ledger on first activation.
func (s *ActivationService) Activate(tx *gorm.DB, userID uint, plan *model.Plan, now time.Time) error {
	var ledger model.UserSubscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&ledger).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		ledger = model.UserSubscription{UserID: userID}
	}

	applyPlan(&ledger, plan, now)

	return tx.Save(&ledger).Error
}

// applyPlan is the per-kind activation table.
//
// time_based / free_trial: an unexpired window is extended by the plan's
// duration with counters and limits untouched (the user keeps what they have
// left); an expired or missing window is a renewal, which resets usage and
// installs the plan's limits. pay_per_use and add_on plans are additive
// capacity bundles and never touch the window or usage.
func applyPlan(ledger *model.UserSubscription, plan *model.Plan, now time.Time) {
	switch plan.Kind {
	case model.PlanTimeBased, model.PlanFreeTrial:
		duration := time.Duration(plan.DurationDays) * 24 * time.Hour
		if ledger.HasWindow() && now.Before(ledger.ExpiresAt) {
			ledger.ExpiresAt = ledger.ExpiresAt.Add(duration)
		} else {
			ledger.StartsAt = now
			ledger.ExpiresAt = now.Add(duration)
			ledger.ProjectUsed = 0
			ledger.ThreeDViewUsed = 0
			ledger.ManualEstimateUsed = 0
			ledger.ProjectLimit = plan.ProjectLimit
			ledger.ThreeDViewLimit = plan.ThreeDViewLimit
			ledger.ManualEstimateLimit = plan.ManualEstimateLimit
		}

	case model.PlanPayPerUse:
		ledger.ProjectLimit += plan.ProjectLimit
		ledger.ThreeDViewLimit += plan.ThreeDViewLimit
		ledger.ManualEstimateLimit += plan.ManualEstimateLimit

	case model.PlanAddOn:
		ledger.ThreeDViewLimit += plan.ThreeDViewLimit
		ledger.ManualEstimateLimit += plan.ManualEstimateLimit

	default:
		log.Printf("activation: unknown plan kind %q for plan %d, ledger untouched", plan.Kind, plan.ID)
		return
	}

	ledger.PlanID = plan.ID
	ledger.PaymentStatus = model.SubscriptionPaymentPaid
	ledger.Active = true
	ledger.TrialActive = false
}
