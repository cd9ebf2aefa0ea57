package service

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tilemate_backend/internal/model"
	"tilemate_backend/pkg/subscription"
)

// FeatureService is the only mutation path for usage counters outside of
// activation. Each consume is a locked read-modify-write on the user's
// ledger row, so concurrent callers see linearizable counts.
type FeatureService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewFeatureService(db *gorm.DB) *FeatureService {
	return &FeatureService{DB: db, Now: time.Now}
}

type UsageResult struct {
	Allowed   bool                      `json:"allowed"`
	Remaining int                       `json:"remaining"`
	Reason    subscription.DenialReason `json:"reason,omitempty"`
}

// UseFeature consumes one unit of a metered feature, or explains why it
// cannot.
func (s *FeatureService) UseFeature(userID uint, feature subscription.Feature) (*UsageResult, error) {
	var result *UsageResult

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var ledger model.UserSubscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&ledger).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = &UsageResult{Allowed: false, Reason: subscription.DeniedNoSubscription}
				return nil
			}
			return err
		}

		result = evaluateUsage(&ledger, feature, s.Now())
		if !result.Allowed {
			return nil
		}

		incrementUsed(&ledger, feature)
		result.Remaining = remainingFor(&ledger, feature)
		return tx.Save(&ledger).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Remaining reports the unused quota without consuming anything.
func (s *FeatureService) Remaining(userID uint, feature subscription.Feature) (*UsageResult, error) {
	var ledger model.UserSubscription
	if err := s.DB.Where("user_id = ?", userID).First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &UsageResult{Allowed: false, Reason: subscription.DeniedNoSubscription}, nil
		}
		return nil, err
	}

	result := evaluateUsage(&ledger, feature, s.Now())
	if result.Allowed {
		result.Remaining = remainingFor(&ledger, feature)
	}
	return result, nil
}

// evaluateUsage decides whether one more unit may be consumed. A ledger with
// a validity window (i.e. a time-based plan was ever activated) is time-bound
// and denies everything once the window passes; ledgers built purely from
// pay-per-use top-ups carry no window and never expire.
func evaluateUsage(ledger *model.UserSubscription, feature subscription.Feature, now time.Time) *UsageResult {
	if ledger.WindowExpired(now) {
		return &UsageResult{Allowed: false, Reason: subscription.DeniedExpired}
	}

	used, limit := countersFor(ledger, feature)
	if used >= limit {
		return &UsageResult{Allowed: false, Reason: subscription.DeniedQuotaExhausted}
	}
	return &UsageResult{Allowed: true}
}

func countersFor(ledger *model.UserSubscription, feature subscription.Feature) (used, limit int) {
	switch feature {
	case subscription.FeatureThreeDView:
		return ledger.ThreeDViewUsed, ledger.ThreeDViewLimit
	case subscription.FeatureManualEstimate:
		return ledger.ManualEstimateUsed, ledger.ManualEstimateLimit
	default:
		return ledger.ProjectUsed, ledger.ProjectLimit
	}
}

func incrementUsed(ledger *model.UserSubscription, feature subscription.Feature) {
	switch feature {
	case subscription.FeatureThreeDView:
		ledger.ThreeDViewUsed++
	case subscription.FeatureManualEstimate:
		ledger.ManualEstimateUsed++
	default:
		ledger.ProjectUsed++
	}
}

func remainingFor(ledger *model.UserSubscription, feature subscription.Feature) int {
	used, limit := countersFor(ledger, feature)
	return limit - used
}
