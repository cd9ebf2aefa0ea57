package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tilemate_backend/internal/model"
	"tilemate_backend/pkg/subscription"
)

func activeLedger() *model.UserSubscription {
	now := time.Now()
	return &model.UserSubscription{
		UserID:              1,
		StartsAt:            now.Add(-24 * time.Hour),
		ExpiresAt:           now.Add(29 * 24 * time.Hour),
		Active:              true,
		ProjectLimit:        10,
		ProjectUsed:         3,
		ThreeDViewLimit:     5,
		ThreeDViewUsed:      5,
		ManualEstimateLimit: 3,
		ManualEstimateUsed:  0,
	}
}

func TestEvaluateUsageAllowsWithinQuota(t *testing.T) {
	ledger := activeLedger()

	result := evaluateUsage(ledger, subscription.FeatureProject, time.Now())
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Reason)
}

func TestEvaluateUsageQuotaExhausted(t *testing.T) {
	ledger := activeLedger()

	result := evaluateUsage(ledger, subscription.FeatureThreeDView, time.Now())
	assert.False(t, result.Allowed)
	assert.Equal(t, subscription.DeniedQuotaExhausted, result.Reason)
}

func TestEvaluateUsageExpiredWindowDeniesEverything(t *testing.T) {
	ledger := activeLedger()
	ledger.ExpiresAt = time.Now().Add(-time.Hour)

	for _, feature := range subscription.Features() {
		result := evaluateUsage(ledger, feature, time.Now())
		assert.False(t, result.Allowed, "feature %s", feature)
		assert.Equal(t, subscription.DeniedExpired, result.Reason)
	}
}

func TestEvaluateUsageWithoutWindowNeverExpires(t *testing.T) {
	// A ledger built purely from pay-per-use top-ups has no window.
	ledger := &model.UserSubscription{
		UserID:       1,
		Active:       true,
		ProjectLimit: 1,
	}

	result := evaluateUsage(ledger, subscription.FeatureProject, time.Now().Add(365*24*time.Hour))
	assert.True(t, result.Allowed)
}

func TestIncrementAndRemainingPerFeature(t *testing.T) {
	ledger := activeLedger()

	incrementUsed(ledger, subscription.FeatureProject)
	assert.Equal(t, 4, ledger.ProjectUsed)
	assert.Equal(t, 6, remainingFor(ledger, subscription.FeatureProject))

	incrementUsed(ledger, subscription.FeatureManualEstimate)
	assert.Equal(t, 1, ledger.ManualEstimateUsed)
	assert.Equal(t, 2, remainingFor(ledger, subscription.FeatureManualEstimate))

	// Other counters are untouched.
	assert.Equal(t, 5, ledger.ThreeDViewUsed)
}

func TestRemainingWithoutLedger(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := NewFeatureService(db)

	result, err := svc.Remaining(user.ID, subscription.FeatureProject)
	assert.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, subscription.DeniedNoSubscription, result.Reason)
}

func TestRemainingDoesNotConsume(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	svc := NewFeatureService(db)

	ledger := activeLedger()
	ledger.UserID = user.ID
	assert.NoError(t, db.Create(ledger).Error)

	for i := 0; i < 3; i++ {
		result, err := svc.Remaining(user.ID, subscription.FeatureProject)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 7, result.Remaining)
	}
}
