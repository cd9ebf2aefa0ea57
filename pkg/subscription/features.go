package subscription

import "fmt"

// Feature names a metered capability of the app.
type Feature string

const (
	FeatureProject        Feature = "project"
	FeatureThreeDView     Feature = "three_d_view"
	FeatureManualEstimate Feature = "manual_estimate"
)

// DenialReason explains why the feature gate refused a unit.
type DenialReason string

const (
	DeniedNoSubscription DenialReason = "no_subscription"
	DeniedExpired        DenialReason = "expired"
	DeniedQuotaExhausted DenialReason = "quota_exhausted"
)

var allFeatures = map[Feature]bool{
	FeatureProject:        true,
	FeatureThreeDView:     true,
	FeatureManualEstimate: true,
}

func ParseFeature(raw string) (Feature, error) {
	f := Feature(raw)
	if !allFeatures[f] {
		return "", fmt.Errorf("unknown feature: %s", raw)
	}
	return f, nil
}

func Features() []Feature {
	return []Feature{FeatureProject, FeatureThreeDView, FeatureManualEstimate}
}
