package model

import "testing"

func TestPlanValidateKindDuration(t *testing.T) {
	base := Plan{Name: "Test", Price: 10, ProjectLimit: 1}

	timeBased := base
	timeBased.Kind = PlanTimeBased
	timeBased.DurationDays = 30
	if err := timeBased.Validate(); err != nil {
		t.Fatalf("valid time_based plan rejected: %v", err)
	}

	noDuration := base
	noDuration.Kind = PlanTimeBased
	noDuration.DurationDays = 0
	if err := noDuration.Validate(); err == nil {
		t.Fatalf("time_based plan without duration must be rejected")
	}

	payPerUse := base
	payPerUse.Kind = PlanPayPerUse
	payPerUse.DurationDays = 0
	if err := payPerUse.Validate(); err != nil {
		t.Fatalf("valid pay_per_use plan rejected: %v", err)
	}

	payPerUseWithDuration := base
	payPerUseWithDuration.Kind = PlanPayPerUse
	payPerUseWithDuration.DurationDays = 30
	if err := payPerUseWithDuration.Validate(); err == nil {
		t.Fatalf("pay_per_use plan with duration must be rejected")
	}

	trial := base
	trial.Kind = PlanFreeTrial
	trial.DurationDays = 7
	if err := trial.Validate(); err != nil {
		t.Fatalf("valid free_trial plan rejected: %v", err)
	}

	badKind := base
	badKind.Kind = "lifetime"
	if err := badKind.Validate(); err == nil {
		t.Fatalf("unknown plan kind must be rejected")
	}

	negative := base
	negative.Kind = PlanPayPerUse
	negative.Price = -1
	if err := negative.Validate(); err == nil {
		t.Fatalf("negative price must be rejected")
	}
}
