package seed

import (
	"log"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"tilemate_backend/internal/model"
)

func SeedSubscriptionPlans(db *gorm.DB) {
	plans := []model.Plan{
		{
			Name:                "Starter Trial",
			Description:         "One week to try everything",
			Price:               0,
			DurationDays:        7,
			ProjectLimit:        2,
			ThreeDViewLimit:     1,
			ManualEstimateLimit: 2,
			Kind:                model.PlanFreeTrial,
		},
		{
			Name:                "Basic",
			Description:         "For occasional tilers",
			Price:               50.00,
			DurationDays:        30,
			ProjectLimit:        10,
			ThreeDViewLimit:     5,
			ManualEstimateLimit: 3,
			Kind:                model.PlanTimeBased,
		},
		{
			Name:                "Pro",
			Description:         "For full-time contractors",
			Price:               150.00,
			DurationDays:        90,
			ProjectLimit:        50,
			ThreeDViewLimit:     30,
			ManualEstimateLimit: 20,
			Kind:                model.PlanTimeBased,
		},
		{
			Name:                "Pay-Per-Use",
			Description:         "One-off bundle, no expiry",
			Price:               10.00,
			DurationDays:        0,
			ProjectLimit:        1,
			ThreeDViewLimit:     1,
			ManualEstimateLimit: 1,
			Kind:                model.PlanPayPerUse,
		},
		{
			Name:                "3D Booster",
			Description:         "Extra room views and estimates",
			Price:               25.00,
			DurationDays:        0,
			ProjectLimit:        0,
			ThreeDViewLimit:     10,
			ManualEstimateLimit: 10,
			Kind:                model.PlanAddOn,
		},
	}

	for _, plan := range plans {
		plan.Slug = slug.Make(plan.Name)
		plan.Active = true

		if err := plan.Validate(); err != nil {
			log.Printf("Skipping invalid plan %s: %v", plan.Name, err)
			continue
		}

		result := db.FirstOrCreate(&plan, model.Plan{Name: plan.Name})
		if result.Error != nil {
			log.Printf("Error creating plan %s: %v", plan.Name, result.Error)
		}
	}

	log.Println("Subscription plans seeded successfully!")
}
