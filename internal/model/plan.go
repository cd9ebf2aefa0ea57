package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// PlanKind drives how activation mutates the subscription ledger.
type PlanKind string

const (
	PlanTimeBased PlanKind = "time_based"
	PlanPayPerUse PlanKind = "pay_per_use"
	PlanAddOn     PlanKind = "add_on"
	PlanFreeTrial PlanKind = "free_trial"
)

type Plan struct {
	gorm.Model
	Name        string  `json:"name" gorm:"uniqueIndex;not null" validate:"required"`
	Slug        string  `json:"slug" gorm:"uniqueIndex"`
	Description string  `json:"description"`
	Price       float64 `json:"price" gorm:"type:decimal(10,2);not null" validate:"gte=0"`
	// DurationDays is 0 for non-time-based plans.
	DurationDays int `json:"duration_days" gorm:"not null;default:0" validate:"gte=0"`

	ProjectLimit        int `json:"project_limit" gorm:"not null;default:0" validate:"gte=0"`
	ThreeDViewLimit     int `json:"three_d_view_limit" gorm:"not null;default:0" validate:"gte=0"`
	ManualEstimateLimit int `json:"manual_estimate_limit" gorm:"not null;default:0" validate:"gte=0"`

	Kind   PlanKind `json:"kind" gorm:"not null" validate:"required,oneof=time_based pay_per_use add_on free_trial"`
	Active bool     `json:"active" gorm:"default:true"`
}

func (p *Plan) IsTimeBased() bool {
	return p.Kind == PlanTimeBased || p.Kind == PlanFreeTrial
}

func (p *Plan) Validate() error {
	v := validator.New()
	if err := v.Struct(p); err != nil {
		return err
	}

	if p.IsTimeBased() && p.DurationDays <= 0 {
		return fmt.Errorf("plan %s: %s plans need a positive duration", p.Name, p.Kind)
	}
	if !p.IsTimeBased() && p.DurationDays != 0 {
		return fmt.Errorf("plan %s: %s plans must not carry a duration", p.Name, p.Kind)
	}
	return nil
}

// FindPlanByName does a case-insensitive catalog lookup.
func FindPlanByName(db *gorm.DB, name string) (*Plan, error) {
	var plan Plan
	if err := db.Where("LOWER(name) = LOWER(?)", name).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindPlanByPrice matches an active plan by its exact price.
func FindPlanByPrice(db *gorm.DB, price float64) (*Plan, error) {
	var plan Plan
	if err := db.Where("price = ? AND active = ?", price, true).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func ListActivePlans(db *gorm.DB) ([]Plan, error) {
	var plans []Plan
	if err := db.Where("active = ?", true).Order("price asc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
