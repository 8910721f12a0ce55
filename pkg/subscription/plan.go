package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BillingInterval is how often a plan renews.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Plan is a purchasable premium plan.
type Plan struct {
	ID        string          `yaml:"id"`       // the id clients send
	PriceID   string          `yaml:"price_id"` // the provider's price id
	Name      string          `yaml:"name"`
	Interval  BillingInterval `yaml:"interval"`
	TrialDays int             `yaml:"trial_days"`
}

// PlansListSource loads the plan catalog.
type PlansListSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// StaticPlans serves a fixed catalog.
type StaticPlans []Plan

func (s StaticPlans) Load(context.Context) (map[string]Plan, error) {
	out := make(map[string]Plan, len(s))
	for _, p := range s {
		out[p.ID] = p
	}
	return out, nil
}

// YAMLPlans reads the catalog from a file:
//
//	plans:
//	  - id: premium_monthly
//	    price_id: price_123
//	    name: Premium
//	    interval: monthly
//	    trial_days: 7
type YAMLPlans struct {
	Path string
}

func (y YAMLPlans) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return StaticPlans(doc.Plans).Load(ctx)
}

// PlansConfig selects the catalog source from the environment.
type PlansConfig struct {
	File string `env:"PLANS_FILE"`
	// Single-plan shorthand used when no file is configured.
	DefaultPlanID    string `env:"PLAN_ID" envDefault:"premium"`
	DefaultPriceID   string `env:"PLAN_PRICE_ID"`
	DefaultTrialDays int    `env:"PLAN_TRIAL_DAYS" envDefault:"0"`
}

func (c PlansConfig) Source() PlansListSource {
	if c.File != "" {
		return YAMLPlans{Path: c.File}
	}
	return StaticPlans{{
		ID:        c.DefaultPlanID,
		PriceID:   c.DefaultPriceID,
		Name:      "Premium",
		Interval:  BillingIntervalMonthly,
		TrialDays: c.DefaultTrialDays,
	}}
}

func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return fmt.Errorf("%w: catalog is empty", ErrInvalidPlanConfiguration)
	}
	var errs []error
	for id, p := range plans {
		if id == "" || p.ID != id {
			errs = append(errs, fmt.Errorf("plan %q: id mismatch", id))
		}
		if p.PriceID == "" {
			errs = append(errs, fmt.Errorf("plan %q: price_id is required", id))
		}
		if p.TrialDays < 0 {
			errs = append(errs, fmt.Errorf("plan %q: trial_days must not be negative", id))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidPlanConfiguration}, errs...)...)
	}
	return nil
}
