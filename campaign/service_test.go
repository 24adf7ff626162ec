package campaign

import (
	"context"
	"testing"
	"time"
)

// Validation runs before any transaction is opened, so these paths are safe to
// exercise without a database.
func TestOpen_Validation(t *testing.T) {
	svc := NewService(nil, nil)
	ctx := context.Background()

	base := OpenParams{
		BusinessID:         "biz-1",
		Currency:           "usdc",
		Budget:             1000,
		MaxSlots:           2,
		ApplicationPeriod:  time.Hour,
		SelectionGrace:     time.Hour,
		PromotionDuration:  time.Hour,
		ProofGrace:         time.Hour,
		VerificationPeriod: time.Hour,
	}

	cases := []struct {
		name   string
		mutate func(*OpenParams)
	}{
		{"missing business", func(p *OpenParams) { p.BusinessID = "" }},
		{"zero budget", func(p *OpenParams) { p.Budget = 0 }},
		{"negative budget", func(p *OpenParams) { p.Budget = -5 }},
		{"zero slots", func(p *OpenParams) { p.MaxSlots = 0 }},
		{"zero application period", func(p *OpenParams) { p.ApplicationPeriod = 0 }},
		{"zero promotion duration", func(p *OpenParams) { p.PromotionDuration = 0 }},
		{"zero verification period", func(p *OpenParams) { p.VerificationPeriod = 0 }},
		{"negative selection grace", func(p *OpenParams) { p.SelectionGrace = -time.Minute }},
		{"negative proof grace", func(p *OpenParams) { p.ProofGrace = -time.Minute }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			tc.mutate(&params)
			if _, err := svc.Open(ctx, params); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApply_MissingInfluencer(t *testing.T) {
	svc := NewService(nil, nil)
	if _, err := svc.Apply(context.Background(), "camp-1", "", "hi"); err == nil {
		t.Fatal("expected validation error for empty influencer id")
	}
}

func TestCancelWithCompensation_RequiresPositiveAmount(t *testing.T) {
	svc := NewService(nil, nil)
	if _, err := svc.CancelWithCompensation(context.Background(), "biz-1", "camp-1", 0); err == nil {
		t.Fatal("expected validation error for zero compensation")
	}
	if _, err := svc.CancelWithCompensation(context.Background(), "biz-1", "camp-1", -10); err == nil {
		t.Fatal("expected validation error for negative compensation")
	}
}
