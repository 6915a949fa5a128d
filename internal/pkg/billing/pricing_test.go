package billing

import (
	"errors"
	"testing"

	"github.com/shipnowhq/shipnow/app/models"
)

func TestPriceTableLookup(t *testing.T) {
	prices := testPrices()

	p, err := prices.Lookup("price_pro_m")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.PlanType != models.PlanTypePro || p.PlanInterval != models.PlanIntervalMonthly {
		t.Fatalf("wrong mapping: %+v", p)
	}

	_, err = prices.Lookup("price_nobody_configured")
	if !errors.Is(err, ErrUnknownPrice) {
		t.Fatalf("expected ErrUnknownPrice, got %v", err)
	}
}

func TestPriceTableListKeepsOrder(t *testing.T) {
	prices := testPrices()

	list := prices.List()
	if len(list) != 4 {
		t.Fatalf("expected 4 prices, got %d", len(list))
	}
	if list[0].ID != "price_std_m" || list[3].ID != "price_life" {
		t.Fatalf("registration order not kept: %v", list)
	}
}

func TestPriceTableFromEnvDefaults(t *testing.T) {
	prices := NewPriceTableFromEnv()

	p, err := prices.Lookup("price_standard_monthly")
	if err != nil {
		t.Fatalf("lookup default id: %v", err)
	}
	if p.PlanType != models.PlanTypeStandard {
		t.Fatalf("wrong plan: %+v", p)
	}
}
