package billing

import (
	"fmt"

	"github.com/shipnowhq/shipnow/app/models"
	"github.com/shipnowhq/shipnow/internal/pkg/env"
)

// Price describes one sellable price point. Plan attributes are always taken
// from this table, never inferred from amounts carried in webhook payloads.
type Price struct {
	ID           string `json:"id"`
	PlanType     string `json:"plan_type"`
	PlanInterval string `json:"plan_interval"`
	ProductType  string `json:"product_type"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// PriceTable is an immutable mapping from provider price ids to plan
// attributes, built once at startup.
type PriceTable struct {
	byID  map[string]Price
	order []string
}

// NewPriceTable builds a table from the given prices. Later duplicates of the
// same id win, which lets tests override single entries.
func NewPriceTable(prices ...Price) *PriceTable {
	t := &PriceTable{byID: make(map[string]Price, len(prices))}
	for _, p := range prices {
		if _, seen := t.byID[p.ID]; !seen {
			t.order = append(t.order, p.ID)
		}
		t.byID[p.ID] = p
	}
	return t
}

// NewPriceTableFromEnv reads the configured price ids. Each plan has a
// STRIPE_PRICE_* key so test and live mode only differ in the .env file.
func NewPriceTableFromEnv() *PriceTable {
	return NewPriceTable(
		Price{
			ID:           env.GetEnv("STRIPE_PRICE_STANDARD_MONTHLY", "price_standard_monthly"),
			PlanType:     models.PlanTypeStandard,
			PlanInterval: models.PlanIntervalMonthly,
			ProductType:  models.ProductTypeSubscription,
			Amount:       490,
			Currency:     "USD",
		},
		Price{
			ID:           env.GetEnv("STRIPE_PRICE_STANDARD_ANNUALLY", "price_standard_annually"),
			PlanType:     models.PlanTypeStandard,
			PlanInterval: models.PlanIntervalAnnually,
			ProductType:  models.ProductTypeSubscription,
			Amount:       4900,
			Currency:     "USD",
		},
		Price{
			ID:           env.GetEnv("STRIPE_PRICE_PRO_MONTHLY", "price_pro_monthly"),
			PlanType:     models.PlanTypePro,
			PlanInterval: models.PlanIntervalMonthly,
			ProductType:  models.ProductTypeSubscription,
			Amount:       990,
			Currency:     "USD",
		},
		Price{
			ID:           env.GetEnv("STRIPE_PRICE_PRO_ANNUALLY", "price_pro_annually"),
			PlanType:     models.PlanTypePro,
			PlanInterval: models.PlanIntervalAnnually,
			ProductType:  models.ProductTypeSubscription,
			Amount:       9900,
			Currency:     "USD",
		},
		Price{
			ID:           env.GetEnv("STRIPE_PRICE_PRO_LIFETIME", "price_pro_lifetime"),
			PlanType:     models.PlanTypePro,
			PlanInterval: models.PlanIntervalAnnually,
			ProductType:  models.ProductTypeOneTime,
			Amount:       19900,
			Currency:     "USD",
		},
	)
}

// Lookup resolves a price id to its plan attributes.
func (t *PriceTable) Lookup(priceID string) (Price, error) {
	p, ok := t.byID[priceID]
	if !ok {
		return Price{}, fmt.Errorf("lookup price %q: %w", priceID, ErrUnknownPrice)
	}
	return p, nil
}

// List returns all prices in registration order, for the pricing page.
func (t *PriceTable) List() []Price {
	out := make([]Price, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}
