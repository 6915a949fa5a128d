package billing

import "testing"

func TestAnalyzeStatusChange(t *testing.T) {
	prev := map[string]interface{}{"status": "active"}

	changes := analyzeSubscriptionChanges(prev, "past_due", "price_pro_m", false)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Type != ChangeStatus || changes[0].From != "active" || changes[0].To != "past_due" {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestAnalyzePlanChangeFromItems(t *testing.T) {
	prev := map[string]interface{}{
		"items": map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{
					"price": map[string]interface{}{"id": "price_std_m"},
				},
			},
		},
	}

	changes := analyzeSubscriptionChanges(prev, "active", "price_pro_m", false)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Type != ChangePlan || changes[0].From != "price_std_m" || changes[0].To != "price_pro_m" {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestAnalyzePlanChangeFromLegacyPlan(t *testing.T) {
	prev := map[string]interface{}{
		"plan": map[string]interface{}{"id": "price_std_m"},
	}

	changes := analyzeSubscriptionChanges(prev, "active", "price_pro_m", false)
	if len(changes) != 1 || changes[0].Type != ChangePlan {
		t.Fatalf("expected plan change, got %+v", changes)
	}
}

func TestAnalyzeCancelToggle(t *testing.T) {
	prev := map[string]interface{}{"cancel_at_period_end": false}

	changes := analyzeSubscriptionChanges(prev, "active", "price_pro_m", true)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Type != ChangeCancel || changes[0].To != "true" {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestAnalyzeNoSnapshotNoChanges(t *testing.T) {
	if changes := analyzeSubscriptionChanges(nil, "active", "price_pro_m", false); changes != nil {
		t.Fatalf("expected no changes, got %+v", changes)
	}

	// Snapshot fields that did not actually change produce nothing.
	prev := map[string]interface{}{"status": "active", "cancel_at_period_end": false}
	if changes := analyzeSubscriptionChanges(prev, "active", "price_pro_m", false); len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
}
