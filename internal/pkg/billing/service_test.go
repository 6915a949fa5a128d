package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/shipnowhq/shipnow/app/models"
)

func checkoutCompletedEvent(t *testing.T, eventID, orderID, sessionID string, created time.Time) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":                  sessionID,
		"client_reference_id": orderID,
		"customer":            "cus_123",
		"amount_total":        990,
		"currency":            "usd",
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return stripe.Event{
		ID:      eventID,
		Type:    EventCheckoutCompleted,
		Created: created.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func proMonthlyPayload(subID string, status string, userID uint, orderID string, periodEnd time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":       subID,
		"status":   status,
		"customer": "cus_123",
		"metadata": map[string]string{
			MetaUserID:  fmt.Sprintf("%d", userID),
			MetaOrderID: orderID,
		},
		"current_period_start": periodEnd.AddDate(0, -1, 0).Unix(),
		"current_period_end":   periodEnd.Unix(),
		"items": map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"id": "price_pro_m"}},
			},
		},
	}
}

func TestHandleCheckoutCompletedIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	order := &models.Order{
		UserID:      user.ID,
		Amount:      990,
		Currency:    "USD",
		Status:      models.OrderStatusPending,
		ProductType: models.ProductTypeSubscription,
		PlanType:    models.PlanTypePro,
		Platform:    models.PaymentPlatformStripe,
		PriceID:     "price_pro_m",
	}
	if err := env.repo.CreateOrder(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	event := checkoutCompletedEvent(t, "evt_1", order.ID, "cs_1", now)

	if err := env.svc.HandleEvent(event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	got, err := env.repo.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.Status != models.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if got.SessionID != "cs_1" || got.PlatformCustomerID != "cus_123" {
		t.Fatalf("session/customer not recorded: %+v", got)
	}
	firstCompletedAt := got.CompletedAt

	if err := env.svc.HandleEvent(event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	got, err = env.repo.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if !got.CompletedAt.Equal(*firstCompletedAt) {
		t.Fatalf("redelivery mutated completed_at: %v != %v", got.CompletedAt, firstCompletedAt)
	}

	var count int64
	if err := env.db.Model(&models.PaymentEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event row, got %d", count)
	}
	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_1")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", record.Status)
	}
	if record.OrderID != order.ID || record.UserID != user.ID {
		t.Fatalf("event refs not recorded: %+v", record)
	}
}

func TestHandleCheckoutCompletedUnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	event := checkoutCompletedEvent(t, "evt_orphan", "no-such-order", "cs_9", time.Now().UTC())
	if err := env.svc.HandleEvent(event); err != nil {
		t.Fatalf("missing reference must be swallowed, got %v", err)
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_orphan")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusFailed {
		t.Fatalf("expected FAILED, got %s", record.Status)
	}
	if record.Error == "" {
		t.Fatal("expected error recorded on event row")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC().Truncate(time.Second)
	periodEnd := base.AddDate(0, 1, 0)

	created := subscriptionEvent(t, "evt_sub_1", EventSubscriptionCreated, base,
		proMonthlyPayload("sub_1", "active", user.ID, "order-1", periodEnd), nil)
	if err := env.svc.HandleEvent(created); err != nil {
		t.Fatalf("subscription created: %v", err)
	}

	sub, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_1")
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.PlanType != models.PlanTypePro || sub.PlanInterval != models.PlanIntervalMonthly {
		t.Fatalf("plan not mapped from price table: %+v", sub)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", sub.Status)
	}
	if sub.ActivatedAt == nil {
		t.Fatal("activated_at not set on first live status")
	}
	if sub.UserID != user.ID || sub.OrderID != "order-1" {
		t.Fatalf("owner refs wrong: %+v", sub)
	}
	firstActivatedAt := *sub.ActivatedAt

	updated := subscriptionEvent(t, "evt_sub_2", EventSubscriptionUpdated, base.Add(time.Hour),
		proMonthlyPayload("sub_1", "past_due", user.ID, "order-1", periodEnd),
		map[string]interface{}{"status": "active"})
	if err := env.svc.HandleEvent(updated); err != nil {
		t.Fatalf("subscription updated: %v", err)
	}

	sub, err = env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_1")
	if err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if sub.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("expected PAST_DUE, got %s", sub.Status)
	}
	if sub.ActivatedAt == nil || !sub.ActivatedAt.Equal(firstActivatedAt) {
		t.Fatalf("activated_at must not change on update: %v != %v", sub.ActivatedAt, firstActivatedAt)
	}
	if len(env.hooks.statusChanges) != 1 {
		t.Fatalf("expected 1 status change hook, got %d", len(env.hooks.statusChanges))
	}
	if change := env.hooks.statusChanges[0]; change.From != "active" || change.To != "past_due" {
		t.Fatalf("unexpected change: %+v", change)
	}

	var count int64
	if err := env.db.Model(&models.Subscription{}).Count(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if count != 1 {
		t.Fatalf("upserts must keep a single row, got %d", count)
	}
}

func TestSubscriptionStaleUpdateDiscarded(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC().Truncate(time.Second)
	periodEnd := base.AddDate(0, 1, 0)

	fresh := subscriptionEvent(t, "evt_fresh", EventSubscriptionCreated, base,
		proMonthlyPayload("sub_1", "active", user.ID, "", periodEnd), nil)
	if err := env.svc.HandleEvent(fresh); err != nil {
		t.Fatalf("fresh event: %v", err)
	}

	stale := subscriptionEvent(t, "evt_stale", EventSubscriptionUpdated, base.Add(-time.Hour),
		proMonthlyPayload("sub_1", "canceled", user.ID, "", periodEnd),
		map[string]interface{}{"status": "active"})
	if err := env.svc.HandleEvent(stale); err != nil {
		t.Fatalf("stale event: %v", err)
	}

	sub, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_1")
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("stale event must not win, got %s", sub.Status)
	}
	if len(env.hooks.statusChanges) != 0 {
		t.Fatalf("stale event must not fire hooks, got %d", len(env.hooks.statusChanges))
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_stale")
	if err != nil {
		t.Fatalf("load stale event row: %v", err)
	}
	if record.Status != models.EventStatusSuccess {
		t.Fatalf("discarded stale event is still acknowledged, got %s", record.Status)
	}
}

func TestSubscriptionSameSecondUpdateApplied(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	// Provider timestamps have second resolution, so the created event and
	// its first update regularly share the same instant. A tie is in order
	// and must still apply.
	base := time.Now().UTC().Truncate(time.Second)
	periodEnd := base.AddDate(0, 1, 0)

	created := subscriptionEvent(t, "evt_tie_1", EventSubscriptionCreated, base,
		proMonthlyPayload("sub_tie", "active", user.ID, "", periodEnd), nil)
	if err := env.svc.HandleEvent(created); err != nil {
		t.Fatalf("created: %v", err)
	}

	updated := subscriptionEvent(t, "evt_tie_2", EventSubscriptionUpdated, base,
		proMonthlyPayload("sub_tie", "past_due", user.ID, "", periodEnd),
		map[string]interface{}{"status": "active"})
	if err := env.svc.HandleEvent(updated); err != nil {
		t.Fatalf("same-second update: %v", err)
	}

	sub, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_tie")
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("same-second update must apply, got %s", sub.Status)
	}
	if len(env.hooks.statusChanges) != 1 {
		t.Fatalf("expected 1 status change hook, got %d", len(env.hooks.statusChanges))
	}
}

func TestSubscriptionUpdateBeforeCreateIgnored(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC().Truncate(time.Second)
	periodEnd := base.AddDate(0, 1, 0)

	// An update for a subscription that was never created locally has no row
	// to apply to. It is acknowledged and dropped, not materialized.
	orphan := subscriptionEvent(t, "evt_orphan_upd", EventSubscriptionUpdated, base,
		proMonthlyPayload("sub_o", "active", user.ID, "", periodEnd), nil)
	if err := env.svc.HandleEvent(orphan); err != nil {
		t.Fatalf("orphan update: %v", err)
	}

	if _, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_o"); err == nil {
		t.Fatal("orphan update must not create a subscription row")
	}
	if len(env.hooks.statusChanges) != 0 {
		t.Fatalf("orphan update must not fire hooks, got %d", len(env.hooks.statusChanges))
	}
	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_orphan_upd")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusSuccess {
		t.Fatalf("orphan update is still acknowledged, got %s", record.Status)
	}

	// The created event can arrive late and still persists normally.
	created := subscriptionEvent(t, "evt_orphan_crt", EventSubscriptionCreated, base.Add(time.Second),
		proMonthlyPayload("sub_o", "active", user.ID, "", periodEnd), nil)
	if err := env.svc.HandleEvent(created); err != nil {
		t.Fatalf("late created: %v", err)
	}
	sub, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_o")
	if err != nil {
		t.Fatalf("load subscription after created: %v", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", sub.Status)
	}
}

func TestUpsertEventPendingClearsFailureState(t *testing.T) {
	env := newTestEnv(t)

	event := &models.PaymentEvent{
		Platform: models.PaymentPlatformStripe,
		EventID:  "evt_retry",
		Type:     EventSubscriptionCreated,
		Payload:  `{"attempt":1}`,
	}
	if err := env.repo.UpsertEventPending(event); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	err := env.repo.MarkEventProcessed(models.PaymentPlatformStripe, "evt_retry",
		models.EventStatusFailed, "price not configured", EventRefs{})
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	retry := &models.PaymentEvent{
		Platform: models.PaymentPlatformStripe,
		EventID:  "evt_retry",
		Type:     EventSubscriptionCreated,
		Payload:  `{"attempt":2}`,
	}
	if err := env.repo.UpsertEventPending(retry); err != nil {
		t.Fatalf("retry upsert: %v", err)
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_retry")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusPending {
		t.Fatalf("expected PENDING on retry, got %s", record.Status)
	}
	if record.Error != "" {
		t.Fatalf("error not cleared on retry: %q", record.Error)
	}
	if record.ProcessedAt != nil {
		t.Fatalf("processed_at not cleared on retry: %v", record.ProcessedAt)
	}
	if record.Payload != `{"attempt":2}` {
		t.Fatalf("payload not refreshed on retry: %s", record.Payload)
	}
}

func TestSubscriptionActivatedAtSetOnceAcrossTrial(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC().Truncate(time.Second)
	payload := proMonthlyPayload("sub_t", "trialing", user.ID, "", base.AddDate(0, 1, 0))
	payload["trial_start"] = base.Unix()
	payload["trial_end"] = base.AddDate(0, 0, 14).Unix()

	created := subscriptionEvent(t, "evt_t1", EventSubscriptionCreated, base, payload, nil)
	if err := env.svc.HandleEvent(created); err != nil {
		t.Fatalf("trial created: %v", err)
	}

	sub, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_t")
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.ActivatedAt == nil {
		t.Fatal("trialing counts as live, activated_at must be set")
	}
	activatedAt := *sub.ActivatedAt

	live := subscriptionEvent(t, "evt_t2", EventSubscriptionUpdated, base.AddDate(0, 0, 14),
		proMonthlyPayload("sub_t", "active", user.ID, "", base.AddDate(0, 1, 14)),
		map[string]interface{}{"status": "trialing"})
	if err := env.svc.HandleEvent(live); err != nil {
		t.Fatalf("trial conversion: %v", err)
	}

	sub, err = env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_t")
	if err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if !sub.ActivatedAt.Equal(activatedAt) {
		t.Fatalf("activated_at changed on trial conversion: %v != %v", sub.ActivatedAt, activatedAt)
	}
}

func TestSubscriptionDeleted(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC().Truncate(time.Second)
	created := subscriptionEvent(t, "evt_d1", EventSubscriptionCreated, base,
		proMonthlyPayload("sub_d", "active", user.ID, "", base.AddDate(0, 1, 0)), nil)
	if err := env.svc.HandleEvent(created); err != nil {
		t.Fatalf("created: %v", err)
	}

	deleted := subscriptionEvent(t, "evt_d2", EventSubscriptionDeleted, base.Add(time.Hour),
		map[string]interface{}{
			"id":          "sub_d",
			"status":      "canceled",
			"canceled_at": base.Add(time.Hour).Unix(),
			"cancellation_details": map[string]interface{}{
				"reason": "cancellation_requested",
			},
		}, nil)
	if err := env.svc.HandleEvent(deleted); err != nil {
		t.Fatalf("deleted: %v", err)
	}

	sub, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_d")
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("expected CANCELED, got %s", sub.Status)
	}
	if sub.CanceledAt == nil {
		t.Fatal("canceled_at not set")
	}
	if sub.CancelReason != "cancellation_requested" {
		t.Fatalf("cancel reason not recorded: %q", sub.CancelReason)
	}
	if len(env.hooks.statusChanges) != 1 {
		t.Fatalf("expected status change hook on delete, got %d", len(env.hooks.statusChanges))
	}
}

func TestSubscriptionUnknownPriceFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC()
	payload := proMonthlyPayload("sub_u", "active", user.ID, "", base.AddDate(0, 1, 0))
	payload["items"] = map[string]interface{}{
		"data": []map[string]interface{}{
			{"price": map[string]interface{}{"id": "price_unconfigured"}},
		},
	}

	event := subscriptionEvent(t, "evt_u1", EventSubscriptionCreated, base, payload, nil)
	err := env.svc.HandleEvent(event)
	if !errors.Is(err, ErrUnknownPrice) {
		t.Fatalf("expected ErrUnknownPrice, got %v", err)
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_u1")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusFailed {
		t.Fatalf("expected FAILED, got %s", record.Status)
	}
}

func TestChargeRefundedTracesOrder(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	now := time.Now().UTC().Truncate(time.Second)
	order := &models.Order{
		UserID:      user.ID,
		Amount:      19900,
		Currency:    "USD",
		Status:      models.OrderStatusPending,
		ProductType: models.ProductTypeOneTime,
		PlanType:    models.PlanTypePro,
		Platform:    models.PaymentPlatformStripe,
		PriceID:     "price_life",
	}
	if err := env.repo.CreateOrder(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := env.repo.MarkOrderCompleted(order.ID, "cs_ref", "cus_123", 19900, "USD", now); err != nil {
		t.Fatalf("complete order: %v", err)
	}
	env.provider.sessionsByIntent["pi_1"] = []*stripe.CheckoutSession{{ID: "cs_ref"}}

	raw, _ := json.Marshal(map[string]interface{}{"id": "ch_1", "payment_intent": "pi_1"})
	event := stripe.Event{
		ID:      "evt_r1",
		Type:    EventChargeRefunded,
		Created: now.Add(time.Hour).Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
	if err := env.svc.HandleEvent(event); err != nil {
		t.Fatalf("refund event: %v", err)
	}

	got, err := env.repo.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.Status != models.OrderStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", got.Status)
	}
	if got.RefundedAt == nil {
		t.Fatal("refunded_at not set")
	}
}

func TestChargeRefundedWithoutSessionIsSwallowed(t *testing.T) {
	env := newTestEnv(t)

	raw, _ := json.Marshal(map[string]interface{}{"id": "ch_2", "payment_intent": "pi_unknown"})
	event := stripe.Event{
		ID:      "evt_r2",
		Type:    EventChargeRefunded,
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
	if err := env.svc.HandleEvent(event); err != nil {
		t.Fatalf("untraceable refund must be acknowledged, got %v", err)
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_r2")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusFailed {
		t.Fatalf("expected FAILED for manual reconciliation, got %s", record.Status)
	}
}

func TestUnhandledEventTypeIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	event := stripe.Event{
		ID:      "evt_x1",
		Type:    "invoice.paid",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := env.svc.HandleEvent(event); err != nil {
		t.Fatalf("unhandled type: %v", err)
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_x1")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", record.Status)
	}
}

func TestFailedEventIsRetriable(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t)

	base := time.Now().UTC().Truncate(time.Second)
	payload := proMonthlyPayload("sub_f", "active", user.ID, "", base.AddDate(0, 1, 0))
	payload["items"] = map[string]interface{}{
		"data": []map[string]interface{}{
			{"price": map[string]interface{}{"id": "price_unconfigured"}},
		},
	}
	event := subscriptionEvent(t, "evt_f1", EventSubscriptionCreated, base, payload, nil)
	if err := env.svc.HandleEvent(event); err == nil {
		t.Fatal("expected failure on unknown price")
	}

	// Price gets registered, provider redelivers the same event id.
	retry := subscriptionEvent(t, "evt_f1", EventSubscriptionCreated, base,
		proMonthlyPayload("sub_f", "active", user.ID, "", base.AddDate(0, 1, 0)), nil)
	if err := env.svc.HandleEvent(retry); err != nil {
		t.Fatalf("retry: %v", err)
	}

	record, err := env.repo.GetEvent(models.PaymentPlatformStripe, "evt_f1")
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if record.Status != models.EventStatusSuccess {
		t.Fatalf("expected SUCCESS after retry, got %s", record.Status)
	}
	if _, err := env.repo.GetSubscription(models.PaymentPlatformStripe, "sub_f"); err != nil {
		t.Fatalf("subscription missing after retry: %v", err)
	}
}
