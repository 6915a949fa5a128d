package billing

import "fmt"

// Change types derived from a subscription-updated event.
const (
	ChangeStatus = "status_change"
	ChangePlan   = "plan_change"
	ChangeCancel = "cancel_change"
)

// SubscriptionChange describes one attribute transition observed between the
// previous event snapshot and the current payload.
type SubscriptionChange struct {
	Type string
	From string
	To   string
}

// analyzeSubscriptionChanges compares the previous_attributes snapshot the
// provider ships with update events against the freshly parsed payload. Only
// attributes present in the snapshot actually changed.
func analyzeSubscriptionChanges(prev map[string]interface{}, status, priceID string, cancelAtPeriodEnd bool) []SubscriptionChange {
	if len(prev) == 0 {
		return nil
	}

	var changes []SubscriptionChange

	if v, ok := prev["status"]; ok {
		from := fmt.Sprintf("%v", v)
		if from != status {
			changes = append(changes, SubscriptionChange{Type: ChangeStatus, From: from, To: status})
		}
	}

	if from := previousPriceID(prev); from != "" && from != priceID {
		changes = append(changes, SubscriptionChange{Type: ChangePlan, From: from, To: priceID})
	}

	if v, ok := prev["cancel_at_period_end"]; ok {
		from, _ := v.(bool)
		if from != cancelAtPeriodEnd {
			changes = append(changes, SubscriptionChange{
				Type: ChangeCancel,
				From: fmt.Sprintf("%t", from),
				To:   fmt.Sprintf("%t", cancelAtPeriodEnd),
			})
		}
	}

	return changes
}

// previousPriceID digs the old price id out of the snapshot. Plan switches
// show up either under the legacy "plan" object or under "items.data".
func previousPriceID(prev map[string]interface{}) string {
	if plan, ok := prev["plan"].(map[string]interface{}); ok {
		if id, ok := plan["id"].(string); ok {
			return id
		}
	}
	items, ok := prev["items"].(map[string]interface{})
	if !ok {
		return ""
	}
	data, ok := items["data"].([]interface{})
	if !ok || len(data) == 0 {
		return ""
	}
	item, ok := data[0].(map[string]interface{})
	if !ok {
		return ""
	}
	if price, ok := item["price"].(map[string]interface{}); ok {
		if id, ok := price["id"].(string); ok {
			return id
		}
	}
	return ""
}
