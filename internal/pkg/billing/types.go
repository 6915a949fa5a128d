package billing

// Webhook event types consumed from the billing provider. Anything else is
// accepted and ignored as a forward-compatible no-op.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventChargeRefunded      = "charge.refunded"
)

// Metadata keys attached to checkout sessions and propagated to the
// subscription object by the provider.
const (
	MetaUserID  = "userId"
	MetaOrderID = "orderId"
	MetaPriceID = "priceId"
	MetaMode    = "mode"
)

// CheckoutParams is the normalized input for creating a checkout session.
type CheckoutParams struct {
	PriceID    string `json:"price_id" validate:"required"`
	UserID     uint   `json:"-" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// CheckoutResult carries the provider session handle back to the caller.
type CheckoutResult struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// PortalParams is the normalized input for creating a customer portal session.
type PortalParams struct {
	UserID    uint   `json:"-" validate:"required"`
	ReturnURL string `json:"return_url" validate:"required,url"`
}
