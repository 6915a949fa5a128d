package billing

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shipnowhq/shipnow/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.PaymentEvent{},
		&models.Order{},
		&models.Subscription{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testPrices() *PriceTable {
	return NewPriceTable(
		Price{ID: "price_std_m", PlanType: models.PlanTypeStandard, PlanInterval: models.PlanIntervalMonthly, ProductType: models.ProductTypeSubscription, Amount: 490, Currency: "USD"},
		Price{ID: "price_pro_m", PlanType: models.PlanTypePro, PlanInterval: models.PlanIntervalMonthly, ProductType: models.ProductTypeSubscription, Amount: 990, Currency: "USD"},
		Price{ID: "price_pro_y", PlanType: models.PlanTypePro, PlanInterval: models.PlanIntervalAnnually, ProductType: models.ProductTypeSubscription, Amount: 9900, Currency: "USD"},
		Price{ID: "price_life", PlanType: models.PlanTypePro, PlanInterval: models.PlanIntervalAnnually, ProductType: models.ProductTypeOneTime, Amount: 19900, Currency: "USD"},
	)
}

// fakeProvider is an in-memory ProviderClient. Remote calls are recorded so
// tests can assert on what was sent.
type fakeProvider struct {
	sessionsByIntent map[string][]*stripe.CheckoutSession
	searchResult     *stripe.Customer
	createdCustomers []string
	createdSessions  []SessionParams
	sessionSeq       int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessionsByIntent: map[string][]*stripe.CheckoutSession{}}
}

func (f *fakeProvider) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, ErrSignatureInvalid
	}
	return event, nil
}

func (f *fakeProvider) CreateCheckoutSession(params SessionParams) (*stripe.CheckoutSession, error) {
	f.createdSessions = append(f.createdSessions, params)
	f.sessionSeq++
	id := fmt.Sprintf("cs_test_%d", f.sessionSeq)
	return &stripe.CheckoutSession{
		ID:  id,
		URL: "https://checkout.example.com/" + id,
	}, nil
}

func (f *fakeProvider) CreatePortalSession(customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://portal.example.com/" + customerID}, nil
}

func (f *fakeProvider) CreateCustomer(email string, userID uint) (*stripe.Customer, error) {
	id := fmt.Sprintf("cus_new_%d", userID)
	f.createdCustomers = append(f.createdCustomers, id)
	return &stripe.Customer{ID: id, Email: email}, nil
}

func (f *fakeProvider) FindCustomerByUserID(userID uint) (*stripe.Customer, error) {
	return f.searchResult, nil
}

func (f *fakeProvider) SessionsByPaymentIntent(paymentIntentID string) ([]*stripe.CheckoutSession, error) {
	return f.sessionsByIntent[paymentIntentID], nil
}

// recordingHooks captures fired side effects for assertions.
type recordingHooks struct {
	statusChanges []SubscriptionChange
	planChanges   []SubscriptionChange
	cancelToggles []SubscriptionChange
}

func (h *recordingHooks) OnStatusChange(sub *models.Subscription, change SubscriptionChange) {
	h.statusChanges = append(h.statusChanges, change)
}

func (h *recordingHooks) OnPlanChange(sub *models.Subscription, change SubscriptionChange) {
	h.planChanges = append(h.planChanges, change)
}

func (h *recordingHooks) OnCancelToggle(sub *models.Subscription, change SubscriptionChange) {
	h.cancelToggles = append(h.cancelToggles, change)
}

type testEnv struct {
	db       *gorm.DB
	repo     Repository
	provider *fakeProvider
	hooks    *recordingHooks
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	provider := newFakeProvider()
	hooks := &recordingHooks{}
	repo := NewRepository(db)
	return &testEnv{
		db:       db,
		repo:     repo,
		provider: provider,
		hooks:    hooks,
		svc:      NewService(repo, provider, testPrices(), hooks),
	}
}

func (e *testEnv) seedUser(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "irrelevant",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func subscriptionEvent(t *testing.T, eventID, eventType string, created time.Time, payload map[string]interface{}, prev map[string]interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return stripe.Event{
		ID:      eventID,
		Type:    stripe.EventType(eventType),
		Created: created.Unix(),
		Data: &stripe.EventData{
			Raw:                raw,
			PreviousAttributes: prev,
		},
	}
}
