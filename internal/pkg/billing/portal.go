package billing

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/shipnowhq/shipnow/app/models"
)

// CreatePortalSession opens the provider's self-service portal for the user's
// billing customer. Users who never completed a checkout have no customer and
// get ErrNoCustomerFound.
func (s *Service) CreatePortalSession(params PortalParams) (string, error) {
	if err := validate.Struct(params); err != nil {
		return "", fmt.Errorf("invalid portal request: %w", err)
	}

	order, err := s.repo.LatestOrderWithCustomer(params.UserID, models.PaymentPlatformStripe)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoCustomerFound
	}
	if err != nil {
		return "", fmt.Errorf("look up billing customer for user %d: %w", params.UserID, err)
	}

	session, err := s.provider.CreatePortalSession(order.PlatformCustomerID, params.ReturnURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}

	log.Printf("[Billing] portal session opened for user %d (customer %s)", params.UserID, order.PlatformCustomerID)
	return session.URL, nil
}
