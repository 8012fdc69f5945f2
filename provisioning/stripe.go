package provisioning

import (
	"fmt"
	"os"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	stripeSubscription "github.com/stripe/stripe-go/v82/subscription"

	"github.com/om-ray/SNPaymentPortal/models"
)

// StripeCustomerStore is the production CustomerStore: the Stripe customer
// object is the system's only persistent record, provisioning state lives in
// its metadata.
type StripeCustomerStore struct{}

func (StripeCustomerStore) GetCustomer(customerID string) (Customer, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	cust, err := customer.Get(customerID, nil)
	if err != nil {
		return Customer{}, err
	}
	if cust.Deleted {
		return Customer{}, fmt.Errorf("customer %s is deleted", customerID)
	}

	return Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Metadata: models.CustomerMetadataFromMap(cust.Metadata),
	}, nil
}

func (StripeCustomerStore) UpdateMetadata(customerID string, fields map[string]string) error {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	params := &stripe.CustomerParams{}
	for key, value := range fields {
		params.AddMetadata(key, value)
	}

	_, err := customer.Update(customerID, params)
	return err
}

// The Stripe lookups below are function variables so handler tests can stub
// them without a network.

// GetCustomerByEmail finds the billing customer for an account email, nil
// when none exists yet.
var GetCustomerByEmail = func(email string) (*Customer, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	for iter.Next() {
		cust := iter.Customer()
		return &Customer{
			ID:       cust.ID,
			Email:    cust.Email,
			Metadata: models.CustomerMetadataFromMap(cust.Metadata),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// GetOrCreateCustomerByEmail finds the billing customer for an account email,
// creating one when it does not exist yet.
var GetOrCreateCustomerByEmail = func(email string) (Customer, error) {
	existing, err := GetCustomerByEmail(email)
	if err != nil {
		return Customer{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	created, err := customer.New(&stripe.CustomerParams{Email: stripe.String(email)})
	if err != nil {
		return Customer{}, err
	}

	return Customer{ID: created.ID, Email: created.Email}, nil
}

// GetActiveSubscription returns the customer's active subscription, falling
// back to a trialing one, nil when neither exists.
var GetActiveSubscription = func(customerID string) (*stripe.Subscription, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	for _, status := range []string{"active", "trialing"} {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String(status),
		}
		params.Limit = stripe.Int64(1)

		iter := stripeSubscription.List(params)
		for iter.Next() {
			return iter.Subscription(), nil
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// SubscriptionPriceID extracts the billing price from a subscription's first
// item, empty when absent.
func SubscriptionPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}
