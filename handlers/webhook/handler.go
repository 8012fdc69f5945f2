package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	stripeSubscription "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/utils"
)

var (
	provisioner *provisioning.Provisioner
	customers   provisioning.CustomerStore
)

// Init wires the handler dependencies, called once from main.
func Init(p *provisioning.Provisioner, store provisioning.CustomerStore) {
	provisioner = p
	customers = store
}

// getSubscription is a function variable so tests run without Stripe.
var getSubscription = func(id string) (*stripe.Subscription, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	return stripeSubscription.Get(id, nil)
}

// StripeWebhookHandler ingests billing lifecycle events
// @Summary Stripe webhook
// @Description Verify and dispatch Stripe billing events into access provisioning. Always acknowledges authenticated events; provisioning failures are recorded on the customer, never surfaced here, so Stripe does not re-deliver.
// @Tags webhook
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool "received: true"
// @Failure 400 {object} map[string]string "error: Missing or invalid signature"
// @Failure 500 {object} map[string]string "error: Webhook secret not configured"
// @Router /stripe/webhook [post]
func StripeWebhookHandler(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not read the request body"})
		return
	}

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook secret not configured"})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	if sig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing signature"})
		return
	}

	event, err := webhook.ConstructEvent(payload, sig, secret)
	if err != nil {
		utils.LogError(err, "Stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	// Past this point the event is authenticated and always acknowledged.
	// A provisioning failure lands in provisioning_status on the customer;
	// bouncing the webhook would only make Stripe re-deliver and multiply
	// TradingView calls.
	switch event.Type {
	case "checkout.session.completed":
		handleCheckoutSessionCompleted(event)
	case "invoice.paid":
		handleInvoicePaid(event)
	case "customer.subscription.updated":
		handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		handleSubscriptionDeleted(event)
	default:
		utils.LogInfo("Unhandled event type: " + string(event.Type))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func handleCheckoutSessionCompleted(event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		utils.LogError(err, "Error parsing CheckoutSession")
		return
	}

	if session.Mode != stripe.CheckoutSessionModeSubscription ||
		session.Customer == nil || session.Subscription == nil {
		return
	}

	cust, err := customers.GetCustomer(session.Customer.ID)
	if err != nil {
		utils.LogError(err, "Customer not found for checkout session "+session.ID)
		return
	}

	priceID := subscriptionPriceID(session.Subscription.ID)

	outcome := provisioner.Provision(cust, provisioning.Request{
		Reason:  provisioning.ReasonCheckoutCompleted,
		PriceID: priceID,
	})
	if outcome.NeedsOnboarding {
		utils.LogInfo("Customer " + cust.ID + " completed checkout without a TradingView username")
	}
}

func handleInvoicePaid(event stripe.Event) {
	// Parsed as a raw map: the subscription reference moved between API
	// versions (top-level vs parent.subscription_details), both are read.
	var invoiceData map[string]interface{}
	if err := json.Unmarshal(event.Data.Raw, &invoiceData); err != nil {
		utils.LogError(err, "Error parsing Invoice")
		return
	}

	// Only renewal invoices: the first invoice is handled by
	// checkout.session.completed already.
	if billingReason, _ := invoiceData["billing_reason"].(string); billingReason != "subscription_cycle" {
		return
	}

	customerID := stringField(invoiceData, "customer")
	if customerID == "" {
		utils.LogError(nil, "Invoice without customer id")
		return
	}

	subscriptionID := invoiceSubscriptionID(invoiceData)
	var priceID string
	if subscriptionID != "" {
		priceID = subscriptionPriceID(subscriptionID)
	}

	cust, err := customers.GetCustomer(customerID)
	if err != nil {
		utils.LogError(err, "Customer not found for renewal invoice")
		return
	}

	provisioner.Provision(cust, provisioning.Request{
		Reason:  provisioning.ReasonRenewalInvoice,
		PriceID: priceID,
	})
}

func handleSubscriptionUpdated(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		utils.LogError(err, "Error parsing Subscription")
		return
	}

	if sub.Customer == nil {
		return
	}

	priceID := provisioning.SubscriptionPriceID(&sub)
	if priceID != "" {
		cust, err := customers.GetCustomer(sub.Customer.ID)
		if err != nil {
			utils.LogError(err, "Customer not found for subscription update")
			return
		}

		// Re-provision only when the plan actually changed. The grant logic
		// only pushes the expiration forward, a downgrade never shortens an
		// already longer-dated grant.
		if plan, ok := provisioner.Plans.GetPlanByPriceID(priceID); ok &&
			plan.InternalProductID != cust.Metadata.InternalProductID {
			provisioner.Provision(cust, provisioning.Request{
				Reason: provisioning.ReasonPlanChange,
				Plan:   &plan,
			})
		}
	}

	// Access is not revoked on cancellation, it lapses at the granted expiration
	if sub.CancelAtPeriodEnd {
		utils.LogInfo("Subscription " + sub.ID + " set to cancel at period end - access will continue until then")
	}
}

func handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		utils.LogError(err, "Error parsing Subscription")
		return
	}

	// Access was granted for the paid period and expires on its own; the
	// provisioning status on the customer is left untouched.
	utils.LogInfo("Subscription " + sub.ID + " deleted - access will expire naturally")
}

func subscriptionPriceID(subscriptionID string) string {
	sub, err := getSubscription(subscriptionID)
	if err != nil {
		utils.LogError(err, "Could not retrieve subscription "+subscriptionID)
		return ""
	}
	return provisioning.SubscriptionPriceID(sub)
}

func invoiceSubscriptionID(invoiceData map[string]interface{}) string {
	if parent, ok := invoiceData["parent"].(map[string]interface{}); ok {
		if details, ok := parent["subscription_details"].(map[string]interface{}); ok {
			if id, ok := details["subscription"].(string); ok && id != "" {
				return id
			}
		}
	}
	return stringField(invoiceData, "subscription")
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}
