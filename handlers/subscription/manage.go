package subscription

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	stripeSubscription "github.com/stripe/stripe-go/v82/subscription"

	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/utils"
)

type changePlanInput struct {
	NewPriceID string `json:"newPriceId"`
}

type checkoutInput struct {
	PriceID string `json:"priceId"`
}

// ChangePlan moves the user's subscription to another price and extends access
// @Summary Change plan
// @Description Move the active subscription to a new price with prorations and re-run provisioning with the new duration
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param body body changePlanInput true "New Stripe price id"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success: true"
// @Failure 400 {object} map[string]string "error: missing price, already on plan or no active subscription"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Customer not found"
// @Failure 500 {object} map[string]string "error: Stripe error"
// @Router /subscription/change-plan [post]
func ChangePlan(c *gin.Context) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	userID, email, ok := currentUserEmail(c)
	if !ok {
		return
	}

	var input changePlanInput
	if err := c.ShouldBindJSON(&input); err != nil || input.NewPriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New price ID is required"})
		return
	}

	cust, err := provisioning.GetCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe customer lookup failed in ChangePlan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if cust == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	sub, err := provisioning.GetActiveSubscription(cust.ID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Subscription lookup failed in ChangePlan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No active subscription found"})
		return
	}

	if provisioning.SubscriptionPriceID(sub) == input.NewPriceID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Already on this plan"})
		return
	}

	updated, err := stripeSubscription.Update(sub.ID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(input.NewPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe subscription update failed in ChangePlan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error when updating the subscription"})
		return
	}

	// Re-provision with the new duration. The grant only ever extends the
	// expiration forward, a shorter plan never truncates existing access.
	// A grant failure here lands in provisioning_status, not in this response.
	if plan, planKnown := catalog.GetPlanByPriceID(input.NewPriceID); planKnown {
		provisioner.Provision(*cust, provisioning.Request{
			Reason: provisioning.ReasonPlanChange,
			Plan:   &plan,
		})
	}

	utils.LogSuccessWithUser(userID, "Plan changed to "+input.NewPriceID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Plan changed successfully",
		"subscription": gin.H{
			"id":     updated.ID,
			"status": updated.Status,
		},
	})
}

// Cancel flags the subscription to end at the period end, access is not revoked
// @Summary Cancel subscription
// @Description Set cancel_at_period_end on the active subscription; TradingView access lapses at its granted expiration
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success: true"
// @Failure 400 {object} map[string]string "error: No active subscription found"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Customer not found"
// @Failure 500 {object} map[string]string "error: Stripe error"
// @Router /subscription/cancel [post]
func Cancel(c *gin.Context) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	userID, email, ok := currentUserEmail(c)
	if !ok {
		return
	}

	cust, err := provisioning.GetCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe customer lookup failed in Cancel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if cust == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	sub, err := provisioning.GetActiveSubscription(cust.ID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Subscription lookup failed in Cancel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No active subscription found"})
		return
	}

	updated, err := stripeSubscription.Update(sub.ID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe cancellation failed in Cancel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error when canceling the subscription"})
		return
	}

	utils.LogSuccessWithUser(userID, "Subscription "+sub.ID+" set to cancel at period end, access lapses naturally")
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           "Subscription will be canceled at the end of the billing period",
		"cancelAtPeriodEnd": updated.CancelAtPeriodEnd,
	})
}

// CreateCheckoutSession starts a Stripe Checkout for a plan
// @Summary Create a Stripe Checkout session
// @Description Start a subscription checkout for the given price. Returns the Stripe session id and URL for the frontend.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param body body checkoutInput true "Stripe price id"
// @Security BearerAuth
// @Success 200 {object} map[string]string "sessionId: Checkout session id, url: Checkout URL"
// @Failure 400 {object} map[string]string "error: Unknown price"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 500 {object} map[string]string "error: Stripe error"
// @Router /checkout/create-session [post]
func CreateCheckoutSession(c *gin.Context) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	userID, email, ok := currentUserEmail(c)
	if !ok {
		return
	}

	var input checkoutInput
	if err := c.ShouldBindJSON(&input); err != nil || input.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price ID is required"})
		return
	}

	if _, known := catalog.GetPlanByPriceID(input.PriceID); !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown price"})
		return
	}

	cust, err := provisioning.GetOrCreateCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe customer lookup failed in CreateCheckoutSession")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating the Stripe customer"})
		return
	}

	frontendURL := os.Getenv("FRONTEND_URL")

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(cust.ID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(input.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/success"),
		CancelURL:  stripe.String(frontendURL + "/checkout"),
	}
	// One key per attempt, the Stripe client retries on network errors
	params.IdempotencyKey = stripe.String(uuid.NewString())

	s, err := checkoutsession.New(params)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe checkout session creation failed in CreateCheckoutSession")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	utils.LogSuccessWithUser(userID, "Checkout session created for price "+input.PriceID)
	c.JSON(http.StatusOK, gin.H{"sessionId": s.ID, "url": s.URL})
}

// CreateBillingPortalSession opens the Stripe billing portal for the user
// @Summary Billing portal
// @Description Create a Stripe billing portal session for the connected user
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "url: Billing portal URL"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Customer not found"
// @Failure 500 {object} map[string]string "error: Stripe error"
// @Router /billing-portal [post]
func CreateBillingPortalSession(c *gin.Context) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	userID, email, ok := currentUserEmail(c)
	if !ok {
		return
	}

	cust, err := provisioning.GetCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe customer lookup failed in CreateBillingPortalSession")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if cust == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	s, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(cust.ID),
		ReturnURL: stripe.String(os.Getenv("FRONTEND_URL") + "/dashboard"),
	})
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe billing portal session creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating the billing portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.URL})
}
