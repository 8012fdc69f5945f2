package subscription

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentmethod"

	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/utils"
)

var getPaymentMethod = func(id string) (*stripe.PaymentMethod, error) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	return paymentmethod.Get(id, nil)
}

// GetStatus returns the connected user's billing and provisioning snapshot
// @Summary Subscription status
// @Description Return the customer snapshot: TradingView username, subscription summary, provisioning status and available plans
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 500 {object} map[string]string "error: Failed to fetch subscription status"
// @Router /subscription/status [get]
func GetStatus(c *gin.Context) {
	userID, email, ok := currentUserEmail(c)
	if !ok {
		return
	}

	cust, err := provisioning.GetOrCreateCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe customer lookup failed in GetStatus")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscription status"})
		return
	}

	var username interface{}
	if cust.Metadata.TradingViewUsername != "" {
		username = cust.Metadata.TradingViewUsername
	}

	sub, err := provisioning.GetActiveSubscription(cust.ID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Subscription lookup failed in GetStatus")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscription status"})
		return
	}

	var subscriptionDetails gin.H
	var currentPlan gin.H

	if sub != nil {
		priceID := provisioning.SubscriptionPriceID(sub)
		plan, planKnown := catalog.GetPlanByPriceID(priceID)

		totalAccessMonths := cust.Metadata.TotalAccessMonths
		bonusMonths := cust.Metadata.BonusMonths
		planType := cust.Metadata.PlanType
		planName := "Plan"
		var priceAmount float64
		var currency, interval string

		if planKnown {
			totalAccessMonths = plan.TotalAccessMonths
			bonusMonths = plan.BonusMonths
			planType = plan.PlanType
			planName = plan.Name
			priceAmount = plan.Price
			currency = plan.Currency
			interval = plan.Interval
			currentPlan = gin.H{"id": plan.ID, "planType": plan.PlanType}
		}
		if totalAccessMonths == 0 {
			totalAccessMonths = 6
		}
		if planType == "" {
			planType = "unknown"
		}

		var paymentMethod gin.H
		if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.ID != "" {
			if pm, err := getPaymentMethod(sub.DefaultPaymentMethod.ID); err == nil && pm.Card != nil {
				paymentMethod = gin.H{
					"brand":    pm.Card.Brand,
					"last4":    pm.Card.Last4,
					"expMonth": pm.Card.ExpMonth,
					"expYear":  pm.Card.ExpYear,
				}
			}
		}

		var currentPeriodEnd string
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
			currentPeriodEnd = time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC().Format(time.RFC3339)
		}

		subscriptionDetails = gin.H{
			"id":                sub.ID,
			"status":            sub.Status,
			"planName":          planName,
			"planType":          planType,
			"priceAmount":       priceAmount,
			"currency":          currency,
			"interval":          interval,
			"currentPeriodEnd":  currentPeriodEnd,
			"cancelAtPeriodEnd": sub.CancelAtPeriodEnd,
			"paymentMethod":     paymentMethod,
			"totalAccessMonths": totalAccessMonths,
			"bonusMonths":       bonusMonths,
		}
	}

	availablePlans := make([]gin.H, 0)
	for _, p := range catalog.GetPlans() {
		availablePlans = append(availablePlans, gin.H{
			"id":       p.ID,
			"name":     p.Name,
			"planType": p.PlanType,
			"price":    p.Price,
			"currency": p.Currency,
			"interval": p.Interval,
		})
	}

	status := cust.Metadata.ProvisioningStatus
	if status == "" {
		status = models.ProvisioningNone
	}

	c.JSON(http.StatusOK, gin.H{
		"customerId":            cust.ID,
		"tradingViewUsername":   username,
		"hasActiveSubscription": sub != nil,
		"subscription":          subscriptionDetails,
		"currentPlan":           currentPlan,
		"availablePlans":        availablePlans,
		"provisioningStatus":    status,
	})
}
