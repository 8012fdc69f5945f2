package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/utils"
)

// RefreshAccess re-attempts the TradingView grant for the connected user
// @Summary Refresh TradingView access
// @Description Re-run provisioning for the connected user regardless of the current status, to self-heal stuck states
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success: true, provisioningStatus: complete"
// @Failure 400 {object} map[string]interface{} "error: missing username or no active subscription"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Customer not found"
// @Failure 500 {object} map[string]interface{} "error: grant failed, provisioningStatus: failed"
// @Router /subscription/refresh-access [post]
func RefreshAccess(c *gin.Context) {
	userID, email, ok := currentUserEmail(c)
	if !ok {
		return
	}

	cust, err := provisioning.GetCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Stripe customer lookup failed in RefreshAccess")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if cust == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	if cust.Metadata.TradingViewUsername == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "No TradingView username found",
			"needsOnboarding": true,
		})
		return
	}

	sub, err := provisioning.GetActiveSubscription(cust.ID)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Subscription lookup failed in RefreshAccess")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              "No active subscription found",
			"shouldHaveAccess":   false,
			"provisioningStatus": cust.Metadata.ProvisioningStatus,
		})
		return
	}

	outcome := provisioner.Provision(*cust, provisioning.Request{
		Reason:  provisioning.ReasonRefresh,
		PriceID: provisioning.SubscriptionPriceID(sub),
		Manual:  true,
	})

	if outcome.Status != models.ProvisioningComplete {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":              "Failed to grant access. Please try again later.",
			"provisioningStatus": outcome.Status,
			"details":            outcome.ErrorMessage,
		})
		return
	}

	utils.LogSuccessWithUser(userID, "Access refreshed for "+outcome.Username)
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            "Access granted to " + outcome.Username + " for " + outcome.Duration,
		"provisioningStatus": outcome.Status,
	})
}
