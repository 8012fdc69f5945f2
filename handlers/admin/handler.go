package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/models"
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

type retryInput struct {
	CustomerID string `json:"customerId"`
}

// RetryAccess re-runs provisioning for one customer, typically called by the
// session-refresh workflow once a new TV_SESSION_ID is in place
// @Summary Retry access provisioning
// @Description Re-attempt the TradingView grant for a customer. Guarded by the RETRY_SECRET bearer token. Customers already provisioned are skipped.
// @Tags admin
// @Accept json
// @Produce json
// @Param body body retryInput true "Stripe customer id"
// @Success 200 {object} map[string]interface{} "success: true, provisioningStatus"
// @Failure 400 {object} map[string]interface{} "error: missing customer id, username or subscription"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 404 {object} map[string]string "error: Customer not found"
// @Router /admin/retry-access [post]
func RetryAccess(c *gin.Context) {
	var input retryInput
	if err := c.ShouldBindJSON(&input); err != nil || input.CustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Customer ID is required"})
		return
	}

	cust, err := customers.GetCustomer(input.CustomerID)
	if err != nil {
		utils.LogError(err, "Customer not found in RetryAccess")
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}

	if cust.Metadata.TradingViewUsername == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No TradingView username found for customer"})
		return
	}

	sub, err := provisioning.GetActiveSubscription(cust.ID)
	if err != nil {
		utils.LogError(err, "Subscription lookup failed in RetryAccess")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No active subscription found"})
		return
	}

	// Non-manual: customers already marked complete are left alone so a bulk
	// retry after a session refresh does not hammer TradingView.
	outcome := provisioner.Provision(cust, provisioning.Request{
		Reason:  provisioning.ReasonRefresh,
		PriceID: provisioning.SubscriptionPriceID(sub),
	})

	if outcome.AlreadyProvisioned {
		c.JSON(http.StatusOK, gin.H{
			"success":            true,
			"message":            "Access already granted",
			"alreadyProvisioned": true,
			"provisioningStatus": outcome.Status,
		})
		return
	}

	if outcome.Status != models.ProvisioningComplete {
		c.JSON(http.StatusOK, gin.H{
			"success":            false,
			"provisioningStatus": outcome.Status,
			"error":              outcome.ErrorMessage,
		})
		return
	}

	utils.LogSuccess("Retry granted access to " + outcome.Username + " for " + outcome.Duration)
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            "Access granted to " + outcome.Username + " for " + outcome.Duration,
		"provisioningStatus": outcome.Status,
	})
}
