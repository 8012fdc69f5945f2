package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetPlans lists the purchasable plans
// @Summary List available plans
// @Description Return the plan catalog resolved from the Stripe prices
// @Tags subscriptions
// @Produce json
// @Success 200 {object} map[string]interface{} "plans: plan list"
// @Router /subscription/plans [get]
func GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"plans": catalog.GetPlans(),
	})
}

// GetPrice resolves one plan by its Stripe price id
// @Summary Plan details for a price
// @Description Return the plan mapped to the given Stripe price id
// @Tags subscriptions
// @Produce json
// @Param priceId query string true "Stripe price id"
// @Success 200 {object} models.Plan
// @Failure 400 {object} map[string]string "error: priceId is required"
// @Failure 404 {object} map[string]string "error: Plan not found"
// @Router /subscription/price [get]
func GetPrice(c *gin.Context) {
	priceID := c.Query("priceId")
	if priceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceId is required"})
		return
	}

	plan, ok := catalog.GetPlanByPriceID(priceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}

	c.JSON(http.StatusOK, plan)
}
