package tradingview

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/provisioning"
	tv "github.com/om-ray/SNPaymentPortal/tradingview"
	"github.com/om-ray/SNPaymentPortal/utils"
)

// UsernameValidator is the slice of the TradingView client this handler needs.
type UsernameValidator interface {
	ValidateUsername(username string) (tv.ValidationResult, error)
}

var (
	validator UsernameValidator
	customers provisioning.CustomerStore
)

// Init wires the handler dependencies, called once from main.
func Init(v UsernameValidator, store provisioning.CustomerStore) {
	validator = v
	customers = store
}

type validateInput struct {
	Username string `json:"username"`
}

// ValidateUsername checks a TradingView handle against the platform and stores
// the canonical spelling on the user's Stripe customer
// @Summary Validate a TradingView username
// @Description Check the username against TradingView and save the canonical spelling on the billing customer
// @Tags tradingview
// @Accept json
// @Produce json
// @Param body body validateInput true "TradingView username"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "success: true, verifiedUsername: canonical username"
// @Failure 400 {object} map[string]string "error: invalid or unknown username"
// @Failure 401 {object} map[string]string "error: Unauthorized"
// @Failure 500 {object} map[string]string "error: validation failed"
// @Router /tradingview/validate [post]
func ValidateUsername(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input validateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username is required"})
		return
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username cannot be empty"})
		return
	}

	if !utils.ValidateTradingViewUsername(username) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Username can only contain letters, numbers, underscores, and hyphens",
		})
		return
	}

	validation, err := validator.ValidateUsername(username)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "TradingView validation error in ValidateUsername")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate username. Please try again."})
		return
	}

	if !validation.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "TradingView username not found. Please check and try again.",
		})
		return
	}

	email, ok := userEmail(c, userID)
	if !ok {
		return
	}

	cust, err := provisioning.GetOrCreateCustomerByEmail(email)
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Could not resolve Stripe customer in ValidateUsername")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate username. Please try again."})
		return
	}

	// Written under both the canonical and the legacy key, older readers still
	// look at the camelCase one.
	err = customers.UpdateMetadata(cust.ID, models.UsernameMetadataFields(validation.Username))
	if err != nil {
		utils.LogErrorWithUser(userID, err, "Could not store TradingView username in ValidateUsername")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate username. Please try again."})
		return
	}

	utils.LogSuccessWithUser(userID, "TradingView username validated: "+validation.Username)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"verifiedUsername": validation.Username,
	})
}
