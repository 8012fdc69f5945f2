package tradingview

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/db"
	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/utils"
)

func userEmail(c *gin.Context, userID interface{}) (string, bool) {
	var user models.User
	if err := db.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "User not found in ValidateUsername")
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return "", false
	}
	return user.Email, true
}
