package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/db"
	"github.com/om-ray/SNPaymentPortal/models"
	"github.com/om-ray/SNPaymentPortal/plans"
	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/utils"
)

var (
	catalog     *plans.Catalog
	provisioner *provisioning.Provisioner
)

// Init wires the handler dependencies, called once from main.
func Init(c *plans.Catalog, p *provisioning.Provisioner) {
	catalog = c
	provisioner = p
}

// currentUserEmail resolves the JWT subject to the local account email.
func currentUserEmail(c *gin.Context) (interface{}, string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil, "", false
	}

	var user models.User
	if err := db.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.LogErrorWithUser(userID, err, "User not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return userID, "", false
	}

	return userID, user.Email, true
}
