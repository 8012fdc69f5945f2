package health

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/utils"
)

// SessionChecker is the slice of the TradingView client the probe needs.
type SessionChecker interface {
	CheckSession() (bool, int, error)
}

var checker SessionChecker

// Init wires the handler dependencies, called once from main.
func Init(c SessionChecker) {
	checker = c
}

const sessionExpiredMessage = "⚠️ TradingView Session Expired!\n\n" +
	"The stored TV_SESSION_ID was rejected. Please:\n" +
	"1. Login to TradingView with the service account\n" +
	"2. Copy the sessionid cookie from the browser\n" +
	"3. Update TV_SESSION_ID in the environment\n" +
	"4. Redeploy the app"

// CheckTVSession probes the stored TradingView session credential
// @Summary TradingView session health
// @Description Exercise the stored session cookie against TradingView. Sends a chat-ops notification when the credential is rejected; this is the primary recovery signal for an expired session.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{} "healthy: true"
// @Failure 500 {object} map[string]interface{} "healthy: false, error: not configured or unreachable"
// @Failure 503 {object} map[string]interface{} "healthy: false, error: session expired"
// @Router /health/tv-session [get]
func CheckTVSession(c *gin.Context) {
	if os.Getenv("TV_SESSION_ID") == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"healthy": false,
			"error":   "TV_SESSION_ID not configured",
		})
		return
	}

	healthy, status, err := checker.CheckSession()
	if err != nil {
		utils.LogError(err, "Could not check the TradingView session")
		c.JSON(http.StatusInternalServerError, gin.H{
			"healthy": false,
			"error":   "Failed to check session",
		})
		return
	}

	if !healthy {
		utils.LogError(nil, "TradingView session expired, TV_SESSION_ID must be refreshed")
		utils.SendOpsNotification(sessionExpiredMessage)

		c.JSON(http.StatusServiceUnavailable, gin.H{
			"healthy": false,
			"error":   "TradingView session expired. Please refresh TV_SESSION_ID.",
			"status":  status,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"healthy": true,
		"message": "TradingView session is valid",
	})
}
