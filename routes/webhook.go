package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/handlers/webhook"
)

func WebhookRoutes(r *gin.Engine) {
	r.POST("/stripe/webhook", webhook.StripeWebhookHandler)
}
