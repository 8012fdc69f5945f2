package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/handlers/subscription"
	"github.com/om-ray/SNPaymentPortal/middleware"
)

func SubscriptionRoutes(r *gin.Engine) {
	subscriptionRoutes := r.Group("/subscription")
	{
		subscriptionRoutes.GET("/plans", subscription.GetPlans)
		subscriptionRoutes.GET("/price", subscription.GetPrice)

		subscriptionRoutes.GET("/status", middleware.JWTAuth(), subscription.GetStatus)
		subscriptionRoutes.POST("/refresh-access", middleware.JWTAuth(), subscription.RefreshAccess)
		subscriptionRoutes.POST("/change-plan", middleware.JWTAuth(), subscription.ChangePlan)
		subscriptionRoutes.POST("/cancel", middleware.JWTAuth(), subscription.Cancel)
	}

	r.POST("/checkout/create-session", middleware.JWTAuth(), subscription.CreateCheckoutSession)
	r.POST("/billing-portal", middleware.JWTAuth(), subscription.CreateBillingPortalSession)
}
