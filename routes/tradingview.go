package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/handlers/tradingview"
	"github.com/om-ray/SNPaymentPortal/middleware"
)

func TradingViewRoutes(r *gin.Engine) {
	r.POST("/tradingview/validate", middleware.JWTAuth(), tradingview.ValidateUsername)
}
