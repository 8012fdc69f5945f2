package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/handlers/health"
)

func HealthRoutes(r *gin.Engine) {
	r.GET("/health/tv-session", health.CheckTVSession)
}
