package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/handlers/admin"
	"github.com/om-ray/SNPaymentPortal/middleware"
)

func AdminRoutes(r *gin.Engine) {
	r.POST("/admin/retry-access", middleware.RetryTokenAuth(), admin.RetryAccess)
}
