package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/handlers/auth"
	"github.com/om-ray/SNPaymentPortal/handlers/ping"
)

func AuthRoutes(r *gin.Engine) {
	r.POST("/register", auth.CreateUser)
	r.POST("/login", auth.Login)

	pingHandler := ping.New()
	r.GET("/ping", pingHandler.HandlePing)
}
