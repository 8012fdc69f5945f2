package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/db"
	_ "github.com/om-ray/SNPaymentPortal/docs"
	"github.com/om-ray/SNPaymentPortal/handlers/admin"
	"github.com/om-ray/SNPaymentPortal/handlers/health"
	subscriptionHandlers "github.com/om-ray/SNPaymentPortal/handlers/subscription"
	tradingviewHandlers "github.com/om-ray/SNPaymentPortal/handlers/tradingview"
	"github.com/om-ray/SNPaymentPortal/handlers/webhook"
	"github.com/om-ray/SNPaymentPortal/plans"
	"github.com/om-ray/SNPaymentPortal/provisioning"
	"github.com/om-ray/SNPaymentPortal/routes"
	"github.com/om-ray/SNPaymentPortal/tradingview"
)

// @title SN Payment Portal API
// @version 1.0
// @description Billing-driven TradingView access provisioning backend
// @host localhost:8080
// @BasePath /
// @SecurityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the JWT with the Bearer prefix: Bearer <JWT>
func main() {

	gin.SetMode(gin.ReleaseMode)

	db.InitDB()

	tvClient := tradingview.NewClientFromEnv()
	catalog := plans.NewCatalogFromEnv()
	customers := provisioning.StripeCustomerStore{}
	provisioner := provisioning.NewProvisioner(
		tvClient,
		catalog,
		customers,
		provisioning.NewGitHubSessionRefresher(),
	)

	subscriptionHandlers.Init(catalog, provisioner)
	tradingviewHandlers.Init(tvClient, customers)
	webhook.Init(provisioner, customers)
	admin.Init(provisioner, customers)
	health.Init(tvClient)

	r := routes.SetupRouter()

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Error starting the server:", err)
	}
}
