package ping

import (
	"github.com/gin-gonic/gin"

	"github.com/om-ray/SNPaymentPortal/utils"
)

type Handler struct{}

func New() *Handler {
	return &Handler{}
}

// HandlePing answers the liveness check
// @Summary Ping test
// @Description Test endpoint that answers pong
// @Tags test
// @Produce json
// @Success 200 {object} utils.Response
// @Router /ping [get]
func (h *Handler) HandlePing(c *gin.Context) {
	utils.SendSuccess(c, 200, "Ping successful", gin.H{
		"message": "pong",
	})
}
