package routes

import (
	"github.com/gin-gonic/gin"

	"tipbot-core/internal/handler"
)

// RegisterTippingRoutes 注册打赏、红包和钱包路由
func RegisterTippingRoutes(rg *gin.RouterGroup, h *handler.TippingHandler) {
	rg.POST("/tips", h.CreateTip)

	droptips := rg.Group("/droptips")
	{
		droptips.POST("", h.CreateDroptip)
		droptips.GET("/:id", h.GetDroptip)
		droptips.POST("/:id/claims", h.ClaimDroptip)
	}

	// 按钮交互: action_id = claim_droptip_<id>
	rg.POST("/actions", h.HandleAction)

	wallets := rg.Group("/wallets/:user_id")
	{
		wallets.GET("/balance", h.GetBalance)
		wallets.GET("/deposit-address", h.GetDepositAddress)
	}
	rg.POST("/withdrawals", h.Withdraw)
}
