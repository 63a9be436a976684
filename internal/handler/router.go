package handler

import (
	"log/slog"

	"creditpay/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))

	// 创建处理器
	h := NewHandler(db, rdb, cfg, logger)

	api := r.Group("/api/v1")
	{
		// 渠道回调：公网可达，仅靠签名鉴权
		api.POST("/webhooks/stripe", h.StripeWebhook)

		// 面向前端的接口
		web := api.Group("", CORSMiddleware())
		{
			web.OPTIONS("/*any", func(c *gin.Context) {})
			web.POST("/checkout/session", h.CreateCheckoutSession)

			account := web.Group("/account")
			{
				account.GET("/balance", h.GetBalance)
				account.POST("/create", h.CreateAccount)
			}

			web.GET("/transaction/list", h.ListTransactions)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
