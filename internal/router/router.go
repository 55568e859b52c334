package router

import (
	"fmt"
	"strings"

	"github.com/mixpitch-payouts/internal/cache"
	"github.com/mixpitch-payouts/internal/config"
	adminhandlers "github.com/mixpitch-payouts/internal/http/handlers/admin"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "mp"
	}
	redisClient := cache.Client()
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			{
				// 账户
				authorized.GET("/profile", adminHandler.GetAdminProfile)
				authorized.PUT("/password", adminHandler.UpdateAdminPassword)

				// 打款计划管理
				authorized.GET("/payouts", adminHandler.GetAdminPayouts)
				authorized.GET("/payouts/stats", adminHandler.GetAdminPayoutStats)
				authorized.POST("/payouts", adminHandler.CreateAdminPayout)
				authorized.POST("/payouts/contest-batch", adminHandler.ScheduleAdminContestBatch)
				authorized.POST("/payouts/process", adminHandler.TriggerAdminPayoutBatch)
				authorized.GET("/payouts/:id", adminHandler.GetAdminPayout)
				authorized.POST("/payouts/:id/retry", adminHandler.RetryAdminPayout)
				authorized.POST("/payouts/:id/cancel", adminHandler.CancelAdminPayout)
				authorized.POST("/payouts/:id/bypass-hold", adminHandler.BypassAdminPayoutHold)
				authorized.POST("/payouts/:id/reverse", adminHandler.ReverseAdminPayout)

				// 制作人管理
				authorized.GET("/producers", adminHandler.GetAdminProducers)
				authorized.POST("/producers", adminHandler.CreateAdminProducer)
				authorized.GET("/producers/:id", adminHandler.GetAdminProducer)
				authorized.PUT("/producers/:id", adminHandler.UpdateAdminProducer)
				authorized.GET("/producers/:id/earnings", adminHandler.GetAdminProducerEarnings)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
