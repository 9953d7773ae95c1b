package router

import (
	"fmt"
	"strings"

	"github.com/affilia-next/internal/cache"
	"github.com/affilia-next/internal/config"
	adminhandlers "github.com/affilia-next/internal/http/handlers/admin"
	publichandlers "github.com/affilia-next/internal/http/handlers/public"
	"github.com/affilia-next/internal/logger"
	"github.com/affilia-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "af"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录尝试过于频繁",
	}
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录尝试过于频繁",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 打款凭证等上传文件的静态访问
	r.Static("/uploads", "./uploads")

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/captcha/config", publicHandler.GetCaptchaConfig)
			public.GET("/captcha/image", publicHandler.GenerateCaptcha)
		}

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.Register)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.GET("/me", publicHandler.Me)
			user.PUT("/me/profile", publicHandler.UpdateProfile)
			user.PUT("/me/password", publicHandler.UpdatePassword)

			user.GET("/me/balance", publicHandler.GetMyBalance)
			user.GET("/me/commissions", publicHandler.ListMyCommissions)
			user.GET("/me/commissions/eligible", publicHandler.ListEligibleCommissions)

			user.POST("/me/withdrawals", publicHandler.ApplyWithdrawal)
			user.GET("/me/withdrawals", publicHandler.ListMyWithdrawals)
			user.GET("/me/withdrawals/:id", publicHandler.GetMyWithdrawal)
			user.POST("/me/withdrawals/:id/cancel", publicHandler.CancelWithdrawal)
			user.POST("/me/withdrawals/:id/commissions", publicHandler.AttachWithdrawalCommission)
			user.DELETE("/me/withdrawals/:id/commissions/:commission_id", publicHandler.DetachWithdrawalCommission)

			user.GET("/me/bank-accounts", publicHandler.ListBankAccounts)
			user.POST("/me/bank-accounts", publicHandler.CreateBankAccount)
			user.PUT("/me/bank-accounts/:id", publicHandler.UpdateBankAccount)
			user.POST("/me/bank-accounts/:id/default", publicHandler.SetDefaultBankAccount)
			user.DELETE("/me/bank-accounts/:id", publicHandler.DeleteBankAccount)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIP), adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				authorized.PUT("/password", adminHandler.UpdateAdminPassword)

				// 佣金管理
				authorized.GET("/commissions", adminHandler.ListCommissions)
				authorized.GET("/commissions/:id", adminHandler.GetCommission)
				authorized.POST("/commissions/:id/approve", adminHandler.ApproveCommission)
				authorized.POST("/commissions/:id/reject", adminHandler.RejectCommission)
				authorized.POST("/commissions/:id/adjust", adminHandler.AdjustCommission)

				// 提现管理
				authorized.GET("/withdrawals", adminHandler.ListWithdrawals)
				authorized.GET("/withdrawals/:id", adminHandler.GetWithdrawal)
				authorized.POST("/withdrawals/:id/approve", adminHandler.ApproveWithdrawal)
				authorized.POST("/withdrawals/:id/reject", adminHandler.RejectWithdrawal)
				authorized.POST("/withdrawals/:id/in-payment", adminHandler.MarkWithdrawalInPayment)
				authorized.POST("/withdrawals/:id/paid", adminHandler.MarkWithdrawalPaid)
				authorized.POST("/withdrawals/:id/evidence", adminHandler.UploadWithdrawalEvidence)

				// 订单接入与生命周期事件
				authorized.GET("/orders", adminHandler.ListOrders)
				authorized.GET("/orders/:id", adminHandler.GetOrder)
				authorized.POST("/orders", adminHandler.IngestOrder)
				authorized.POST("/orders/:id/delivered", adminHandler.MarkOrderDelivered)
				authorized.POST("/orders/:id/returned", adminHandler.MarkOrderReturned)
				authorized.POST("/orders/:id/canceled", adminHandler.MarkOrderCanceled)

				// 分销用户管理
				authorized.GET("/users", adminHandler.ListUsers)
				authorized.GET("/users/:id", adminHandler.GetUser)
				authorized.PUT("/users/:id/status", adminHandler.UpdateUserStatus)

				// 设置管理
				authorized.GET("/settings/commission", adminHandler.GetCommissionSettings)
				authorized.PUT("/settings/commission", adminHandler.UpdateCommissionSettings)
				authorized.GET("/settings/withdrawal", adminHandler.GetWithdrawalSettings)
				authorized.PUT("/settings/withdrawal", adminHandler.UpdateWithdrawalSettings)

				// 权限管理
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAdminRoles)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
