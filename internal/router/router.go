package router

import (
	"fmt"
	"strings"

	"github.com/lipa-next/internal/cache"
	"github.com/lipa-next/internal/config"
	accesshandlers "github.com/lipa-next/internal/http/handlers/access"
	callbackhandlers "github.com/lipa-next/internal/http/handlers/callback"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（网关回调 / 内部查询）
	callbackHandler := callbackhandlers.New(c)
	accessHandler := accesshandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "lipa"
	}
	redisClient := cache.Client()
	voucherLookupRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:voucher_lookup", redisPrefix),
		WindowSeconds: cfg.RateLimit.VoucherLookup.WindowSeconds,
		MaxRequests:   cfg.RateLimit.VoucherLookup.MaxRequests,
		BlockSeconds:  cfg.RateLimit.VoucherLookup.BlockSeconds,
		Message:       "too many voucher lookups",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 网关回调（无鉴权，Kopo Kopo 在服务层验签）
	callbacks := r.Group("/callback")
	{
		callbacks.POST("/stk", callbackHandler.MpesaSTKCallback)
		callbacks.POST("/c2b", callbackHandler.MpesaC2BConfirmation)
		callbacks.POST("/c2b/validation", callbackHandler.MpesaC2BValidation)
		callbacks.POST("/kopokopo", callbackHandler.KopokopoWebhook)
	}

	// 内部查询接口（服务令牌）
	apiV1 := r.Group("/api/v1")
	apiV1.Use(ServiceJWTAuthMiddleware(cfg.JWT))
	{
		apiV1.GET("/vouchers/:code", RateLimitMiddleware(redisClient, voucherLookupRule, KeyByIP), accessHandler.GetVoucher)
		apiV1.POST("/vouchers/:code/use", accessHandler.UseVoucher)
		apiV1.GET("/transactions", accessHandler.ListTransactions)
		apiV1.GET("/transactions/:txn_id", accessHandler.GetTransaction)
	}

	// 健康检查
	r.GET("/healthz", accessHandler.Healthz)

	return r
}
