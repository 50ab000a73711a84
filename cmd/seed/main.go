package main

import (
	"context"
	"time"

	"github.com/lipa-next/internal/cache"
	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/kopokopo"
	"github.com/lipa-next/internal/payment/mpesa"
	"github.com/lipa-next/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Server.Mode, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		stdLog.Printf("Redis unavailable, skip cache invalidation: %v", err)
	}
	defer func() { _ = cache.Close() }()

	tenant := models.Tenant{Name: "Demo ISP", IsActive: true}
	if err := models.DB.Where("name = ?", tenant.Name).FirstOrCreate(&tenant).Error; err != nil {
		stdLog.Fatalf("Failed to create tenant: %v", err)
	}
	stdLog.Printf("Tenant ready: %s (id=%d)", tenant.Name, tenant.ID)

	// 网关配置
	mpesaRaw := map[string]interface{}{
		"consumer_key":    "demo-consumer-key",
		"consumer_secret": "demo-consumer-secret",
		"short_code":      "600638",
		"passkey":         "demo-passkey",
		"callback_url":    "https://example.com/callback/stk?account=600638",
		"environment":     "sandbox",
	}
	mpesaCfg, err := mpesa.ParseConfig(mpesaRaw)
	if err == nil {
		err = mpesa.ValidateConfig(mpesaCfg)
	}
	if err != nil {
		stdLog.Fatalf("Invalid mpesa config: %v", err)
	}
	kopokopoRaw := map[string]interface{}{
		"client_id":      "demo-client-id",
		"client_secret":  "demo-client-secret",
		"api_key":        "demo-api-key",
		"till_number":    "514459",
		"webhook_secret": "demo-webhook-secret",
	}
	kopokopoCfg, err := kopokopo.ParseConfig(kopokopoRaw)
	if err == nil {
		err = kopokopo.ValidateConfig(kopokopoCfg)
	}
	if err != nil {
		stdLog.Fatalf("Invalid kopokopo config: %v", err)
	}

	gateways := []models.GatewayConfig{
		{
			TenantID:   tenant.ID,
			Provider:   constants.GatewayProviderMpesa,
			Kind:       constants.GatewayKindPaybill,
			BusinessID: mpesaCfg.ShortCode,
			ConfigJSON: models.JSON(mpesaRaw),
			IsActive:   true,
		},
		{
			TenantID:   tenant.ID,
			Provider:   constants.GatewayProviderKopokopo,
			Kind:       constants.GatewayKindBuygoods,
			BusinessID: kopokopoCfg.TillNumber,
			ConfigJSON: models.JSON(kopokopoRaw),
			IsActive:   true,
		},
	}
	for _, gateway := range gateways {
		var existing models.GatewayConfig
		err := models.DB.Where("provider = ? AND business_id = ?", gateway.Provider, gateway.BusinessID).First(&existing).Error
		if err == nil {
			stdLog.Printf("Gateway already exists: %s %s", gateway.Provider, gateway.BusinessID)
			continue
		}
		if err := models.DB.Create(&gateway).Error; err != nil {
			stdLog.Printf("Failed to create gateway %s %s: %v", gateway.Provider, gateway.BusinessID, err)
			continue
		}
		stdLog.Printf("Created gateway: %s %s", gateway.Provider, gateway.BusinessID)
		// 清除旧的短码路由快照
		if err := cache.DelGatewayState(context.Background(), gateway.Provider, gateway.BusinessID); err != nil {
			stdLog.Printf("Failed to invalidate gateway cache %s: %v", gateway.BusinessID, err)
		}
	}

	// 套餐
	monthly := models.ServicePackage{
		TenantID:     tenant.ID,
		Name:         "Home 10Mbps Monthly",
		Price:        models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		Duration:     30,
		DurationUnit: constants.DurationUnitDay,
		AccessType:   constants.AccessTypePPPoE,
	}
	if err := models.DB.Where("tenant_id = ? AND name = ?", tenant.ID, monthly.Name).FirstOrCreate(&monthly).Error; err != nil {
		stdLog.Fatalf("Failed to create package: %v", err)
	}
	daily := models.ServicePackage{
		TenantID:     tenant.ID,
		Name:         "Hotspot 24 Hours",
		Price:        models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Duration:     24,
		DurationUnit: constants.DurationUnitHour,
		AccessType:   constants.AccessTypeVoucher,
	}
	if err := models.DB.Where("tenant_id = ? AND name = ?", tenant.ID, daily.Name).FirstOrCreate(&daily).Error; err != nil {
		stdLog.Fatalf("Failed to create package: %v", err)
	}

	// 订阅用户
	packageID := monthly.ID
	subscriber := models.Subscriber{
		TenantID:      tenant.ID,
		Name:          "Alice Wanjiku",
		Phone:         "254708374149",
		PPPoEUsername: "alice-pppoe",
		PackageID:     &packageID,
		Status:        constants.SubscriberStatusInactive,
	}
	if err := models.DB.Where("tenant_id = ? AND pppoe_username = ?", tenant.ID, subscriber.PPPoEUsername).FirstOrCreate(&subscriber).Error; err != nil {
		stdLog.Fatalf("Failed to create subscriber: %v", err)
	}
	stdLog.Printf("Subscriber ready: %s", subscriber.PPPoEUsername)

	// 待支付上网券
	voucher := models.Voucher{
		TenantID:         tenant.ID,
		Code:             "DEMO-VOUCHER-01",
		PackageID:        daily.ID,
		Phone:            "254708374149",
		Amount:           daily.Price,
		CorrelationToken: "ws_CO_DEMO_VOUCHER_01",
		Status:           constants.VoucherStatusPending,
		ExpiresAt:        time.Now().Add(24 * time.Hour),
	}
	if err := models.DB.Where("code = ?", voucher.Code).FirstOrCreate(&voucher).Error; err != nil {
		stdLog.Printf("Failed to create voucher: %v", err)
	} else {
		stdLog.Printf("Voucher ready: %s (checkout %s)", voucher.Code, voucher.CorrelationToken)
	}

	// 付款链接
	var linkCount int64
	models.DB.Model(&models.PaymentLink{}).Where("subscriber_id = ? AND used_at IS NULL", subscriber.ID).Count(&linkCount)
	if linkCount == 0 {
		link := models.PaymentLink{
			TenantID:        tenant.ID,
			Token:           uuid.NewString(),
			SubscriberID:    subscriber.ID,
			Amount:          monthly.Price,
			ChargeRequestID: uuid.NewString(),
		}
		if err := models.DB.Create(&link).Error; err != nil {
			stdLog.Printf("Failed to create payment link: %v", err)
		} else {
			stdLog.Printf("Created payment link: %s (charge %s)", link.Token, link.ChargeRequestID)
		}
	}

	// 短信通道与模板
	setting := models.SMSSetting{
		TenantID: tenant.ID,
		APIURL:   "https://sms.example.com/api/v1/send",
		APIKey:   "demo-sms-key",
		Username: "demo",
		SenderID: "DEMOISP",
		Format:   constants.SMSFormatJSON,
		IsActive: true,
	}
	if err := models.DB.Where("tenant_id = ?", tenant.ID).FirstOrCreate(&setting).Error; err != nil {
		stdLog.Printf("Failed to create sms setting: %v", err)
	}
	templates := []models.SMSTemplate{
		{
			TenantID: tenant.ID,
			Name:     constants.SMSTemplateSubscriptionRenewed,
			Body:     "Hi {{name}}, KES {{amount}} received. {{package}} active until {{expires_at}}.",
		},
		{
			TenantID: tenant.ID,
			Name:     constants.SMSTemplateVoucherActivated,
			Body:     "Voucher {code} is active until {expires_at}.",
		},
	}
	for _, tpl := range templates {
		if err := models.DB.Where("tenant_id = ? AND name = ?", tpl.TenantID, tpl.Name).FirstOrCreate(&tpl).Error; err != nil {
			stdLog.Printf("Failed to create sms template %s: %v", tpl.Name, err)
		}
	}

	// 演示令牌
	token, expiresAt, err := service.IssueServiceToken(cfg.JWT.SecretKey, cfg.JWT.Issuer, tenant.ID, 30*24*time.Hour)
	if err != nil {
		stdLog.Printf("Failed to issue service token: %v", err)
	} else {
		stdLog.Printf("Service token (expires %s): %s", expiresAt.Format(time.RFC3339), token)
	}

	stdLog.Printf("Seed completed")
}
