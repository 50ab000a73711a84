package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/cache"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/repository"
)

// AccountResolver 根据短码 / Till 号定位运营方与网关配置
type AccountResolver struct {
	gatewayRepo repository.GatewayConfigRepository
	cacheTTL    time.Duration
}

// NewAccountResolver 创建账户解析器
func NewAccountResolver(gatewayRepo repository.GatewayConfigRepository, cacheTTL time.Duration) *AccountResolver {
	return &AccountResolver{gatewayRepo: gatewayRepo, cacheTTL: cacheTTL}
}

// ResolveByBusinessID 解析短码，零个或多个运营方命中时拒绝
func (r *AccountResolver) ResolveByBusinessID(ctx context.Context, provider, businessID string) (*models.GatewayConfig, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("%w: empty business id", ErrUnknownTenant)
	}
	configs, err := r.loadConfigs(ctx, provider, businessID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTenant, provider, businessID)
	}
	tenants := make(map[uint]struct{}, len(configs))
	for _, cfg := range configs {
		tenants[cfg.TenantID] = struct{}{}
	}
	if len(tenants) > 1 {
		return nil, fmt.Errorf("%w: %s/%s", ErrAmbiguousTenant, provider, businessID)
	}
	resolved := configs[0]
	return &resolved, nil
}

// ResolveByTenant 获取运营方在某网关下的配置
func (r *AccountResolver) ResolveByTenant(_ context.Context, tenantID uint, provider string) (*models.GatewayConfig, error) {
	cfg, err := r.gatewayRepo.GetActiveByTenant(tenantID, provider)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: tenant %d has no %s gateway", ErrUnknownTenant, tenantID, provider)
	}
	return cfg, nil
}

// Credentials 补齐网关凭证：缓存命中的配置只有路由字段，按 ID 回库读取
func (r *AccountResolver) Credentials(_ context.Context, gateway *models.GatewayConfig) (*models.GatewayConfig, error) {
	if gateway == nil || gateway.ConfigJSON != nil {
		return gateway, nil
	}
	full, err := r.gatewayRepo.GetActiveByID(gateway.ID)
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, fmt.Errorf("%w: gateway %d inactive", ErrUnknownTenant, gateway.ID)
	}
	return full, nil
}

func (r *AccountResolver) loadConfigs(ctx context.Context, provider, businessID string) ([]models.GatewayConfig, error) {
	state, hit, err := cache.GetGatewayState(ctx, provider, businessID)
	if err != nil {
		logger.Warnw("account_resolver_cache_get_failed", "provider", provider, "business_id", businessID, "error", err)
	}
	if hit && state != nil {
		return state.ToModels(), nil
	}

	configs, err := r.gatewayRepo.ListActiveByBusinessID(provider, businessID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetGatewayState(ctx, provider, businessID, cache.BuildGatewayState(configs), r.cacheTTL); err != nil {
		logger.Warnw("account_resolver_cache_set_failed", "provider", provider, "business_id", businessID, "error", err)
	}
	return configs, nil
}
