package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/models"
)

const defaultGatewayStateTTL = time.Minute

// GatewayConfigState 网关路由快照，不含凭证
type GatewayConfigState struct {
	ID         uint   `json:"id"`
	TenantID   uint   `json:"tenant_id"`
	Provider   string `json:"provider"`
	Kind       string `json:"kind"`
	BusinessID string `json:"business_id"`
}

// GatewayState 短码对应的启用配置集合，空集合同样缓存
type GatewayState struct {
	Configs   []GatewayConfigState `json:"configs"`
	UpdatedAt int64                `json:"updated_at"`
}

func gatewayStateKey(provider, businessID string) string {
	return fmt.Sprintf("gateway:%s:%s", strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(businessID))
}

// BuildGatewayState 从网关配置列表构建快照
func BuildGatewayState(configs []models.GatewayConfig) *GatewayState {
	state := &GatewayState{
		Configs:   make([]GatewayConfigState, 0, len(configs)),
		UpdatedAt: time.Now().Unix(),
	}
	for _, cfg := range configs {
		state.Configs = append(state.Configs, GatewayConfigState{
			ID:         cfg.ID,
			TenantID:   cfg.TenantID,
			Provider:   cfg.Provider,
			Kind:       cfg.Kind,
			BusinessID: cfg.BusinessID,
		})
	}
	return state
}

// ToModels 还原为网关配置模型，ConfigJSON 为空，需要凭证时按 ID 回库读取
func (s *GatewayState) ToModels() []models.GatewayConfig {
	if s == nil {
		return nil
	}
	result := make([]models.GatewayConfig, 0, len(s.Configs))
	for _, item := range s.Configs {
		result = append(result, models.GatewayConfig{
			ID:         item.ID,
			TenantID:   item.TenantID,
			Provider:   item.Provider,
			Kind:       item.Kind,
			BusinessID: item.BusinessID,
			IsActive:   true,
		})
	}
	return result
}

// GetGatewayState 获取短码路由快照
func GetGatewayState(ctx context.Context, provider, businessID string) (*GatewayState, bool, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, false, nil
	}
	var state GatewayState
	hit, err := GetJSON(ctx, gatewayStateKey(provider, businessID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetGatewayState 写入短码路由快照
func SetGatewayState(ctx context.Context, provider, businessID string, state *GatewayState, ttl time.Duration) error {
	if state == nil || strings.TrimSpace(businessID) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultGatewayStateTTL
	}
	return SetJSON(ctx, gatewayStateKey(provider, businessID), state, ttl)
}

// DelGatewayState 删除短码路由快照
func DelGatewayState(ctx context.Context, provider, businessID string) error {
	if strings.TrimSpace(businessID) == "" {
		return nil
	}
	return Del(ctx, gatewayStateKey(provider, businessID))
}
