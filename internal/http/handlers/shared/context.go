package shared

import (
	"github.com/gin-gonic/gin"
)

// ContextTenantID 读取服务令牌中的运营方范围，0 表示不限
func ContextTenantID(c *gin.Context) uint {
	value, exists := c.Get("tenant_id")
	if !exists {
		return 0
	}
	switch v := value.(type) {
	case uint:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return uint(v)
	case float64:
		if v < 0 {
			return 0
		}
		return uint(v)
	default:
		return 0
	}
}

// TenantAllowed 判断资源是否在令牌范围内
func TenantAllowed(c *gin.Context, tenantID uint) bool {
	scope := ContextTenantID(c)
	return scope == 0 || scope == tenantID
}
