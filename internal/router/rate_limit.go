package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lipa-next/internal/http/response"
	"github.com/lipa-next/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int
	Message       string
}

// KEYS[1] 计数 key，KEYS[2] 封禁 key；返回 {计数, 剩余秒数}，计数为 -1 表示处于封禁期
var rateLimitScript = redis.NewScript(`
local blocked = redis.call("TTL", KEYS[2])
if blocked > 0 then
	return {-1, blocked}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) and tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], "1", "EX", ARGV[3])
	return {current, tonumber(ARGV[3])}
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// RateLimitMiddleware Redis 频率限制中间件，Redis 不可用时放行
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	enabled := client != nil && rule.WindowSeconds > 0 && rule.MaxRequests > 0
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		key := rule.key(c, keyFunc)
		counts, err := rateLimitScript.Run(c.Request.Context(), client,
			[]string{key, key + ":block"},
			rule.WindowSeconds, rule.MaxRequests, rule.BlockSeconds,
		).Int64Slice()
		if err != nil || len(counts) < 2 {
			logger.FromContext(c.Request.Context()).Warnw("rate_limit_unavailable", "key", key, "error", err)
			c.Next()
			return
		}
		if counts[0] >= 0 && counts[0] <= int64(rule.MaxRequests) {
			c.Next()
			return
		}
		wait := rule.retryAfter(counts[1])
		c.Header("Retry-After", strconv.Itoa(wait))
		response.Error(c, response.CodeTooManyRequests, fmt.Sprintf("%s, retry after %ds", rule.message(), wait))
		c.Abort()
	}
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

func (r RateLimitRule) key(c *gin.Context, keyFunc RateLimitKeyFunc) string {
	key := ""
	if keyFunc != nil {
		key = strings.TrimSpace(keyFunc(c))
	}
	if key == "" {
		key = c.ClientIP()
	}
	if r.Prefix == "" {
		return key
	}
	return r.Prefix + ":" + key
}

// retryAfter 剩余秒数缺失时退回窗口长度，至少 1 秒
func (r RateLimitRule) retryAfter(ttl int64) int {
	switch {
	case ttl >= 1:
		return int(ttl)
	case r.WindowSeconds >= 1:
		return r.WindowSeconds
	default:
		return 1
	}
}

func (r RateLimitRule) message() string {
	if msg := strings.TrimSpace(r.Message); msg != "" {
		return msg
	}
	return "too many requests"
}
