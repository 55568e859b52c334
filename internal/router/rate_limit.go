package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mixpitch-payouts/internal/http/response"
	"github.com/mixpitch-payouts/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// rateLimitScript 固定窗口计数：INCR 后补 EXPIRE，返回计数与剩余 TTL。
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
if ttl < 0 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
}

// KeyFunc 根据请求生成限流 key
type KeyFunc func(c *gin.Context) string

// KeyByIP 按客户端 IP 限流
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 按 JSON 字段值加 IP 限流，读取后恢复请求体。
func KeyByIPAndJSONField(field string) KeyFunc {
	return func(c *gin.Context) string {
		value := readJSONField(c, field)
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

func readJSONField(c *gin.Context, field string) string {
	if c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	value, ok := payload[field].(string)
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(value))
}

// RateLimitMiddleware 基于 Redis 的固定窗口限流，client 为空时直接放行。
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFn KeyFunc) gin.HandlerFunc {
	prefix := rule.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	window := rule.WindowSeconds
	if window <= 0 {
		window = 60
	}
	maxRequests := rule.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 30
	}

	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}
		key := fmt.Sprintf("%s:%s", prefix, keyFn(c))

		result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, window).Result()
		if err != nil {
			logger.Warnw("rate_limit_script_failed", "key", key, "error", err)
			response.Error(c, response.CodeInternal, "rate limit unavailable")
			c.Abort()
			return
		}

		values, ok := result.([]interface{})
		if !ok || len(values) != 2 {
			logger.Warnw("rate_limit_script_bad_reply", "key", key)
			c.Next()
			return
		}
		count, countOK := toInt64(values[0])
		ttl, ttlOK := toInt64(values[1])
		if !countOK || !ttlOK {
			c.Next()
			return
		}

		if count > int64(maxRequests) {
			waitSeconds := ttl
			if waitSeconds <= 0 {
				waitSeconds = int64(window)
			}
			c.Writer.Header().Set("Retry-After", fmt.Sprintf("%d", waitSeconds))
			response.Error(c, response.CodeTooManyRequests,
				fmt.Sprintf("too many requests, retry in %d seconds", waitSeconds))
			c.Abort()
			return
		}

		c.Next()
	}
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
