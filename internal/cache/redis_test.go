package cache

import (
	"context"
	"testing"

	"github.com/lipa-next/internal/config"
)

func TestInitRedisDisabledKeepsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	if Client() != nil {
		t.Fatalf("disabled redis should not expose a client")
	}
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("disabled ping should be nil: %v", err)
	}
	if err := DelGatewayState(context.Background(), "mpesa", "600638"); err != nil {
		t.Fatalf("disabled delete should be nil: %v", err)
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	if got := buildKey(" gateway:mpesa:600638 "); got != redisPrefix+":gateway:mpesa:600638" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := buildKey(""); got != redisPrefix {
		t.Fatalf("empty key want prefix got %s", got)
	}
}
