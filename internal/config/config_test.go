package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("MONGODB_DATABASE", "viewtube_test")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_ACCESS_SECRET", "access-secret-3456789012345678901234")
	os.Setenv("JWT_REFRESH_SECRET", "refresh-secret-456789012345678901234")
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.JWT.AccessTokenTTL >= cfg.JWT.RefreshTokenTTL {
		t.Fatalf("access TTL should be much shorter than refresh TTL: %v vs %v",
			cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
}

func TestLoadConfig_RejectsSharedSecret(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("JWT_REFRESH_SECRET", os.Getenv("JWT_ACCESS_SECRET"))
	defer os.Setenv("JWT_REFRESH_SECRET", "refresh-secret-456789012345678901234")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when access and refresh secrets are identical")
	}
}
