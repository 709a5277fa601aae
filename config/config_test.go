package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("ADMIN_USERS", "")
	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.RedisEnabled())
	assert.Empty(t, cfg.AdminUsers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("MEDIA_DRIVER", "memory")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("JWT_TTL", "not-a-duration")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("ADMIN_USERS", "alice:$2a$10$abc, bob:$2a$10$def ,broken,:nohash")

	cfg := FromEnv()
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.JWTTTL)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, map[string]string{"alice": "$2a$10$abc", "bob": "$2a$10$def"}, cfg.AdminUsers)
}

func TestValidate(t *testing.T) {
	cfg := &Config{StoreDriver: DriverMemory, MediaDriver: DriverMemory, CacheTTL: time.Minute}
	require.NoError(t, cfg.Validate(false))
	assert.Error(t, cfg.Validate(true), "server needs a JWT secret")

	cfg.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate(true))

	cfg.StoreDriver = "postgres"
	assert.Error(t, cfg.Validate(false))

	cfg.StoreDriver = DriverMySQL
	cfg.MediaDriver = "s3"
	assert.Error(t, cfg.Validate(false))
}
