package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSecretKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"valid", strings.Repeat("k", 64), ""},
		{"empty", "", "must be set"},
		{"too short", strings.Repeat("k", 63), "at least 64"},
		{"placeholder default", "default-" + strings.Repeat("k", 60), "changed from default"},
		{"placeholder your-secret", "your-secret-" + strings.Repeat("k", 60), "changed from default"},
		{"placeholder case insensitive", "YOUR-SUPER-SECRET-" + strings.Repeat("k", 60), "changed from default"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSecretKey(tc.key)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestLoadRequiresSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", strings.Repeat("k", 64))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "mig-catalog-api", cfg.Auth.Issuer)
	assert.Equal(t, "mig-catalog-users", cfg.Auth.Audience)
	assert.Equal(t, 10, cfg.Security.MaxFailedAttempts)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NotEmpty(t, cfg.RateLimit.Rules)
	assert.Equal(t, "0.0.0.0:8000", cfg.GetServerAddress())
}

func TestProductionValidation(t *testing.T) {
	t.Setenv("SECRET_KEY", strings.Repeat("k", 64))
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REDIS_URL", "redis://redis.internal:6379")

	t.Run("requires rotation key", func(t *testing.T) {
		t.Setenv("ROTATION_SECRET_KEY", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects localhost redis", func(t *testing.T) {
		t.Setenv("ROTATION_SECRET_KEY", strings.Repeat("r", 64))
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects wildcard origins", func(t *testing.T) {
		t.Setenv("ROTATION_SECRET_KEY", strings.Repeat("r", 64))
		t.Setenv("ALLOWED_ORIGINS", "*")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("valid production config", func(t *testing.T) {
		t.Setenv("ROTATION_SECRET_KEY", strings.Repeat("r", 64))
		t.Setenv("ALLOWED_ORIGINS", "https://catalog.example.com")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
	})
}
