package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET_KEY", "")
}

func TestLoad_FailsWithoutSecretKey(t *testing.T) {
	clearRequiredEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_FailsWithShortSecretInProduction(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "too-short")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("SECRET_KEY", "a-development-secret-key-value")
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, Development, cfg.AppEnv)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 5*1024*1024, int(cfg.MaxUploadSize))
	require.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.AllowedImageTypes)
	require.False(t, cfg.IsProduction())
}

func TestLoad_RejectsUnknownAppEnv(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("SECRET_KEY", "a-development-secret-key-value")
	t.Setenv("APP_ENV", "staging")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AcceptsLongSecretInProduction(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}

func TestSplitCSV_TrimsAndDropsEmpty(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitCSV(" a ,b,  ,c"))
	require.Nil(t, splitCSV(""))
}
