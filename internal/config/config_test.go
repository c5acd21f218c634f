package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, FabricMemory, cfg.FabricBackend)
	assert.True(t, cfg.AutoEnroll)
	assert.Equal(t, int64(10485760), cfg.MaxUploadBytes)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.Words())

	r, err := cfg.ReplacementRune()
	require.NoError(t, err)
	assert.Equal(t, '*', r)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("FABRIC_BACKEND", "redis")
	t.Setenv("CHAT_AUTO_ENROLL", "false")
	t.Setenv("MODERATION_WORDS", "scam, fraud ,,")
	t.Setenv("MODERATION_CHAR", "#")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, FabricRedis, cfg.FabricBackend)
	assert.False(t, cfg.AutoEnroll)
	assert.Equal(t, []string{"scam", "fraud"}, cfg.Words())
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nPORT=9999\n"), 0o600))
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	t.Setenv("PORT", "")
	require.NoError(t, os.Unsetenv("PORT"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "9999", cfg.Port)
	t.Cleanup(func() {
		_ = os.Unsetenv("JWT_SECRET")
		_ = os.Unsetenv("PORT")
	})
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{FabricBackend: FabricMemory, ModerationChar: "*"}
	require.NoError(t, base.Validate())

	bad := base
	bad.FabricBackend = "nats"
	assert.Error(t, bad.Validate())

	bad = base
	bad.ModerationChar = "**"
	assert.Error(t, bad.Validate())
}
