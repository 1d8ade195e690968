package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "data/purchase.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, service.DefaultFallbackPolicy(), cfg.Workflow.Fallback)
	assert.True(t, cfg.Seed.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, time.Minute, cfg.Metrics.BacklogInterval)
}

func TestLoad_FileValues(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load(writeConfig(t, `
database:
  path: /tmp/x.db
  busy_timeout: 2s
auth:
  token_ttl: 1h
workflow:
  fallback:
    chains:
      - requester_role: TEACHER
        roles: [DEPARTMENT_HEAD, CEO]
    default: [CEO]
seed:
  enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, service.FallbackPolicy{
		Chains:  []service.FallbackChain{{RequesterRole: "TEACHER", Roles: []string{"DEPARTMENT_HEAD", "CEO"}}},
		Default: []string{"CEO"},
	}, cfg.Workflow.Fallback)
	assert.False(t, cfg.Seed.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_PATH", "/var/lib/purchase.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "database:\n  path: file.db\nlogger:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/purchase.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	t.Setenv("JWT_SECRET", "")
	_, err = Load(writeConfig(t, "server:\n  port: 8080\n"))
	assert.ErrorContains(t, err, "auth.jwt_secret is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "x.db"},
			Auth:     AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
			Workflow: WorkflowConfig{Fallback: service.DefaultFallbackPolicy()},
			Seed:     SeedConfig{Enabled: true, Path: "seed.yaml"},
			Metrics:  MetricsConfig{Enabled: true, Path: "/metrics", BacklogInterval: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "at least 32 bytes"},
		{name: "ttl", mutate: func(c *Config) { c.Auth.TokenTTL = 0 }, wantErr: "token_ttl"},
		{name: "fallback", mutate: func(c *Config) { c.Workflow.Fallback = service.FallbackPolicy{} }, wantErr: "workflow.fallback"},
		{name: "seed path", mutate: func(c *Config) { c.Seed.Path = "" }, wantErr: "seed.path"},
		{name: "seed disabled", mutate: func(c *Config) { c.Seed = SeedConfig{} }},
		{name: "metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, wantErr: "metrics.path"},
		{name: "backlog interval", mutate: func(c *Config) { c.Metrics.BacklogInterval = 0 }, wantErr: "backlog_interval"},
		{name: "metrics disabled", mutate: func(c *Config) { c.Metrics = MetricsConfig{} }},
		{name: "lark without credentials", mutate: func(c *Config) { c.Notify.Lark = LarkConfig{Enabled: true, AppID: "cli_a1"} }, wantErr: "notify.lark"},
		{name: "lark configured", mutate: func(c *Config) { c.Notify.Lark = LarkConfig{Enabled: true, AppID: "cli_a1", AppSecret: "s"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
