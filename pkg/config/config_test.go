package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/aspy/pkg/types"
)

func TestGatewayConfig_ResolveMode(t *testing.T) {
	cases := []struct {
		name string
		cfg  GatewayConfig
		want GatewayMode
	}{
		{"explicit mock wins over credentials", GatewayConfig{Mode: GatewayModeMock, KeyID: "rzp_live_x", KeySecret: "s"}, GatewayModeMock},
		{"explicit live", GatewayConfig{Mode: GatewayModeLive}, GatewayModeLive},
		{"no credentials", GatewayConfig{}, GatewayModeMock},
		{"placeholder key", GatewayConfig{KeyID: "dummy_key_id", KeySecret: "s"}, GatewayModeMock},
		{"missing secret", GatewayConfig{KeyID: "rzp_test_abc"}, GatewayModeMock},
		{"real credentials", GatewayConfig{KeyID: "rzp_test_abc", KeySecret: "s"}, GatewayModeLive},
		{"unknown mode falls back to credentials", GatewayConfig{Mode: "sandbox", KeyID: "rzp_test_abc", KeySecret: "s"}, GatewayModeLive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.ResolveMode())
		})
	}
}

func TestNew_FromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 9999
gateway:
  mode: mock
  timeout: 3s
plans:
  - name: Free
    type: FREE
    price: 0
    currency: INR
`), 0o600))

	t.Setenv("APP_CONFIG_FILE", file)
	t.Setenv("APP_DATABASE_DSN", "postgres://u:p@db:5432/x?sslmode=disable")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 9999, c.Server.Port)
	assert.Equal(t, "postgres://u:p@db:5432/x?sslmode=disable", c.Database.DSN)
	assert.Equal(t, GatewayModeMock, c.Gateway.ResolveMode())
	assert.Equal(t, 3*time.Second, c.Gateway.Timeout)
	assert.Equal(t, int64(2), c.Execution.FreeRunLimit)
	require.Len(t, c.Plans, 1)
	assert.Equal(t, types.PlanTypeFree, c.Plans[0].Type)
	assert.Nil(t, c.GetPlanConfigByType(types.PlanTypePro))
}

func TestNew_DefaultPlansWhenNoneConfigured(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")

	c, err := New()
	require.NoError(t, err)
	pro := c.GetPlanConfigByType(types.PlanTypePro)
	require.NotNil(t, pro)
	assert.Equal(t, int64(49900), pro.Price)
	assert.Equal(t, "INR", pro.Currency)
}

func TestValidate(t *testing.T) {
	live := GatewayConfig{Mode: GatewayModeLive, KeyID: "rzp_live_abc", KeySecret: "s", WebhookSecret: "w"}
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"dev allows defaults", Config{Env: EnvDev, Auth: AuthConfig{JWTSecret: DefaultJWTSecret}}, ""},
		{"prod rejects default secret", Config{Env: EnvProd, Auth: AuthConfig{JWTSecret: DefaultJWTSecret}}, "auth.jwt_secret"},
		{"prod rejects empty secret", Config{Env: EnvProd}, "auth.jwt_secret"},
		{"prod live without key secret", Config{Env: EnvProd, Auth: AuthConfig{JWTSecret: "k"}, Gateway: GatewayConfig{Mode: GatewayModeLive, KeyID: "rzp_live_abc"}}, "gateway.key_secret"},
		{"prod live without webhook secret", Config{Env: EnvProd, Auth: AuthConfig{JWTSecret: "k"}, Gateway: GatewayConfig{Mode: GatewayModeLive, KeyID: "rzp_live_abc", KeySecret: "s"}}, "gateway.webhook_secret"},
		{"prod mock needs no gateway secrets", Config{Env: EnvProd, Auth: AuthConfig{JWTSecret: "k"}, Gateway: GatewayConfig{Mode: GatewayModeMock}}, ""},
		{"prod live fully configured", Config{Env: EnvProd, Auth: AuthConfig{JWTSecret: "k"}, Gateway: live}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestNew_RejectsDefaultSecretInProd(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_ENV", "prod")

	_, err := New()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("APP_AUTH_JWT_SECRET", "a-real-secret")
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, EnvProd, c.Env)
}
