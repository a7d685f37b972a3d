package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigDefaultsAndSecrets(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("JWT_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("DB_PASSWORD", "db-pass")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db-pass", cfg.Database.Password)
	assert.Equal(t, "access", cfg.JWT.Secret)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessTTL)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Equal(t, 8, cfg.Security.PasswordPolicy.MinLength)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, "database:\n  driver: postgres\n")
	t.Setenv("JWT_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("ACCOUNTSEC_DATABASE_DRIVER", "memory")
	t.Setenv("ACCOUNTSEC_SERVER_PORT", "7070")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfigParsesLockoutBands(t *testing.T) {
	dir := writeConfig(t, `
security:
  lockout_bands:
    - threshold: 3
      duration: 5m
`)
	t.Setenv("JWT_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Security.LockoutBands, 1)
	assert.Equal(t, 3, cfg.Security.LockoutBands[0].Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Security.LockoutBands[0].Duration)
}

func TestLoadConfigRequiresJWTSecrets(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{
		JWT:      JWTConfig{Secret: "a", RefreshSecret: "b"},
		Database: DatabaseConfig{Driver: "mysql"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateBootstrap(t *testing.T) {
	base := Config{
		JWT:      JWTConfig{Secret: "a", RefreshSecret: "b"},
		Database: DatabaseConfig{Driver: "memory"},
	}

	tests := []struct {
		name      string
		bootstrap BootstrapConfig
		wantErr   bool
	}{
		{name: "disabled", bootstrap: BootstrapConfig{}},
		{
			name:      "complete",
			bootstrap: BootstrapConfig{OrganizationID: "7d0f1c36-3f5b-4f0e-9a55-0c6f1d2b8e11", AdminEmail: "root@clinic.example", AdminPassword: "bootstrap-secret-1"},
		},
		{
			name:      "bad organization",
			bootstrap: BootstrapConfig{OrganizationID: "clinic-1", AdminEmail: "root@clinic.example", AdminPassword: "bootstrap-secret-1"},
			wantErr:   true,
		},
		{
			name:      "missing password",
			bootstrap: BootstrapConfig{OrganizationID: "7d0f1c36-3f5b-4f0e-9a55-0c6f1d2b8e11", AdminEmail: "root@clinic.example"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Bootstrap = tt.bootstrap
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
