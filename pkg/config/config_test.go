package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageAzure, cfg.Storage.Backend)
	assert.Equal(t, "user-configs", cfg.Storage.UserContainer)
	assert.Equal(t, "agent-configs", cfg.Storage.AgentContainer)
	assert.Equal(t, 8*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 1000, cfg.Documents.ChunkSize)
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("AGORA_TEST_PORT", "7070")
	t.Setenv("AGORA_TEST_BACKEND", "sqlite")

	path := writeConfig(t, `
server:
  port: ${AGORA_TEST_PORT}
storage:
  backend: ${AGORA_TEST_BACKEND}
  database: ${AGORA_TEST_DB:-local.db}
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "local.db", cfg.Storage.Database)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AGORA_TEST_NAME", "agora")
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${AGORA_TEST_NAME}", "agora"},
		{"$AGORA_TEST_NAME", "agora"},
		{"${AGORA_TEST_MISSING:-fallback}", "fallback"},
		{"${AGORA_TEST_MISSING}", ""},
		{"a-${AGORA_TEST_NAME}-b", "a-agora-b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.in), "input %q", tt.in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults_pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad_backend",
			mutate:  func(c *Config) { c.Storage.Backend = "cassandra" },
			wantErr: "storage.backend",
		},
		{
			name:    "overlap_ge_size",
			mutate:  func(c *Config) { c.Documents.ChunkOverlap = 1000 },
			wantErr: "chunk_overlap",
		},
		{
			name:    "jwks_without_issuer",
			mutate:  func(c *Config) { c.Auth.JWKSURL = "https://login.example/.well-known/jwks.json" },
			wantErr: "auth.issuer",
		},
		{
			name:    "port_out_of_range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	s := &Settings{}
	err := s.Validate(true, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_STORAGE_CONNECTION_STRING")
	assert.Contains(t, err.Error(), "AZURE_SEARCH_SERVICE_ENDPOINT")
	assert.Contains(t, err.Error(), "AZURE_SEARCH_ADMIN_KEY")

	s = &Settings{
		StorageConnectionString: "UseDevelopmentStorage=true",
		SearchEndpoint:          "https://example.search.windows.net",
		SearchAdminKey:          "key",
		UseManagedIdentity:      true,
	}
	assert.NoError(t, s.Validate(true, true))
}

func TestLoadSettingsDevModeDisablesManagedIdentity(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("USE_MANAGED_IDENTITY", "true")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.True(t, s.DevMode)
	assert.False(t, s.UseManagedIdentity)
}
