// Package config loads the portal's configuration: a YAML file for server
// shape (port, auth, stores, logging) and environment variables for the
// Azure service settings. String values in the YAML support ${VAR} and
// ${VAR:-default} expansion.
package config

import (
	"fmt"
	"time"
)

const (
	// DefaultPort is the HTTP listen port.
	DefaultPort = 8080

	// DefaultSessionTTL is how long an idle portal session survives.
	DefaultSessionTTL = 8 * time.Hour
)

// Storage backends.
const (
	StorageAzure  = "azure"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Documents DocumentsConfig `yaml:"documents" mapstructure:"documents"`
	Logger    LoggerConfig    `yaml:"logger" mapstructure:"logger"`
}

// ServerConfig shapes the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	// Backend: "azure" (blob containers), "sqlite" (local file), or
	// "memory" (nothing persists).
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Database is the SQLite file path for the sqlite backend.
	Database string `yaml:"database" mapstructure:"database"`

	// Containers for the portal's own records.
	UserContainer  string `yaml:"user_container" mapstructure:"user_container"`
	AgentContainer string `yaml:"agent_container" mapstructure:"agent_container"`
	JobContainer   string `yaml:"job_container" mapstructure:"job_container"`
}

// AuthConfig shapes portal authentication.
type AuthConfig struct {
	// SessionTTL bounds idle portal sessions.
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`

	// DefaultAdminUser is created on first start when no users exist.
	// Its password must come from the environment, never from this file.
	DefaultAdminUser string `yaml:"default_admin_user" mapstructure:"default_admin_user"`

	// JWKSURL/Issuer/Audience enable bearer-token auth for API clients
	// carrying Azure AD access tokens.
	JWKSURL  string `yaml:"jwks_url" mapstructure:"jwks_url"`
	Issuer   string `yaml:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" mapstructure:"audience"`
}

// DocumentsConfig shapes document indexing.
type DocumentsConfig struct {
	ChunkSize    int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`

	// MaxUploadMB bounds a single document upload.
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LoggerConfig shapes logging; CLI flags and env override these.
type LoggerConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageAzure
	}
	if c.Storage.Database == "" {
		c.Storage.Database = ".agora/agora.db"
	}
	if c.Storage.UserContainer == "" {
		c.Storage.UserContainer = "user-configs"
	}
	if c.Storage.AgentContainer == "" {
		c.Storage.AgentContainer = "agent-configs"
	}
	if c.Storage.JobContainer == "" {
		c.Storage.JobContainer = "job-configs"
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}
	if c.Auth.DefaultAdminUser == "" {
		c.Auth.DefaultAdminUser = "admin"
	}
	if c.Documents.ChunkSize == 0 {
		c.Documents.ChunkSize = 1000
	}
	if c.Documents.ChunkOverlap == 0 {
		c.Documents.ChunkOverlap = 200
	}
	if c.Documents.MaxUploadMB == 0 {
		c.Documents.MaxUploadMB = 50
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case StorageAzure, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("storage.backend %q not one of azure, sqlite, memory", c.Storage.Backend)
	}
	if c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("documents.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Documents.ChunkOverlap, c.Documents.ChunkSize)
	}
	if c.Auth.JWKSURL != "" && c.Auth.Issuer == "" {
		return fmt.Errorf("auth.issuer is required when auth.jwks_url is set")
	}
	return nil
}

// Default returns a config with all defaults applied, for zero-config runs.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
