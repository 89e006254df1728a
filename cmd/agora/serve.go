package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agoraworks/agora/pkg/agents"
	"github.com/agoraworks/agora/pkg/assistant"
	"github.com/agoraworks/agora/pkg/config"
	"github.com/agoraworks/agora/pkg/documents"
	"github.com/agoraworks/agora/pkg/embedder"
	"github.com/agoraworks/agora/pkg/identity"
	"github.com/agoraworks/agora/pkg/jobs"
	"github.com/agoraworks/agora/pkg/search"
	"github.com/agoraworks/agora/pkg/server"
	"github.com/agoraworks/agora/pkg/store"
	"github.com/agoraworks/agora/pkg/webjob"
)

// adminPasswordEnvVar bootstraps the first admin user. There is no
// built-in default password.
const adminPasswordEnvVar = "AGORA_ADMIN_PASSWORD"

// ServeCmd starts the portal server.
type ServeCmd struct {
	Host  string `help:"Host to bind to."`
	Port  int    `help:"Port to listen on."`
	Watch bool   `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, settings, err := loadConfig(ctx, cli.Config, c.Watch)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	provider, err := newStoreProvider(cfg, settings)
	if err != nil {
		return err
	}
	defer provider.Close()

	userCol, err := provider.Collection(ctx, cfg.Storage.UserContainer)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	agentCol, err := provider.Collection(ctx, cfg.Storage.AgentContainer)
	if err != nil {
		return fmt.Errorf("opening agent store: %w", err)
	}
	jobCol, err := provider.Collection(ctx, cfg.Storage.JobContainer)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}

	userMgr := identity.NewManager(userCol)
	agentMgr := agents.NewManager(agentCol)

	if err := userMgr.EnsureDefaultAdmin(ctx, cfg.Auth.DefaultAdminUser, os.Getenv(adminPasswordEnvVar)); err != nil {
		return fmt.Errorf("bootstrapping admin user: %w", err)
	}

	var searcher documents.Searcher
	if settings.SearchEndpoint != "" && settings.SearchAdminKey != "" {
		sc, err := search.NewClient(settings.SearchEndpoint, settings.SearchAdminKey)
		if err != nil {
			return fmt.Errorf("building search client: %w", err)
		}
		searcher = sc
	} else {
		slog.Warn("search service not configured; document index cleanup disabled")
	}

	docOpts := []documents.ManagerOption{documents.WithLogger(slog.Default())}
	if settings.OpenAIEndpoint != "" && settings.OpenAIAPIKey != "" {
		emb, err := embedder.NewClient(settings.OpenAIEndpoint, settings.OpenAIAPIKey,
			embedder.WithDeployment(settings.EmbeddingModel),
			embedder.WithAPIVersion(settings.OpenAIAPIVersion))
		if err != nil {
			return fmt.Errorf("building embedding client: %w", err)
		}
		docOpts = append(docOpts, documents.WithEmbedder(emb))
	}
	if cfg.Documents.ChunkSize != 1000 || cfg.Documents.ChunkOverlap != 200 {
		chunker, err := documents.NewChunker(cfg.Documents.ChunkSize, cfg.Documents.ChunkOverlap)
		if err != nil {
			return fmt.Errorf("building chunker: %w", err)
		}
		docOpts = append(docOpts, documents.WithChunker(chunker))
	}
	docMgr, err := documents.NewManager(provider, searcher, docOpts...)
	if err != nil {
		return fmt.Errorf("building document manager: %w", err)
	}

	generator, err := webjob.NewGenerator()
	if err != nil {
		return fmt.Errorf("building webjob generator: %w", err)
	}
	jobMgr := jobs.NewManager(jobCol, generator, slog.Default())

	var chat server.ChatService
	if settings.AIAgentsHost != "" {
		cred, err := settings.Credential()
		if err != nil {
			return fmt.Errorf("building agent credential: %w", err)
		}
		ac, err := assistant.NewClient(settings.AIAgentsHost, assistant.CredentialTokenProvider(cred))
		if err != nil {
			return fmt.Errorf("building assistant client: %w", err)
		}
		chat = server.NewAssistantChat(ac)
	} else {
		slog.Warn("agent service not configured; chat endpoints disabled")
	}

	var aad *identity.AADClient
	if settings.TenantID != "" && settings.ClientID != "" {
		aad = identity.NewAADClient(settings.TenantID, settings.ClientID, settings.ClientSecret, settings.RedirectURI)
	}

	var tokens server.TokenValidator
	if cfg.Auth.JWKSURL != "" {
		tv, err := identity.NewTokenValidator(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return fmt.Errorf("building token validator: %w", err)
		}
		tokens = tv
	}

	srv, err := server.New(server.Options{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Users:      userMgr,
		Agents:     agentMgr,
		Documents:  docMgr,
		Jobs:       jobMgr,
		Chat:       chat,
		AAD:        aad,
		Tokens:     tokens,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	slog.Info("portal starting",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"storage", cfg.Storage.Backend)
	return srv.Start(ctx)
}

// loadConfig reads .env files, the YAML config, and the Azure settings.
func loadConfig(ctx context.Context, path string, watch bool) (*config.Config, *config.Settings, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, nil, err
	}

	cfg := config.Default()
	if path != "" {
		loader := config.NewLoader(path)
		loaded, err := loader.Load()
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
		if watch {
			go func() {
				if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
					slog.Error("config watch failed", "error", err)
				}
			}()
		}
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}
	return cfg, settings, nil
}

// newStoreProvider selects the record store backend.
func newStoreProvider(cfg *config.Config, settings *config.Settings) (store.Provider, error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return store.NewMemoryProvider(), nil
	case config.StorageSQLite:
		return store.NewSQLiteProvider(cfg.Storage.Database)
	case config.StorageAzure:
		if err := settings.Validate(true, false); err != nil {
			return nil, err
		}
		if settings.StorageConnectionString != "" {
			return store.NewBlobProviderFromConnectionString(settings.StorageConnectionString)
		}
		cred, err := settings.Credential()
		if err != nil {
			return nil, fmt.Errorf("building storage credential: %w", err)
		}
		return store.NewBlobProviderWithCredential(settings.BlobServiceURL(), cred)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
