package config

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/kelseyhightower/envconfig"
)

// Settings holds the Azure service settings read from the environment.
// There are deliberately no baked-in defaults for credentials: an unset
// value stays empty and Validate names it, instead of silently falling back.
type Settings struct {
	ClientID       string `envconfig:"AZURE_CLIENT_ID"`
	ClientSecret   string `envconfig:"AZURE_CLIENT_SECRET"`
	TenantID       string `envconfig:"AZURE_TENANT_ID"`
	SubscriptionID string `envconfig:"AZURE_SUBSCRIPTION_ID"`
	ResourceGroup  string `envconfig:"AZURE_RESOURCE_GROUP"`
	AIProjectName  string `envconfig:"AZURE_AI_PROJECT_NAME"`
	AIAgentsHost   string `envconfig:"AZURE_AI_AGENTS_ENDPOINT"`

	StorageConnectionString string `envconfig:"AZURE_STORAGE_CONNECTION_STRING"`
	StorageAccountName      string `envconfig:"AZURE_STORAGE_ACCOUNT_NAME"`

	SearchEndpoint string `envconfig:"AZURE_SEARCH_SERVICE_ENDPOINT"`
	SearchAdminKey string `envconfig:"AZURE_SEARCH_ADMIN_KEY"`

	OpenAIEndpoint   string `envconfig:"AZURE_OPENAI_ENDPOINT"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIAPIVersion string `envconfig:"AZURE_OPENAI_API_VERSION" default:"2023-05-15"`
	EmbeddingModel   string `envconfig:"AZURE_OPENAI_EMBEDDING_MODEL" default:"text-embedding-ada-002"`

	RedirectURI        string `envconfig:"REDIRECT_URI"`
	DevMode            bool   `envconfig:"DEV_MODE"`
	UseManagedIdentity bool   `envconfig:"USE_MANAGED_IDENTITY" default:"true"`
}

// LoadSettings reads the Azure settings from the environment. LoadEnvFiles
// should run first so .env values are visible.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("reading environment settings: %w", err)
	}
	// Local development cannot use managed identity.
	if s.DevMode {
		s.UseManagedIdentity = false
	}
	return &s, nil
}

// Validate checks that the settings required by the requested features are
// present, and reports every missing variable at once.
func (s *Settings) Validate(requireStorage, requireSearch bool) error {
	var missing []string
	if requireStorage && s.StorageConnectionString == "" && s.StorageAccountName == "" {
		missing = append(missing, "AZURE_STORAGE_CONNECTION_STRING or AZURE_STORAGE_ACCOUNT_NAME")
	}
	if requireSearch {
		if s.SearchEndpoint == "" {
			missing = append(missing, "AZURE_SEARCH_SERVICE_ENDPOINT")
		}
		if s.SearchAdminKey == "" {
			missing = append(missing, "AZURE_SEARCH_ADMIN_KEY")
		}
	}
	if !s.UseManagedIdentity && s.StorageConnectionString == "" {
		if s.TenantID == "" {
			missing = append(missing, "AZURE_TENANT_ID")
		}
		if s.ClientID == "" {
			missing = append(missing, "AZURE_CLIENT_ID")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Credential selects the token credential: managed identity in production,
// service principal when a client secret is configured, otherwise the
// default chain (az cli, environment).
func (s *Settings) Credential() (azcore.TokenCredential, error) {
	if s.UseManagedIdentity {
		return azidentity.NewManagedIdentityCredential(nil)
	}
	if s.TenantID != "" && s.ClientID != "" && s.ClientSecret != "" {
		return azidentity.NewClientSecretCredential(s.TenantID, s.ClientID, s.ClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

// BlobServiceURL returns the account endpoint used with token credentials.
func (s *Settings) BlobServiceURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", s.StorageAccountName)
}
