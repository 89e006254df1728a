package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agoraworks/agora/pkg/identity"
	"github.com/agoraworks/agora/pkg/webjob"
)

// ValidateCmd validates the configuration file and environment settings.
type ValidateCmd struct {
	Storage bool `help:"Also require the Azure storage settings."`
	Search  bool `help:"Also require the Azure search settings."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("no config file specified (use --config)")
	}
	cfg, settings, err := loadConfig(context.Background(), cli.Config, false)
	if err != nil {
		return err
	}
	if err := settings.Validate(c.Storage, c.Search); err != nil {
		return err
	}
	fmt.Printf("Configuration OK (%s backend, port %d)\n", cfg.Storage.Backend, cfg.Server.Port)
	return nil
}

// UseraddCmd creates a portal user directly in the user store.
type UseraddCmd struct {
	Username    string   `required:"" help:"Login name."`
	Password    string   `help:"Password (falls back to AGORA_USER_PASSWORD)."`
	Role        string   `default:"standard" help:"Portal role (admin, manager, standard, limited, guest)."`
	Permissions []string `help:"Agent permissions as agent:action pairs (defaults by role)."`
}

func (c *UseraddCmd) Run(cli *CLI) error {
	ctx := context.Background()

	password := c.Password
	if password == "" {
		password = os.Getenv("AGORA_USER_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("no password given (use --password or AGORA_USER_PASSWORD)")
	}

	cfg, settings, err := loadConfig(ctx, cli.Config, false)
	if err != nil {
		return err
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

	users := identity.NewManager(userCol)
	u, err := users.Create(ctx, c.Username, password, identity.Role(c.Role), c.Permissions)
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s (role %s, %d permissions)\n", u.Username, u.Role, len(u.Permissions))
	return nil
}

// WebjobCmd generates a WebJob deployment package without touching the
// job store, for manual deployment to an App Service.
type WebjobCmd struct {
	Name      string `required:"" help:"Job name."`
	Agent     string `required:"" help:"Agent ID the job serves."`
	Container string `required:"" help:"Blob container the job uploads into."`
	Index     string `help:"Search index to refresh after upload."`
	Folder    string `default:"incoming" help:"Folder the job watches for files."`
	Schedule  string `help:"CRON expression (six fields); omit for a continuous job."`
	Out       string `required:"" help:"Output ZIP path." type:"path"`
}

func (c *WebjobCmd) Run() error {
	generator, err := webjob.NewGenerator()
	if err != nil {
		return fmt.Errorf("building webjob generator: %w", err)
	}

	data, err := generator.Package(webjob.Config{
		JobName:       c.Name,
		AgentID:       c.Agent,
		ContainerName: c.Container,
		IndexName:     c.Index,
		WatchFolder:   c.Folder,
		Scheduled:     c.Schedule != "",
		Schedule:      c.Schedule,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("writing package: %w", err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", c.Out, len(data))
	return nil
}
