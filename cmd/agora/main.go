// Command agora is the CLI for the agora portal.
//
// Usage:
//
//	agora serve --config config.yaml
//	agora useradd --username ayse --password secret --role standard
//	agora webjob --name nightly-sync --agent scm --container scm-docs --out nightly-sync.zip
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the portal server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Useradd  UseraddCmd  `cmd:"" help:"Create a portal user."`
	Webjob   WebjobCmd   `cmd:"" help:"Generate a WebJob deployment package."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agora version %s\n", version)
	return nil
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("agora"),
		kong.Description("Multi-tenant document and chat portal."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat)
	kctx.FatalIfErrorf(err)

	err = kctx.Run(cli)
	if cleanup != nil {
		cleanup()
	}
	kctx.FatalIfErrorf(err)
}
