package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/cruciblehq/hap/internal"
	"github.com/cruciblehq/hap/internal/tool"
)

// Represents the root command for the in-image tooling.
var rootCmd struct {
	Launch  launchCmd  `cmd:"" default:"1" help:"Launch the packaged application (default)."`
	Show    showCmd    `cmd:"" help:"Print the package manifests."`
	Env     envCmd     `cmd:"" help:"Print the environment contract, secrets redacted."`
	Extract extractCmd `cmd:"" help:"Copy package contents into the export mount."`
	Version versionCmd `cmd:"" help:"Show version information."`
}

type launchCmd struct{}

func (c *launchCmd) Run(t *tool.Tool) error { return t.Launch() }

type showCmd struct {
	Which string `arg:"" optional:"" enum:",app,pkg" help:"Manifest to print (app or pkg); both when omitted."`
}

func (c *showCmd) Run(t *tool.Tool) error { return t.Show(c.Which) }

type envCmd struct{}

func (c *envCmd) Run(t *tool.Tool) error { return t.Env() }

type extractCmd struct {
	Scope string `arg:"" optional:"" default:"all" enum:"all,app,models,docs,config" help:"What to copy out (app, models, docs, config, or all)."`
}

func (c *extractCmd) Run(t *tool.Tool) error { return t.Extract(c.Scope) }

type versionCmd struct{}

func (c *versionCmd) Run(t *tool.Tool) error {
	_, err := os.Stdout.WriteString(internal.VersionString() + "\n")
	return err
}

// The entry point for the tooling baked into every packaged image.
func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	kongCtx := kong.Parse(&rootCmd,
		kong.Name(internal.Name+"-tool"),
		kong.Description("In-image tooling for packaged applications."),
		kong.UsageOnError(),
	)

	t := tool.New(os.Stdout, os.Stderr)

	if err := kongCtx.Run(t); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
