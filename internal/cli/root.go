package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/cruciblehq/hap/internal"
	"github.com/cruciblehq/hap/internal/engine"
)

// Represents the root command for the hap CLI.
var RootCmd struct {
	Quiet     bool   `short:"q" help:"Suppress informational output."`
	Debug     bool   `short:"d" help:"Enable debug output."`
	Address   string `help:"Containerd socket address." default:"/run/containerd/containerd.sock" placeholder:"PATH"`
	Namespace string `help:"Containerd namespace." default:"hap"`

	Package PackageCmd `cmd:"" help:"Package an application into a container image."`
	Run     RunCmd     `cmd:"" help:"Run a packaged application."`
	Extract ExtractCmd `cmd:"" help:"Extract package contents from an image."`
	Show    ShowCmd    `cmd:"" help:"Show the manifests of a packaged application."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected
// subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Packages applications into versioned, self-describing container images and runs them."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// Connects to the container engine using the root command flags.
func connect() (*engine.Engine, error) {
	return engine.New(RootCmd.Address, RootCmd.Namespace)
}
