package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cruciblehq/hap/internal/runner"
)

// Represents the 'hap run' command.
type RunCmd struct {
	Image string `arg:"" help:"Packaged application image to run."`

	Input   string        `short:"i" help:"Host directory mounted read-only at the package's input path." type:"path"`
	Output  string        `short:"o" help:"Host directory for results; created if missing." default:"output" type:"path"`
	Model   string        `short:"m" help:"Host directory mounted read-only over the package's models." type:"path"`
	Docs    string        `help:"Host directory mounted read-only over the package's documentation." type:"path"`
	Config  string        `help:"Host config file mounted over the baked-in application config." type:"path"`
	Env     []string      `short:"e" help:"Additional environment entries (KEY=value)."`
	Timeout time.Duration `help:"Override the package's timeout."`
	Rm      bool          `default:"true" negatable:"" help:"Remove the container after it exits."`
}

// Carries a nonzero application exit code out of the CLI so the
// process can pass it through.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("application exited with code %d", e.Code)
}

// Executes the run command.
//
// The application's exit code is passed through: a nonzero exit
// surfaces as an [ExitError] carrying the code.
func (c *RunCmd) Run(ctx context.Context) error {
	eng, err := connect()
	if err != nil {
		return err
	}
	defer eng.Close()

	code, err := runner.New(eng).Run(ctx, &runner.Options{
		Image:         c.Image,
		InputDir:      c.Input,
		OutputDir:     c.Output,
		ModelDir:      c.Model,
		DocsDir:       c.Docs,
		ConfigPath:    c.Config,
		Env:           c.Env,
		Timeout:       c.Timeout,
		KeepContainer: !c.Rm,
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
