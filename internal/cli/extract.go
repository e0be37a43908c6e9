package cli

import (
	"context"

	"github.com/cruciblehq/hap/internal/runner"
)

// Represents the 'hap extract' command.
type ExtractCmd struct {
	Image  string `arg:"" help:"Packaged application image to extract from."`
	Output string `short:"o" required:"" help:"Existing writable directory to extract into." type:"path"`

	App       bool `help:"Extract the application files."`
	Models    bool `help:"Extract the model files."`
	Docs      bool `help:"Extract the documentation."`
	Config    bool `help:"Extract the application config."`
	Manifests bool `help:"Extract the package manifests."`
}

// Executes the extract command.
//
// With no selection flags everything the package carries is extracted.
func (c *ExtractCmd) Run(ctx context.Context) error {
	sel := runner.Selection{
		App:       c.App,
		Models:    c.Models,
		Docs:      c.Docs,
		Config:    c.Config,
		Manifests: c.Manifests,
	}
	if !c.App && !c.Models && !c.Docs && !c.Config && !c.Manifests {
		sel = runner.Selection{App: true, Models: true, Docs: true, Config: true, Manifests: true}
	}

	eng, err := connect()
	if err != nil {
		return err
	}
	defer eng.Close()

	return runner.New(eng).Extract(ctx, c.Image, sel, c.Output)
}
