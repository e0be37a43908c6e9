package cli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/hap/internal/runner"
)

// Represents the 'hap show' command.
type ShowCmd struct {
	Image string `arg:"" help:"Packaged application image to inspect."`
	Which string `arg:"" optional:"" enum:",app,pkg" help:"Manifest to print (app or pkg); both when omitted."`
}

// Executes the show command, printing the selected manifests as JSON.
func (c *ShowCmd) Run(ctx context.Context) error {
	eng, err := connect()
	if err != nil {
		return err
	}
	defer eng.Close()

	appMan, pkgMan, err := runner.New(eng).Manifests(ctx, c.Image)
	if err != nil {
		return err
	}

	if c.Which != "pkg" {
		appJSON, err := appMan.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(appJSON))
	}
	if c.Which != "app" {
		pkgJSON, err := pkgMan.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(pkgJSON))
	}
	return nil
}
