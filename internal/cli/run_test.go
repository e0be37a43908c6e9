package cli

import (
	"testing"

	"github.com/alecthomas/kong"
)

func parseRun(t *testing.T, args ...string) *RunCmd {
	t.Helper()

	var cmd struct {
		Run RunCmd `cmd:""`
	}
	parser, err := kong.New(&cmd)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse(append([]string{"run"}, args...)); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return &cmd.Run
}

func TestRunFlagDefaults(t *testing.T) {
	c := parseRun(t, "registry/app:1.0")

	if c.Image != "registry/app:1.0" {
		t.Errorf("image = %q, want registry/app:1.0", c.Image)
	}
	if !c.Rm {
		t.Error("containers kept by default")
	}
	if c.Model != "" || c.Docs != "" {
		t.Errorf("model = %q, docs = %q, want empty", c.Model, c.Docs)
	}
}

func TestRunNoRmKeepsContainer(t *testing.T) {
	c := parseRun(t, "registry/app:1.0", "--no-rm")

	if c.Rm {
		t.Fatal("--no-rm did not disable removal")
	}
}

func TestRunMountFlags(t *testing.T) {
	c := parseRun(t, "registry/app:1.0", "--model", "/data/models", "--docs", "/data/docs")

	if c.Model != "/data/models" {
		t.Errorf("model = %q, want /data/models", c.Model)
	}
	if c.Docs != "/data/docs" {
		t.Errorf("docs = %q, want /data/docs", c.Docs)
	}
}
