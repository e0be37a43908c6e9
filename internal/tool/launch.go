package tool

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"
)

// Launches the packaged application, replacing the tooling process.
//
// The command comes from the application manifest. Manifest environment
// entries only fill keys the process environment does not already
// carry, so values injected by the launcher keep precedence. This is
// the image's default entrypoint behavior.
func (t *Tool) Launch() error {
	appMan, _, err := t.manifests()
	if err != nil {
		return err
	}

	if len(appMan.Command) == 0 {
		return fmt.Errorf("%w: manifest declares no launch command", ErrTool)
	}

	binary, err := exec.LookPath(appMan.Command[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTool, err)
	}

	env := os.Environ()
	keys := make([]string, 0, len(appMan.Environment))
	for k := range appMan.Environment {
		if _, present := os.LookupEnv(k); present {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+appMan.Environment[k])
	}

	if err := syscall.Exec(binary, appMan.Command, env); err != nil {
		return fmt.Errorf("%w: exec %s: %w", ErrTool, binary, err)
	}
	return nil
}
