package plan

import (
	"errors"
	"fmt"
)

var ErrPlan = errors.New("invalid build plan")

// Stage names used by the renderer. The release stage is always last and
// is the stage exported as the final image.
const (
	StageBuilder = "builder"
	StageBase    = "base"
	StageRelease = "release"
)

// A file transfer into a stage's filesystem.
//
// An empty Stage copies from the build context; otherwise Src is read from
// the named earlier stage. Cross-stage copies always name concrete paths,
// never wildcards, so the provenance of every released file is traceable.
type Copy struct {
	Stage string // Source stage name; empty for build context copies.
	Src   string
	Dst   string
}

// A shell command executed inside a stage's container.
//
// The ID identifies the step for deduplication: two features contributing
// the same step (same ID) install it once.
type InstallStep struct {
	ID  string
	Run string
}

// One stage of a multi-stage image build.
type Stage struct {
	Name      string
	From      string            // Base image reference, or an earlier stage name.
	FromStage bool              // True when From names an earlier stage.
	Copies    []Copy
	Steps     []InstallStep
	Env       map[string]string // Environment baked into the stage's image config.
}

// An ordered multi-stage build description.
//
// Stages are appended in dependency order and never reordered, so
// cross-stage references are acyclic by construction. Collection stages
// have no edges between each other and may be built in parallel by the
// engine; the release stage's copy edges are what force them to complete
// first.
type Plan struct {
	Stages []Stage
	Target string // Name of the stage exported as the final image.
}

// Returns the position of a named stage, or -1.
func (p *Plan) index(name string) int {
	for i, s := range p.Stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Checks the plan's structural invariants: unique stage names, and
// cross-stage references (copies and stage bases) only to earlier stages.
func (p *Plan) validate() error {
	seen := make(map[string]bool, len(p.Stages))
	for i, s := range p.Stages {
		if s.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrPlan, i+1)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate stage name %q", ErrPlan, s.Name)
		}

		if s.FromStage {
			j := p.index(s.From)
			if j < 0 || j >= i {
				return fmt.Errorf("%w: stage %q derives from %q which is not an earlier stage", ErrPlan, s.Name, s.From)
			}
		}

		for _, c := range s.Copies {
			if c.Stage == "" {
				continue
			}
			j := p.index(c.Stage)
			if j < 0 || j >= i {
				return fmt.Errorf("%w: stage %q copies from %q which is not an earlier stage", ErrPlan, s.Name, c.Stage)
			}
		}

		seen[s.Name] = true
	}

	if p.index(p.Target) < 0 {
		return fmt.Errorf("%w: target stage %q not declared", ErrPlan, p.Target)
	}

	return nil
}
