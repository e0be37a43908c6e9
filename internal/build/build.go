package build

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/hap/internal/engine"
	"github.com/cruciblehq/hap/internal/plan"
)

// Controls plan execution.
type Options struct {
	Plan     *plan.Plan
	Job      string // Build job identifier, used as a prefix for container and stage image names.
	Context  string // Staging directory, root for resolving context copy sources.
	Platform string // Target OCI platform (e.g., "linux/amd64").
	Tag      string // Name the target stage is committed under.

	// Applied to the target stage's image on commit, on top of the
	// stage's own environment. Sets the entrypoint and manifest labels.
	Mutation engine.ImageMutation
}

// Holds shared state for executing all stages of a plan.
type job struct {
	eng        *engine.Engine
	opts       Options
	stages     map[string]*engine.Container // Named stage containers, for cross-stage copies.
	containers []*engine.Container          // All stage containers, destroyed after the build completes.
}

// Executes a build plan against the engine.
//
// Stages run in declaration order. Each stage starts a container from
// its base (a pulled image or an earlier stage's committed image),
// applies the stage's copies and steps, and commits the result to the
// image store under a job-scoped name reclaimed by [Cleanup]. The
// target stage is committed with the mutation applied and tagged with
// opts.Tag, so a failed build never leaves a partial image under the
// final reference. All stage containers are destroyed when the build
// completes.
func Run(ctx context.Context, eng *engine.Engine, opts Options) error {
	slog.Info("executing build plan",
		"job", opts.Job,
		"stages", len(opts.Plan.Stages),
		"platform", opts.Platform,
		"tag", opts.Tag,
	)

	j := &job{
		eng:    eng,
		opts:   opts,
		stages: make(map[string]*engine.Container),
	}
	defer j.destroyContainers(ctx)

	for i, stage := range opts.Plan.Stages {
		if err := j.buildStage(ctx, stage); err != nil {
			return fmt.Errorf("%w: stage %q (%d/%d): %w", ErrBuild, stage.Name, i+1, len(opts.Plan.Stages), err)
		}
	}

	return eng.Tag(ctx, stageImage(opts.Job, opts.Plan.Target), opts.Tag)
}

// Removes the stage images a build job committed. The final tag, when
// present, keeps the target stage's content referenced.
func Cleanup(ctx context.Context, eng *engine.Engine, opts Options) {
	for _, stage := range opts.Plan.Stages {
		if err := eng.RemoveImage(ctx, stageImage(opts.Job, stage.Name)); err != nil {
			slog.Warn("failed to remove stage image", "stage", stage.Name, "error", err)
		}
	}
}

// Builds a single stage.
//
// Resolves the stage's base, starts a build container, applies copies
// and steps in order, then stops the container and commits its
// filesystem as the stage's image.
func (j *job) buildStage(ctx context.Context, stage plan.Stage) error {
	slog.Info("building stage", "stage", stage.Name)

	base := stage.From
	if stage.FromStage {
		base = stageImage(j.opts.Job, stage.From)
	} else {
		if err := j.eng.Pull(ctx, base, j.opts.Platform); err != nil {
			return err
		}
	}

	id := fmt.Sprintf("%s-stage-%s", j.opts.Job, stage.Name)
	ctr, err := j.eng.StartContainer(ctx, base, id, j.opts.Platform)
	if err != nil {
		return err
	}

	j.containers = append(j.containers, ctr)
	j.stages[stage.Name] = ctr

	env := flattenEnv(stage.Env)

	for _, c := range stage.Copies {
		if err := executeCopy(ctx, ctr, c, j.opts.Context, j.stages); err != nil {
			return err
		}
	}

	for _, step := range stage.Steps {
		slog.Debug("run", "step", step.ID)
		result, err := ctr.Exec(ctx, step.Run, env, "")
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("step %q exited with code %d: %s", step.ID, result.ExitCode, result.Stderr)
		}
	}

	if err := ctr.Stop(ctx); err != nil {
		return err
	}

	return ctr.Commit(ctx, stageImage(j.opts.Job, stage.Name), j.commitMutation(stage))
}

// Builds the commit mutation for a stage: the stage's environment plus,
// for the target stage, the caller's mutation.
func (j *job) commitMutation(stage plan.Stage) engine.ImageMutation {
	return func(manifest *ocispec.Manifest, config *ocispec.Image) {
		config.Config.Env = append(config.Config.Env, flattenEnv(stage.Env)...)
		if stage.Name == j.opts.Plan.Target && j.opts.Mutation != nil {
			j.opts.Mutation(manifest, config)
		}
	}
}

// Destroys all stage containers.
func (j *job) destroyContainers(ctx context.Context) {
	for _, ctr := range j.containers {
		ctr.Destroy(ctx)
	}
}

// Returns the image name for an intermediate stage, scoped to the job.
func stageImage(jobID, stage string) string {
	return fmt.Sprintf("hap-build/%s/%s:latest", jobID, stage)
}

// Flattens an environment map into sorted KEY=value entries.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k+"="+env[k])
	}
	return entries
}
