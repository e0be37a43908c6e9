package plan

import (
	"fmt"

	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/paths"
)

// Pinned versions of the heavyweight runtimes a collection stage can
// download. Bumped together with the SDK release process.
const (
	torchVersion = "2.4.1"
	onnxVersion  = "1.18.1"
)

// Heavyweight features that pull a pinned artifact in a dedicated
// collection stage, and whether that artifact bundles a Python
// interpreter (which suppresses the interpreter-install step).
var collectionFeatures = map[config.Feature]struct {
	bundlesInterpreter bool
}{
	config.FeatureTorch: {bundlesInterpreter: true},
	config.FeatureONNX:  {bundlesInterpreter: false},
}

// Builds the collection stage for a heavyweight feature.
//
// Each collection stage starts from the resolved base image, downloads
// its pinned artifact, and unpacks it under /opt. Collection stages have
// no dependencies on each other; the release stage copies the unpacked
// tree out by name.
func collectionStage(f config.Feature, baseImage, arch string) (Stage, error) {
	switch f {
	case config.FeatureTorch:
		return Stage{
			Name: "torch",
			From: baseImage,
			Steps: []InstallStep{
				{
					ID: "fetch:torch",
					Run: fmt.Sprintf(
						"curl -fsSL -o /tmp/torch.tgz https://artifacts.cruciblehq.com/runtimes/torch/%s/torch-%s-linux-%s.tgz"+
							" && mkdir -p /opt/torch && tar xzf /tmp/torch.tgz -C /opt/torch && rm /tmp/torch.tgz",
						torchVersion, torchVersion, arch),
				},
			},
		}, nil

	case config.FeatureONNX:
		return Stage{
			Name: "onnx",
			From: baseImage,
			Steps: []InstallStep{
				{
					ID: "fetch:onnxruntime",
					Run: fmt.Sprintf(
						"curl -fsSL -o /tmp/onnxruntime.tgz https://artifacts.cruciblehq.com/runtimes/onnxruntime/%s/onnxruntime-%s-linux-%s.tgz"+
							" && mkdir -p /opt/onnxruntime && tar xzf /tmp/onnxruntime.tgz -C /opt/onnxruntime && rm /tmp/onnxruntime.tgz",
						onnxVersion, onnxVersion, arch),
				},
			},
		}, nil
	}

	return Stage{}, fmt.Errorf("%w: feature %q has no collection stage", ErrPlan, f)
}

// Returns the release-stage install steps a feature contributes.
//
// Steps are gated by GPU class and architecture where the underlying
// packages only exist for some targets. Identical steps contributed by
// multiple features collapse via their IDs.
func featureSteps(f config.Feature, cfg *config.Config, healthProbeURL string) []InstallStep {
	switch f {
	case config.FeatureHoloviz:
		// Rendering stack only applies when a GPU is present.
		if cfg.GPUClass == config.CPU {
			return nil
		}
		return []InstallStep{
			aptInstall("libvulkan1", "libegl1", "libx11-6", "libxcb1"),
		}

	case config.FeatureDebug:
		return []InstallStep{
			aptInstall("gdb", "strace", "valgrind"),
		}

	case config.FeatureHealthProbe:
		return []InstallStep{
			{
				ID: "fetch:health-probe",
				Run: fmt.Sprintf("curl -fsSL -o %s %s && chmod +x %s",
					paths.HealthProbePath, healthProbeURL, paths.HealthProbePath),
			},
		}
	}

	return nil
}

// Builds an apt install step whose identity is the package list, so
// identical package sets contributed by multiple features deduplicate,
// and whose command never prompts.
func aptInstall(packages ...string) InstallStep {
	list := ""
	for i, p := range packages {
		if i > 0 {
			list += " "
		}
		list += p
	}
	return InstallStep{
		ID:  "apt:" + list,
		Run: "apt-get update && apt-get install -y --no-install-recommends " + list + " && rm -rf /var/lib/apt/lists/*",
	}
}
