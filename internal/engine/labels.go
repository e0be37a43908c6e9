package engine

import (
	"context"
	"fmt"
)

// Reads the label map from an image's config.
//
// Labels are baked into the OCI image config at commit time, so they
// travel with the image through exports and registries and can be read
// without starting a container.
func (e *Engine) ImageLabels(ctx context.Context, ref, platform string) (map[string]string, error) {
	img, err := e.resolveImage(ctx, ref, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	desc, err := img.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	config, err := readBlobAs[imageConfig](ctx, e.client.ContentStore(), desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	return config.Config.Labels, nil
}

// Subset of the OCI image config needed for label inspection.
type imageConfig struct {
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"config"`
}
