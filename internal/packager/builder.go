package packager

import (
	"context"

	"github.com/cruciblehq/hap/internal/build"
	"github.com/cruciblehq/hap/internal/engine"
)

// Containerd-backed [BuildEngine].
type EngineBuilder struct {
	eng *engine.Engine
}

func NewEngineBuilder(eng *engine.Engine) *EngineBuilder {
	return &EngineBuilder{eng: eng}
}

func (b *EngineBuilder) Build(ctx context.Context, opts build.Options) error {
	return build.Run(ctx, b.eng, opts)
}

func (b *EngineBuilder) Cleanup(ctx context.Context, opts build.Options) {
	build.Cleanup(ctx, b.eng, opts)
}
