package app

import (
	"context"

	"kelpie/internal/config"
)

// appBuilderDeps 是注入器需要的构建能力，两种构建模式共用。
type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}
