// Package main is the entry point for the appmap service.
// appmap maps physical (deployed) applications onto logical application
// groups by orchestrating an LLM scoring oracle under a bounded concurrency
// budget, streaming live progress to the caller.
package main

import (
	"context"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/appatlas/appmap/cmd"
	"github.com/appatlas/appmap/internal/adapters/dataset"
	"github.com/appatlas/appmap/internal/adapters/export"
	logadapter "github.com/appatlas/appmap/internal/adapters/logger"
	"github.com/appatlas/appmap/internal/adapters/oracle"
	"github.com/appatlas/appmap/internal/domain"
	"github.com/appatlas/appmap/internal/infrastructure/config"
)

func main() {
	// Create a single shared logger instance for the application
	zapLog := logger.NewZapLoggerFromConfig()
	adapter := logadapter.NewZapAdapter(zapLog)

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return adapter
		},

		ConfigLoader: config.Load,

		OracleFactory: func(ctx context.Context, cfg *config.Config, _ cmd.Logger) (domain.MappingOracle, error) {
			geminiCfg := oracle.DefaultGeminiConfig(cfg.GeminiAPIKey)
			geminiCfg.Model = cfg.GeminiModel
			return oracle.NewGeminiOracle(ctx, geminiCfg, adapter.WithFields(map[string]any{
				"component": "oracle",
			}))
		},

		ExtractorFactory: func() domain.DatasetExtractor {
			return dataset.NewTableExtractor()
		},

		ExporterFactory: func() domain.ResultExporter {
			return export.NewWorkbookWriter()
		},
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}
