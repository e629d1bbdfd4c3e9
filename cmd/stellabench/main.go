package main

import (
	"context"
	"os"

	"stellabench/config"
	"stellabench/internal/batch"
	"stellabench/internal/pipeline"
	"stellabench/pkg/database"
	"stellabench/pkg/logger"
	"stellabench/pkg/mq"
	"stellabench/pkg/telemetry"
	"stellabench/pkg/watchdog"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,           // inject config
			config.ProvideCampaign,      // inject campaign description
			logger.NewLogger,            // inject logger
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			database.NewDBConnection,    // inject archive db (optional)
			mq.NewRabbitMQ,              // inject rabbitmq service (optional)
			mq.NewNotifier,              // inject report notifier
			watchdog.NewWatchDogFactory, // inject watchdog factory
			batch.NewWatcher,            // inject batch watcher
			pipeline.New,                // inject analysis pipeline
		),
		fx.Invoke(runAnalysis),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}

type analysisParams struct {
	fx.In
	Lc         fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.AppConfig
	Watcher    *batch.Watcher
	Pipeline   *pipeline.Pipeline
	Logger     *zap.Logger
}

// runAnalysis drives one batch: in watch mode it first waits for all
// expected trial artifacts to land, then runs the pipeline and shuts the
// app down.
func runAnalysis(p analysisParams) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				defer p.Shutdowner.Shutdown()

				if p.Config.WatchMode {
					if err := p.Watcher.Await(runCtx); err != nil {
						p.Logger.Error("batch watch aborted", zap.Error(err))
						return
					}
				}

				manifest, err := p.Pipeline.Run(runCtx)
				if err != nil {
					p.Logger.Error("analysis failed", zap.Error(err))
					return
				}
				manifest.PrintSummary(os.Stdout)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
