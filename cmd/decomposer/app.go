package main

import (
	"fmt"

	"go.uber.org/zap"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/audit"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/config"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers"
)

// app holds the wired dispatcher and the resources it owns.
type app struct {
	dispatcher *decomposer.Dispatcher
	audit      *audit.Logger
}

// newApp wires registry, adapters, audit sink and dispatcher from cfg.
func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	sink, err := openSink(cfg.Audit)
	if err != nil {
		return nil, err
	}
	recorder := audit.New(sink, audit.WithLogger(log.Named("audit")))

	opts := []decomposer.Option{
		decomposer.WithRecorder(recorder),
		decomposer.WithTemperature(cfg.Dispatch.Temperature),
		decomposer.WithTimeout(cfg.DispatchTimeout()),
	}
	if rl := cfg.Dispatch.RateLimit; rl.RPS > 0 {
		opts = append(opts, decomposer.WithRateLimit(rl.RPS, rl.Burst))
	}

	factory := providers.NewFactory(cfg.ProviderConfig())
	log.Debug("dispatcher configured",
		zap.Int("models", len(registry.Names())),
		zap.String("audit_driver", cfg.Audit.Driver),
		zap.Duration("timeout", cfg.DispatchTimeout()),
	)

	return &app{
		dispatcher: decomposer.NewDispatcher(registry, factory, opts...),
		audit:      recorder,
	}, nil
}

// Close releases the audit sink.
func (a *app) Close() error {
	return a.audit.Close()
}

func openSink(ac config.AuditConfig) (audit.Sink, error) {
	switch ac.Driver {
	case config.DriverCSV:
		return audit.NewCSVSink(ac.Dir), nil
	case config.DriverSQLite:
		return audit.OpenSQLiteSink(ac.DSN)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", ac.Driver)
	}
}
