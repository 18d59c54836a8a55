package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/adapter"
	"github.com/zen-systems/ticketflow/pkg/config"
	"github.com/zen-systems/ticketflow/pkg/events"
	"github.com/zen-systems/ticketflow/pkg/llm"
	"github.com/zen-systems/ticketflow/pkg/metrics"
	"github.com/zen-systems/ticketflow/pkg/node"
	"github.com/zen-systems/ticketflow/pkg/tools"
	"github.com/zen-systems/ticketflow/pkg/tracing"
	"github.com/zen-systems/ticketflow/pkg/usage"
	"github.com/zen-systems/ticketflow/pkg/workflow"
)

// app is the wired process: one engine and everything it owns.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	tracing   *tracing.Provider
	metrics   *metrics.Collector
	client    *llm.Client
	publisher events.Publisher
	directory tools.Directory
	engine    *workflow.Engine

	closers []func() error
}

// newApp builds the engine from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	tp, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}
	a.tracing = tp

	a.metrics = metrics.NewCollector(metrics.DefaultNamespace, logger)

	if err := loadAliases().ValidateLLM(cfg.LLM); err != nil {
		logger.Warn("model not listed for provider", zap.Error(err))
	}
	backend, err := createAdapter(cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.client = llm.New(backend, usage.NewTracker(cfg.Pricing),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithPolicy(cfg.Retry.Policy()),
		llm.WithLogger(logger),
		llm.WithObserver(a.metrics),
		llm.WithTracerProvider(tp.TracerProvider()),
	)

	a.publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		a.publisher = kp
		a.closers = append(a.closers, kp.Close)
		logger.Info("kafka publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	if cfg.Database.DSN != "" {
		dir, err := tools.OpenSQLDirectory(ctx, cfg.Database.DSN)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.directory = dir
		a.closers = append(a.closers, dir.Close)
		logger.Info("customer directory backed by postgres")
	}

	registry := tools.NewRegistry(
		tools.WithLogger(logger),
		tools.WithObserver(a.metrics),
	)
	tools.RegisterDefaults(registry, tools.Defaults{
		Directory:    a.directory,
		Publisher:    a.publisher,
		RefundFaults: tools.NewFaults(cfg.Tools.RefundFailureRate, cfg.Tools.Seed),
		EmailFaults:  tools.NewFaults(cfg.Tools.EmailFailureRate, cfg.Tools.Seed+1),
		Logger:       logger,
	})

	deps := node.Deps{LLM: a.client, Tools: registry, Logger: logger, Now: time.Now}
	engine, err := workflow.New(node.NewTriage(deps, cfg.Routing.RuleSet()), node.Specialists(deps),
		workflow.WithLogger(logger),
		workflow.WithObserver(a.metrics),
		workflow.WithPublisher(a.publisher),
		workflow.WithUsage(a.client),
		workflow.WithTracerProvider(tp.TracerProvider()),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.engine = engine

	logger.Info("engine ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.Strings("tools", registry.Names()),
	)
	return a, nil
}

// close releases the publisher, the directory and the tracer provider.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// createAdapter builds the backend for the configured provider.
func createAdapter(cfg *config.Config) (adapter.Adapter, error) {
	provider := cfg.LLM.Provider
	if !cfg.HasProvider(provider) {
		return nil, fmt.Errorf("provider %q has no API key; set it in the environment or use --mock", provider)
	}
	key := cfg.APIKey(provider)

	switch provider {
	case config.ProviderMock:
		return adapter.NewMockAdapter(
			adapter.WithResponder(node.MockResponder(cfg.Routing.RuleSet())),
			adapter.WithTokenCounter(adapter.NewTiktokenCounter("")),
		), nil
	case config.ProviderAnthropic:
		return adapter.NewAnthropicAdapter(key)
	case config.ProviderOpenAI:
		return adapter.NewOpenAIAdapter(key)
	case config.ProviderGoogle:
		return adapter.NewGoogleAdapter(key)
	case config.ProviderDeepSeek:
		return adapter.NewDeepSeekAdapter(key)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
