package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Mindburn-Labs/sdnguard/pkg/assistant"
	"github.com/Mindburn-Labs/sdnguard/pkg/audit"
	"github.com/Mindburn-Labs/sdnguard/pkg/catalog"
	"github.com/Mindburn-Labs/sdnguard/pkg/config"
	"github.com/Mindburn-Labs/sdnguard/pkg/controller"
	"github.com/Mindburn-Labs/sdnguard/pkg/dispatch"
	"github.com/Mindburn-Labs/sdnguard/pkg/guard"
	"github.com/Mindburn-Labs/sdnguard/pkg/llm"
	"github.com/Mindburn-Labs/sdnguard/pkg/observability"
	"github.com/Mindburn-Labs/sdnguard/pkg/session"
	"github.com/Mindburn-Labs/sdnguard/pkg/threatintel"
)

// app is the wired service graph.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *catalog.Catalog
	audit     *audit.Log
	assistant *assistant.Service

	closers []func(context.Context) error
}

// loadConfig reads configuration and installs the process logger.
func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	for _, w := range cfg.Validate() {
		logger.Warn("configuration", "warning", w)
	}
	return cfg, logger, nil
}

// buildCatalog wires the controller and threat-intelligence clients and the
// guard policy into an action catalog.
func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	ctrl := controller.New(cfg.Controller.URL, controller.WithTimeout(cfg.Controller.Timeout))
	intel := threatintel.New(cfg.ThreatIntel.APIKey,
		threatintel.WithBaseURL(cfg.ThreatIntel.URL),
		threatintel.WithTimeout(cfg.ThreatIntel.Timeout),
		threatintel.WithMaxAgeDays(cfg.ThreatIntel.MaxAgeDays),
	)

	rules := append([]guard.Rule(nil), guard.DefaultRules...)
	if cfg.GuardPolicyFile != "" {
		extra, err := guard.LoadFile(cfg.GuardPolicyFile)
		if err != nil {
			return nil, err
		}
		rules = append(rules, extra...)
	}
	g, err := guard.New(rules...)
	if err != nil {
		return nil, fmt.Errorf("guard policy: %w", err)
	}

	return catalog.New(ctrl, intel,
		catalog.WithGuard(g),
		catalog.WithControllerEndpoint(cfg.Controller.URL),
	)
}

// buildApp wires everything a turn needs. On error, whatever was already
// opened is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.catalog, err = buildCatalog(cfg); err != nil {
		return nil, err
	}

	var llmOpts []llm.Option
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	client, err := llm.NewClient(ctx, cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model, llmOpts...)
	if err != nil {
		return nil, err
	}

	if a.audit, err = a.openAudit(ctx); err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.Telemetry.Enabled
	obsCfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	obsCfg.Insecure = cfg.Telemetry.Insecure
	obsCfg.ServiceVersion = version
	telemetry, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, telemetry.Shutdown)

	store, err := a.openSessions(ctx)
	if err != nil {
		return nil, err
	}

	loop := &dispatch.Loop{
		Engine:     dispatch.NewLLMEngine(client, cfg.LLM.Temperature),
		Catalog:    a.catalog,
		MaxActions: cfg.Dispatch.MaxActions,
		Recorder:   a.audit,
		Telemetry:  telemetry,
		Logger:     logger.With("component", "dispatch"),
	}
	a.assistant = assistant.New(loop, store,
		assistant.WithTurnTimeout(cfg.Dispatch.TurnTimeout),
		assistant.WithLogger(logger.With("component", "assistant")),
	)

	logger.InfoContext(ctx, "sdnguard wired",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"controller", cfg.Controller.URL,
		"session_backend", cfg.Session.Backend,
		"max_actions", cfg.Dispatch.MaxActions,
	)
	return a, nil
}

func (a *app) openAudit(ctx context.Context) (*audit.Log, error) {
	var sinks []audit.Sink
	var sqlSink *audit.SQLSink
	ac := a.cfg.Audit

	if ac.DatabaseURL != "" || ac.SQLitePath != "" {
		s, err := audit.OpenSQL(ctx, ac.DatabaseURL, ac.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		sinks = append(sinks, s)
		sqlSink = s
	}
	if len(ac.KafkaBrokers) > 0 {
		k := audit.NewKafkaSink(ac.KafkaBrokers, ac.KafkaTopic)
		a.closers = append(a.closers, func(context.Context) error { return k.Close() })
		sinks = append(sinks, k)
	}

	log := audit.NewLog(sinks...)
	if sqlSink != nil {
		seq, head, err := sqlSink.Head(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		log.Resume(seq, head)
	}
	return log, nil
}

func (a *app) openSessions(ctx context.Context) (session.Store, error) {
	sc := a.cfg.Session
	if sc.Backend == "redis" {
		rs := session.NewRedisStore(sc.RedisAddr, sc.RedisPassword, sc.RedisDB, sc.MaxTurns, sc.IdleTTL)
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return rs, nil
	}
	ms := session.NewMemoryStore(session.WithMaxTurns(sc.MaxTurns), session.WithIdleTTL(sc.IdleTTL))
	a.closers = append(a.closers, func(context.Context) error { return ms.Close() })
	return ms, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
