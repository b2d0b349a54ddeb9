package main

import (
	"fmt"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/audit"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/config"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/logging"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/pipeline"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/policy"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/provider"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/review"
	"go.uber.org/zap"
)

// app is the wired component graph shared by serve and evaluate
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	overrides *policy.CedarOverrides
	auditLog  *audit.Logger
	reviews   *review.Queue
	pipeline  *pipeline.Pipeline
}

type appOptions struct {
	// auditToStdout keeps stdout free for command output when false
	auditToStdout bool
	watch         bool
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logCfg.Development = cfg.Logging.Development
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (provider.Generator, error) {
	gen, err := provider.NewOpenAIGenerator(provider.OpenAIOptions{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
		Logger:  logger.Named("provider"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("intent generator configured",
		zap.String("model", gen.Model()),
		zap.String("base_url", cfg.LLM.BaseURL))
	return gen, nil
}

func newApp(cfg *config.Config, logger *zap.Logger, gen provider.Generator, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	engineOpts := []policy.Option{policy.WithLogger(logger.Named("policy"))}
	if cfg.Policies.OverridesPath != "" {
		overrides, err := policy.LoadCedarOverrides(cfg.Policies.OverridesPath,
			opts.watch && cfg.Policies.WatchChanges, logger.Named("cedar"))
		if err != nil {
			return nil, err
		}
		a.overrides = overrides
		engineOpts = append(engineOpts, policy.WithOverrides(overrides))
		logger.Info("policy overrides loaded",
			zap.String("path", cfg.Policies.OverridesPath),
			zap.String("version", overrides.Version()))
	}

	var sink audit.Sink = audit.Discard{}
	if cfg.Logging.AuditPath != "" || opts.auditToStdout {
		auditLog, err := audit.NewLogger(cfg.Logging.AuditPath, logger.Named("audit"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		a.auditLog = auditLog
		sink = auditLog
	}

	a.reviews = review.NewQueue(
		review.WithTimeout(cfg.Review.Timeout),
		review.WithRetention(cfg.Review.Retention),
		review.WithLogger(logger.Named("review")),
	)

	pipelineOpts := []pipeline.Option{
		pipeline.WithTimeout(cfg.LLM.Timeout),
		pipeline.WithGenerationParams(cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		pipeline.WithPolicy(policy.NewEngine(engineOpts...)),
		pipeline.WithReviewQueue(a.reviews),
		pipeline.WithAudit(sink),
		pipeline.WithLogger(logger.Named("pipeline")),
	}
	if a.overrides != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithPolicyVersion(a.overrides.Version))
	}
	a.pipeline = pipeline.New(gen, pipelineOpts...)

	return a, nil
}

func (a *app) Close() {
	if a.overrides != nil {
		a.overrides.Close()
	}
	if a.auditLog != nil {
		_ = a.auditLog.Close()
	}
	_ = a.logger.Sync()
}
