package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ledgerai/ledgerai/internal/agent"
	"github.com/ledgerai/ledgerai/internal/config"
	"github.com/ledgerai/ledgerai/internal/handler"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/middleware"
	"github.com/ledgerai/ledgerai/internal/security"
	"github.com/ledgerai/ledgerai/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// NewRouter wires the question pipeline and the HTTP surface over c.
func NewRouter(cfg *config.Config, c Components) (http.Handler, error) {
	// ─── Security ───────────────────────────────────────────────────────────────
	var piiDetector *security.PIIDetector
	if cfg.EnablePIIDetection {
		piiDetector = security.NewPIIDetector(cfg.PIIKeywords)
	}
	var auditSink security.AuditSink
	if c.AuditSink != nil {
		auditSink = c.AuditSink
	}
	auditLogger := security.NewAuditLogger(cfg.EnableAuditLogging, auditSink)

	// ─── Pipeline & agent ───────────────────────────────────────────────────────
	pipeline, err := agent.NewPipeline(agent.Deps{
		Store:             c.Store,
		LLM:               c.LLM,
		PromptValidator:   security.NewPromptValidator(),
		PIIDetector:       piiDetector,
		DataMasker:        security.NewDataMasker(cfg.SensitiveColumns),
		DisableMasking:    !cfg.EnableDataMasking,
		AuditLogger:       auditLogger,
		GenerationTimeout: cfg.GenerationTimeout.Std(),
		SynthesisTimeout:  cfg.SynthesisTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	var toolAgent agent.Answerer
	if runner, ok := c.LLM.(llm.ToolRunner); ok && cfg.EnableAgent {
		toolAgent = agent.NewToolAgent(runner, pipeline, cfg.AgentTimeout.Std())
	} else if cfg.EnableAgent {
		log.Warn().Str("provider", cfg.LLMProvider).Msg("provider cannot call tools - agent mode falls back to the pipeline")
	}

	var intentRouter *service.IntentRouter
	if cfg.AgentAutoRoute {
		intentRouter = service.NewIntentRouter()
	}
	dispatcher := agent.NewDispatcher(pipeline, toolAgent, intentRouter)

	log.Info().
		Str("dialect", c.Store.Dialect().Name).
		Str("llm_provider", cfg.LLMProvider).
		Bool("agent_enabled", dispatcher.AgentAvailable()).
		Bool("agent_auto_route", intentRouter != nil).
		Bool("elasticsearch_audit", c.AuditSink != nil).
		Bool("auth_enabled", cfg.EnableAuth).
		Bool("data_masking", cfg.EnableDataMasking).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Bool("pii_detection", cfg.EnablePIIDetection).
		Msg("service configuration")

	if !cfg.EnableAuth && !cfg.IsDevelopment() {
		log.Warn().Msg("WARNING: auth disabled outside development - owner identity comes from " + middleware.OwnerHeader)
	}

	// ─── Handlers ────────────────────────────────────────────────────────────────
	checks := map[string]handler.HealthChecker{"ledger_db": c.Store}
	if c.AuditSink != nil {
		checks["elasticsearch"] = c.AuditSink
	} else {
		checks["elasticsearch"] = nil
	}
	healthH := handler.NewHealthHandler(checks)
	queryH := handler.NewQueryHandler(dispatcher)
	agentH := handler.NewAgentHandler(queryH)
	schemaH := handler.NewSchemaHandler(c.Store)

	// ─── Router ──────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(middleware.Metrics)

	// Public routes
	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Auth before rate limiting so limits are per owner
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(middleware.AuthConfig{
			Enabled:          cfg.EnableAuth,
			Secret:           cfg.JWTSecret,
			AllowOwnerHeader: cfg.AllowOwnerHeader,
		}))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute))

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/query", queryH.Ask)
			r.Post("/query-agent", agentH.QueryAgent)
			r.Get("/schema", schemaH.Schema)
			r.Get("/schema/{table}", schemaH.GetTable)
		})
	})

	return r, nil
}
