// Package agent answers ledger questions. Pipeline is the single-query path:
// generate, validate, scope, execute, then chart and synthesize. ToolAgent
// lets a tool-calling model run several scoped queries.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerai/ledgerai/internal/chart"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/logging"
	"github.com/ledgerai/ledgerai/internal/metrics"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/security"
	"github.com/ledgerai/ledgerai/internal/service"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const schemaTimeout = 10 * time.Second

// Deps wires a Pipeline. Store and LLM are required; nil security helpers
// are replaced by permissive defaults.
type Deps struct {
	Store service.Store
	LLM   llm.Completer

	PromptValidator *security.PromptValidator
	PIIDetector     *security.PIIDetector
	DataMasker      *security.DataMasker
	AuditLogger     *security.AuditLogger
	DisableMasking  bool

	GenerationTimeout time.Duration
	SynthesisTimeout  time.Duration

	// Now is the clock used for "today" in the generator prompt.
	Now func() time.Time
}

// Pipeline is the question orchestrator. It holds no per-question state and is
// safe for concurrent use.
type Pipeline struct {
	store       service.Store
	generator   *Generator
	synthesizer *Synthesizer
	promptVal   *security.PromptValidator
	pii         *security.PIIDetector
	sqlVal      *security.SQLValidator
	scoper      *security.TenantScoper
	masker      *security.DataMasker
	audit       *security.AuditLogger
	now         func() time.Time

	// concurrent questions share one in-flight introspection; nothing is
	// cached between them
	schemaFlight singleflight.Group
}

func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline requires a store")
	}
	if deps.LLM == nil {
		return nil, errors.New("pipeline requires a language model")
	}
	p := &Pipeline{
		store:       deps.Store,
		generator:   NewGenerator(deps.LLM, deps.GenerationTimeout),
		synthesizer: NewSynthesizer(deps.LLM, deps.SynthesisTimeout),
		promptVal:   deps.PromptValidator,
		pii:         deps.PIIDetector,
		sqlVal:      security.NewSQLValidator(),
		scoper:      security.NewTenantScoper(deps.Store.Dialect()),
		masker:      deps.DataMasker,
		audit:       deps.AuditLogger,
		now:         deps.Now,
	}
	if p.promptVal == nil {
		p.promptVal = security.NewPromptValidator()
	}
	switch {
	case deps.DisableMasking:
		p.masker = nil
	case p.masker == nil:
		p.masker = security.NewDataMasker(nil)
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Answer runs one question for owner. It never returns a partially filled
// response: either Err is set and nothing else, or everything but Err is.
func (p *Pipeline) Answer(ctx context.Context, question, owner string) models.AgentResponse {
	start := time.Now()
	logger := logging.FromContext(ctx)

	audit := security.QueryAudit{
		RequestID: logging.RequestID(ctx),
		OwnerID:   owner,
		Question:  question,
	}
	fail := func(kind Kind, err error) models.AgentResponse {
		if ctx.Err() != nil {
			kind, err = KindCanceled, ctx.Err()
		}
		audit.ErrorKind = string(kind)
		audit.Duration = time.Since(start)
		p.audit.LogQuery(ctx, audit)
		metrics.ObserveQuestion("pipeline", string(kind), 0)
		logger.Warn().Err(err).Str("kind", string(kind)).Msg("question failed")
		return models.AgentResponse{Err: newError(kind, err)}
	}

	if err := p.checkQuestion(ctx, question, owner); err != nil {
		kind, _ := KindOf(err)
		metrics.ObserveQuestion("pipeline", string(kind), 0)
		return models.AgentResponse{Err: err}
	}

	stage := time.Now()
	schema, err := p.describeSchema(ctx)
	metrics.ObserveStage(metrics.StageSchema, time.Since(stage))
	if err != nil {
		return fail(KindSchemaUnavailable, err)
	}

	stage = time.Now()
	generated, err := p.generator.Generate(ctx, question, schema, p.store.Dialect(), p.now())
	metrics.ObserveStage(metrics.StageGenerate, time.Since(stage))
	if err != nil {
		return fail(KindGenerationFailed, err)
	}
	audit.SQL = generated

	if err := p.sqlVal.Validate(generated); err != nil {
		logger.Warn().Str("sql_hash", security.HashID(generated)).Msg("generated sql rejected")
		return fail(KindQueryRejected, err)
	}
	scoped, err := p.scoper.Scope(generated, owner)
	if err != nil {
		return fail(KindQueryRejected, err)
	}
	audit.ValidationPassed = true

	stage = time.Now()
	rs, err := p.store.Query(ctx, scoped.SQL, scoped.Args...)
	metrics.ObserveStage(metrics.StageExecute, time.Since(stage))
	if err != nil {
		return fail(KindExecutionFailed, err)
	}
	rs = p.masker.MaskResult(rs)

	var (
		spec     *models.ChartSpec
		answer   string
		synthErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		spec = chart.Infer(question, rs)
		return nil
	})
	g.Go(func() error {
		stage := time.Now()
		answer, synthErr = p.synthesizer.Synthesize(gctx, question, generated, rs)
		metrics.ObserveStage(metrics.StageSynthesize, time.Since(stage))
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return fail(KindCanceled, ctx.Err())
	}
	if synthErr != nil {
		metrics.IncrementSynthesisFallback()
		logger.Warn().Err(synthErr).Str("kind", string(KindSynthesisFailed)).Msg("answer synthesis failed, using fallback")
	}

	audit.RowCount = rs.Len()
	audit.Duration = time.Since(start)
	p.audit.LogQuery(ctx, audit)
	metrics.ObserveQuestion("pipeline", "ok", rs.Len())

	logger.Info().
		Int("rows", rs.Len()).
		Int("table_refs", scoped.References).
		Bool("chart", spec != nil).
		Dur("duration", time.Since(start)).
		Msg("question answered")

	return models.AgentResponse{
		Answer:  answer,
		SQL:     scoped.SQL,
		Results: rs,
		Chart:   spec,
	}
}

// checkQuestion applies the checks that run before any model call. The
// returned error is always an *Error.
func (p *Pipeline) checkQuestion(ctx context.Context, question, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return newError(KindMissingOwner, security.ErrMissingOwner)
	}
	reject := func(reason string) error {
		p.audit.LogRejectedPrompt(ctx, logging.RequestID(ctx), owner, question, reason)
		return newError(KindInvalidQuestion, errors.New(reason))
	}
	if vr := p.promptVal.Validate(question); !vr.Valid {
		return reject(vr.Message)
	}
	if p.pii != nil {
		if found, kw := p.pii.Detect(question); found {
			return reject(fmt.Sprintf("question asks for sensitive data (%s)", kw))
		}
	}
	return nil
}

// describeSchema reads the schema fresh for every question.
func (p *Pipeline) describeSchema(ctx context.Context) (models.SchemaDescription, error) {
	ch := p.schemaFlight.DoChan("schema", func() (interface{}, error) {
		// shared by every waiting caller, so detached from this caller's
		// cancellation and bounded on its own
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), schemaTimeout)
		defer cancel()
		return p.store.DescribeSchema(sctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.SchemaDescription{}, res.Err
		}
		return res.Val.(models.SchemaDescription), nil
	case <-ctx.Done():
		return models.SchemaDescription{}, ctx.Err()
	}
}
