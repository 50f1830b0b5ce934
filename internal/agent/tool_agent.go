package agent

import (
	"context"
	"time"

	"github.com/ledgerai/ledgerai/internal/chart"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/logging"
	"github.com/ledgerai/ledgerai/internal/metrics"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/security"
	"github.com/ledgerai/ledgerai/internal/tools"
)

const DefaultAgentTimeout = 60 * time.Second

// ToolAgent answers with a multi-turn tool conversation. Every tool query
// goes through the pipeline's validator and tenant scoper.
type ToolAgent struct {
	runner   llm.ToolRunner
	pipeline *Pipeline
	timeout  time.Duration
}

func NewToolAgent(runner llm.ToolRunner, p *Pipeline, timeout time.Duration) *ToolAgent {
	if timeout <= 0 {
		timeout = DefaultAgentTimeout
	}
	return &ToolAgent{runner: runner, pipeline: p, timeout: timeout}
}

// Answer runs the tool loop for owner. SQL and Results are those of the last
// query a tool executed; both are empty when the model never ran one.
func (a *ToolAgent) Answer(ctx context.Context, question, owner string) models.AgentResponse {
	start := time.Now()
	p := a.pipeline
	logger := logging.FromContext(ctx)

	if err := p.checkQuestion(ctx, question, owner); err != nil {
		kind, _ := KindOf(err)
		metrics.ObserveQuestion("agent", string(kind), 0)
		return models.AgentResponse{Err: err}
	}

	sess := tools.NewSession(owner, p.store, p.sqlVal, p.scoper, p.masker)
	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	run, err := a.runner.RunTools(actx, toolAgentSystemPrompt(p.store.Dialect(), p.now()), question, tools.LedgerTools(sess))
	metrics.ObserveStage(metrics.StageAgent, time.Since(start))

	sql, rs, executed := sess.Last()
	audit := security.QueryAudit{
		RequestID:        logging.RequestID(ctx),
		OwnerID:          owner,
		Question:         question,
		SQL:              sql,
		ValidationPassed: executed,
		RowCount:         rs.Len(),
		Duration:         time.Since(start),
	}

	if err != nil {
		kind := KindGenerationFailed
		if ctx.Err() != nil {
			kind, err = KindCanceled, ctx.Err()
		}
		audit.ErrorKind = string(kind)
		p.audit.LogQuery(ctx, audit)
		metrics.ObserveQuestion("agent", string(kind), 0)
		logger.Warn().Err(err).Strs("tools_used", run.ToolsUsed).Msg("agent run failed")
		return models.AgentResponse{Err: newError(kind, err)}
	}
	p.audit.LogQuery(ctx, audit)

	answer := run.Text
	if answer == "" {
		metrics.IncrementSynthesisFallback()
		answer = FallbackAnswer
	}

	resp := models.AgentResponse{
		Answer:    answer,
		SQL:       sql,
		AgentMode: true,
		ToolsUsed: run.ToolsUsed,
		Results:   models.ResultSet{Rows: []models.Row{}},
	}
	if executed {
		resp.Results = p.masker.MaskResult(rs)
		resp.Chart = chart.Infer(question, resp.Results)
	}
	metrics.ObserveQuestion("agent", "ok", resp.Results.Len())

	logger.Info().
		Int("iterations", run.Iterations).
		Strs("tools_used", run.ToolsUsed).
		Int("rows", resp.Results.Len()).
		Dur("duration", time.Since(start)).
		Msg("agent question answered")
	return resp
}
