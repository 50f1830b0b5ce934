package agent

import (
	"context"

	"github.com/ledgerai/ledgerai/internal/logging"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/service"
)

// Answerer answers one question for one owner.
type Answerer interface {
	Answer(ctx context.Context, question, owner string) models.AgentResponse
}

// Dispatcher picks the pipeline or the tool agent for a request.
type Dispatcher struct {
	pipeline Answerer
	agent    Answerer
	router   *service.IntentRouter
}

// NewDispatcher returns a dispatcher. agent may be nil when the configured
// model cannot call tools; router may be nil to only honour explicit
// agentMode requests.
func NewDispatcher(pipeline, agent Answerer, router *service.IntentRouter) *Dispatcher {
	return &Dispatcher{pipeline: pipeline, agent: agent, router: router}
}

// AgentAvailable reports whether agent mode can be served.
func (d *Dispatcher) AgentAvailable() bool { return d.agent != nil }

func (d *Dispatcher) Answer(ctx context.Context, req models.QueryRequest, owner string) models.AgentResponse {
	useAgent := req.AgentMode
	if !useAgent && d.router != nil {
		r := d.router.Route(req.Question)
		useAgent = r.Mode == service.ModeAgent
		l := logging.FromContext(ctx)
		l.Debug().
			Str("mode", string(r.Mode)).
			Float64("confidence", r.Confidence).
			Str("reasoning", r.Reasoning).
			Msg("question routed")
	}

	if useAgent && d.agent != nil {
		return d.agent.Answer(ctx, req.Question, owner)
	}
	return d.pipeline.Answer(ctx, req.Question, owner)
}
