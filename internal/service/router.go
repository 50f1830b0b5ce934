package service

import "strings"

// AnswerMode is how a question is answered.
type AnswerMode string

const (
	// ModePipeline answers with one generated query.
	ModePipeline AnswerMode = "pipeline"
	// ModeAgent lets the model call tools over several turns.
	ModeAgent AnswerMode = "agent"
)

// agentKeywords mark questions that usually need more than one query or an
// opinion on top of the numbers.
var agentKeywords = []string{
	"why", "explain", "advice", "advise", "recommend", "suggest",
	"should i", "how can i", "budget", "save more", "saving",
	"overall", "summary", "summarize", "summarise", "overview",
	"financial health", "insight", "unusual", "anomal", "habits",
	"compared to", "versus", " vs ",
}

// pipelineKeywords mark questions one aggregate query answers.
var pipelineKeywords = []string{
	"how much", "how many", "total", "sum", "count", "average",
	"top", "list", "show", "which", "what was", "largest", "biggest",
	"smallest", "this month", "last month", "by category", "trend",
	"breakdown", "per month", "monthly", "weekly", "daily",
}

// RoutingResult contains answer mode routing info
type RoutingResult struct {
	Mode          AnswerMode
	Confidence    float64
	AgentScore    int
	PipelineScore int
	Reasoning     string
}

// IntentRouter decides whether a question needs the tool agent
type IntentRouter struct{}

func NewIntentRouter() *IntentRouter {
	return &IntentRouter{}
}

// Route analyses the question and returns the best matching answer mode
func (r *IntentRouter) Route(question string) RoutingResult {
	lower := " " + strings.ToLower(question) + " "

	agentScore := 0
	pipelineScore := 0

	for _, kw := range agentKeywords {
		if strings.Contains(lower, kw) {
			agentScore++
		}
	}
	for _, kw := range pipelineKeywords {
		if strings.Contains(lower, kw) {
			pipelineScore++
		}
	}

	total := agentScore + pipelineScore
	if total == 0 {
		return RoutingResult{
			Mode:       ModePipeline,
			Confidence: 0.5,
			Reasoning:  "no strong keywords, defaulting to a single query",
		}
	}

	if agentScore > pipelineScore {
		return RoutingResult{
			Mode:          ModeAgent,
			Confidence:    float64(agentScore) / float64(total),
			AgentScore:    agentScore,
			PipelineScore: pipelineScore,
			Reasoning:     "question asks for explanation or advice",
		}
	}

	return RoutingResult{
		Mode:          ModePipeline,
		Confidence:    float64(pipelineScore) / float64(total),
		AgentScore:    agentScore,
		PipelineScore: pipelineScore,
		Reasoning:     "question maps to a single aggregate query",
	}
}
