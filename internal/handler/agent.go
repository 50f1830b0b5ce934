package handler

import (
	"net/http"

	"github.com/ledgerai/ledgerai/internal/models"
)

// AgentHandler handles POST /api/v1/query-agent. It is /query with agentMode
// forced on.
type AgentHandler struct {
	query *QueryHandler
}

func NewAgentHandler(query *QueryHandler) *AgentHandler {
	return &AgentHandler{query: query}
}

// QueryAgent handles POST /api/v1/query-agent
func (h *AgentHandler) QueryAgent(w http.ResponseWriter, r *http.Request) {
	if !h.query.dispatcher.AgentAvailable() {
		models.WriteError(w, http.StatusServiceUnavailable, "agent mode is not available for the configured model")
		return
	}
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	req.AgentMode = true
	h.query.answer(w, r, req)
}
