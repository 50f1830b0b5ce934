package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ledgerai/ledgerai/internal/agent"
	"github.com/ledgerai/ledgerai/internal/logging"
	"github.com/ledgerai/ledgerai/internal/middleware"
	"github.com/ledgerai/ledgerai/internal/models"
)

const maxBodyBytes = 64 << 10

// QueryHandler answers natural-language questions about the caller's ledger
type QueryHandler struct {
	dispatcher *agent.Dispatcher
}

func NewQueryHandler(dispatcher *agent.Dispatcher) *QueryHandler {
	return &QueryHandler{dispatcher: dispatcher}
}

// Ask handles POST /api/v1/query
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	h.answer(w, r, req)
}

func (h *QueryHandler) answer(w http.ResponseWriter, r *http.Request, req models.QueryRequest) {
	// the owner only ever comes from the auth layer
	owner, _ := middleware.OwnerFromContext(r.Context())

	resp := h.dispatcher.Answer(r.Context(), req, owner)
	if resp.Err != nil {
		writeAgentError(w, r, resp.Err)
		return
	}
	models.WriteJSON(w, http.StatusOK, toQueryResponse(req.Question, resp))
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (models.QueryRequest, bool) {
	var req models.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		models.WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return req, false
	}
	req.SetDefaults()
	if req.Question == "" {
		models.WriteError(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	return req, true
}

func toQueryResponse(question string, resp models.AgentResponse) models.QueryResponse {
	rows := resp.Results.Rows
	if rows == nil {
		rows = []models.Row{}
	}
	return models.QueryResponse{
		Query:       question,
		Response:    resp.Answer,
		SQL:         resp.SQL,
		Results:     rows,
		ResultCount: len(rows),
		ChartData:   resp.Chart,
		AgentMode:   resp.AgentMode,
		ToolsUsed:   resp.ToolsUsed,
	}
}

// writeAgentError maps a failed answer onto an HTTP status. Execution errors
// keep the store's message so the caller can see what the database said.
func writeAgentError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := agent.KindOf(err)
	if !ok {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("unclassified answer error")
		models.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	detail := err.Error()
	var ae *agent.Error
	if errors.As(err, &ae) && ae.Err != nil {
		detail = ae.Err.Error()
	}

	switch kind {
	case agent.KindMissingOwner:
		models.WriteError(w, http.StatusUnauthorized, "owner identity required")
	case agent.KindInvalidQuestion:
		models.WriteErrorDetail(w, http.StatusBadRequest, "invalid question", detail)
	case agent.KindQueryRejected:
		models.WriteErrorDetail(w, http.StatusUnprocessableEntity, "generated query rejected", detail)
	case agent.KindGenerationFailed:
		models.WriteErrorDetail(w, http.StatusBadGateway, "could not generate a query", detail)
	case agent.KindSchemaUnavailable:
		models.WriteError(w, http.StatusServiceUnavailable, "schema unavailable")
	case agent.KindCanceled:
		models.WriteError(w, http.StatusServiceUnavailable, "request canceled")
	case agent.KindExecutionFailed:
		models.WriteErrorDetail(w, http.StatusInternalServerError, "query execution failed", detail)
	default:
		models.WriteErrorDetail(w, http.StatusInternalServerError, string(kind), detail)
	}
}
