package models

import "strings"

// QueryRequest for POST /api/v1/query. The owner never comes from the body.
type QueryRequest struct {
	Question  string `json:"question"`
	AgentMode bool   `json:"agentMode,omitempty"`
}

func (r *QueryRequest) SetDefaults() {
	r.Question = strings.TrimSpace(r.Question)
}
