package models

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// AgentResponse is the unit the question pipeline returns. On success every
// field except Err is set; on failure only Err is set.
type AgentResponse struct {
	Answer    string
	SQL       string
	Results   ResultSet
	Chart     *ChartSpec
	AgentMode bool
	ToolsUsed []string
	Err       error
}

// QueryResponse is returned by POST /api/v1/query
type QueryResponse struct {
	Query       string     `json:"query"`
	Response    string     `json:"response"`
	SQL         string     `json:"sql"`
	Results     []Row      `json:"results"`
	ResultCount int        `json:"resultCount"`
	ChartData   *ChartSpec `json:"chartData,omitempty"`
	AgentMode   bool       `json:"agentMode,omitempty"`
	ToolsUsed   []string   `json:"toolsUsed,omitempty"`
}

// SchemaResponse is returned by GET /api/v1/schema
type SchemaResponse struct {
	Dialect string        `json:"dialect"`
	Tables  []TableSchema `json:"tables"`
}
