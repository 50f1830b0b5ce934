// Package tools defines the Tool type and the ledger tools the agent can
// call. Every tool reads through the same validator and tenant scoper as the
// single-query pipeline.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/ledgerai/ledgerai/internal/security"
	"github.com/ledgerai/ledgerai/internal/service"
)

// Tool represents a callable function the LLM can invoke
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Execute     func(ctx context.Context, input map[string]interface{}) (string, error)
}

// maxToolRows bounds how many rows are sent back to the model per call.
const maxToolRows = 50

// Session is the per-request state shared by the tools of one agent run: the
// owner every query is scoped to and the last query that ran. Rows handed back
// to the model go through masker; a nil masker leaves them as read.
type Session struct {
	ownerID   string
	store     service.Store
	validator *security.SQLValidator
	scoper    *security.TenantScoper
	masker    *security.DataMasker

	mu         sync.Mutex
	lastSQL    string
	lastResult models.ResultSet
	executed   bool
}

func NewSession(ownerID string, store service.Store, validator *security.SQLValidator, scoper *security.TenantScoper, masker *security.DataMasker) *Session {
	return &Session{
		ownerID:   ownerID,
		store:     store,
		validator: validator,
		scoper:    scoper,
		masker:    masker,
	}
}

// Last returns the scoped SQL and unmasked rows of the most recent successful
// query.
func (s *Session) Last() (string, models.ResultSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSQL, s.lastResult, s.executed
}

// run validates, scopes and executes sql for the session owner and returns the
// masked rows.
func (s *Session) run(ctx context.Context, sql string) (models.ResultSet, error) {
	if err := s.validator.Validate(sql); err != nil {
		return models.ResultSet{}, err
	}
	scoped, err := s.scoper.Scope(sql, s.ownerID)
	if err != nil {
		return models.ResultSet{}, err
	}
	rs, err := s.store.Query(ctx, scoped.SQL, scoped.Args...)
	if err != nil {
		return models.ResultSet{}, err
	}

	s.mu.Lock()
	s.lastSQL = scoped.SQL
	s.lastResult = rs
	s.executed = true
	s.mu.Unlock()
	return s.masker.MaskResult(rs), nil
}

// LedgerTools returns every tool bound to sess.
func LedgerTools(sess *Session) []Tool {
	return []Tool{
		GetSchemaTool(sess),
		SampleTransactionsTool(sess),
		ExecuteSQLTool(sess),
		FinancialSummaryTool(sess),
	}
}

func requireString(input map[string]interface{}, key string) (string, error) {
	v, _ := input[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

var errNoStore = errors.New("tool session has no store")
