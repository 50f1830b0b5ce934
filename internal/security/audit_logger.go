package security

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const auditSinkTimeout = 5 * time.Second

// AuditEvent is one audited request. Identifiers are hashed before they are
// stored anywhere.
type AuditEvent struct {
	Event            string    `json:"event"`
	Timestamp        time.Time `json:"@timestamp"`
	RequestID        string    `json:"request_id,omitempty"`
	OwnerHash        string    `json:"owner_hash"`
	QuestionHash     string    `json:"question_hash,omitempty"`
	SQLHash          string    `json:"sql_hash,omitempty"`
	ValidationPassed bool      `json:"validation_passed"`
	Success          bool      `json:"success"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	RowCount         int       `json:"row_count"`
	BytesProcessed   int64     `json:"bytes_processed,omitempty"`
	ExecutionTimeMs  int64     `json:"execution_time_ms"`
}

// AuditSink stores audit events outside the process log.
type AuditSink interface {
	Record(ctx context.Context, evt AuditEvent) error
}

// AuditLogger logs security-relevant events with hashed identifiers
type AuditLogger struct {
	enabled bool
	sink    AuditSink
}

// NewAuditLogger returns a logger that writes to the process log and, when
// sink is non-nil, forwards each event to it in the background.
func NewAuditLogger(enabled bool, sink AuditSink) *AuditLogger {
	return &AuditLogger{enabled: enabled, sink: sink}
}

// QueryAudit describes one answered question.
type QueryAudit struct {
	RequestID        string
	OwnerID          string
	Question         string
	SQL              string
	ValidationPassed bool
	ErrorKind        string
	RowCount         int
	BytesProcessed   int64
	Duration         time.Duration
}

// LogQuery records a question that reached the pipeline
func (a *AuditLogger) LogQuery(ctx context.Context, q QueryAudit) {
	if a == nil || !a.enabled {
		return
	}
	evt := AuditEvent{
		Event:            "query_audit",
		Timestamp:        time.Now().UTC(),
		RequestID:        q.RequestID,
		OwnerHash:        HashID(q.OwnerID),
		QuestionHash:     HashID(q.Question),
		SQLHash:          HashID(q.SQL),
		ValidationPassed: q.ValidationPassed,
		Success:          q.ErrorKind == "",
		ErrorKind:        q.ErrorKind,
		RowCount:         q.RowCount,
		BytesProcessed:   q.BytesProcessed,
		ExecutionTimeMs:  q.Duration.Milliseconds(),
	}

	l := log.Info().
		Str("event", evt.Event).
		Str("request_id", evt.RequestID).
		Str("owner_hash", evt.OwnerHash).
		Str("question_hash", evt.QuestionHash).
		Str("sql_hash", evt.SQLHash).
		Bool("validation_passed", evt.ValidationPassed).
		Int("row_count", evt.RowCount).
		Int64("execution_time_ms", evt.ExecutionTimeMs).
		Bool("success", evt.Success)
	if evt.ErrorKind != "" {
		l = l.Str("error_kind", evt.ErrorKind)
	}
	l.Msg("audit")

	a.forward(ctx, evt)
}

// LogRejectedPrompt records a question refused before any model call
func (a *AuditLogger) LogRejectedPrompt(ctx context.Context, requestID, ownerID, question, reason string) {
	if a == nil || !a.enabled {
		return
	}
	evt := AuditEvent{
		Event:        "prompt_rejected",
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
		OwnerHash:    HashID(ownerID),
		QuestionHash: HashID(question),
		ErrorKind:    "PromptRejected",
	}
	log.Warn().
		Str("event", evt.Event).
		Str("request_id", requestID).
		Str("owner_hash", evt.OwnerHash).
		Str("question_hash", evt.QuestionHash).
		Str("reason", reason).
		Msg("prompt rejected")

	a.forward(ctx, evt)
}

func (a *AuditLogger) forward(ctx context.Context, evt AuditEvent) {
	if a.sink == nil {
		return
	}
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditSinkTimeout)
		defer cancel()
		if err := a.sink.Record(sctx, evt); err != nil {
			log.Warn().Err(err).Str("event", evt.Event).Msg("audit sink write failed")
		}
	}()
}
