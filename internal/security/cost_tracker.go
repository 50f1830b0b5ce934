package security

import (
	"crypto/sha256"
	"fmt"

	"github.com/rs/zerolog/log"
)

const bytesPerGB = 1_000_000_000.0
const bigQueryCostPerTB = 5.0 // USD

// CostTracker enforces BigQuery query byte limits. It is only used by the
// BigQuery store; SQL stores have no per-query billing.
type CostTracker struct {
	maxBytes int64
}

func NewCostTracker(maxBytes int64) *CostTracker {
	return &CostTracker{maxBytes: maxBytes}
}

// CheckLimits returns false and a message if a dry run would scan more bytes
// than allowed. A non-positive limit disables the check.
func (ct *CostTracker) CheckLimits(totalBytesProcessed int64) (bool, string) {
	if ct.maxBytes <= 0 || totalBytesProcessed <= ct.maxBytes {
		return true, ""
	}
	processedGB := float64(totalBytesProcessed) / bytesPerGB
	limitGB := float64(ct.maxBytes) / bytesPerGB
	return false, fmt.Sprintf(
		"Query cost limit exceeded. Processed: %.2fGB, Limit: %.2fGB",
		processedGB, limitGB,
	)
}

// EstimateUSD converts scanned bytes into on-demand query cost.
func EstimateUSD(totalBytesProcessed int64) float64 {
	processedGB := float64(totalBytesProcessed) / bytesPerGB
	return processedGB / 1000.0 * bigQueryCostPerTB
}

// LogQueryCost logs query cost info with hashed identifiers
func (ct *CostTracker) LogQueryCost(sql string, totalBytesProcessed int64, ownerID string, durationMs int64) {
	processedGB := float64(totalBytesProcessed) / bytesPerGB
	costUSD := EstimateUSD(totalBytesProcessed)

	sqlHash := HashID(sql)
	ownerHash := HashID(ownerID)

	log.Info().
		Str("event", "query_cost").
		Str("sql_hash", sqlHash).
		Str("owner_hash", ownerHash).
		Float64("cost_gb", processedGB).
		Float64("cost_usd", costUSD).
		Int64("duration_ms", durationMs).
		Msgf("Query cost: %.4fGB ($%.4f) | Duration: %dms | SQL: %s... | Owner: %s...",
			processedGB, costUSD, durationMs, sqlHash, ownerHash)
}

// HashID returns a short, stable digest for identifiers that must not appear
// in logs in the clear.
func HashID(s string) string {
	if s == "" {
		return ""
	}
	return hashStr(s)[:16]
}

func hashStr(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
