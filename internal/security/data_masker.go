package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledgerai/ledgerai/internal/models"
)

var (
	emailRe      = regexp.MustCompile(`(?i)email`)
	phoneRe      = regexp.MustCompile(`(?i)phone`)
	ssnRe        = regexp.MustCompile(`(?i)ssn|social_security`)
	creditCardRe = regexp.MustCompile(`(?i)credit_card|card_number`)
	accountRe    = regexp.MustCompile(`(?i)account_number|iban|routing`)
	fullMaskRe   = regexp.MustCompile(`(?i)password|secret|token|api_key|access_key|private_key`)
)

// DataMasker masks sensitive column values in query results
type DataMasker struct {
	sensitiveColumns []string
}

func NewDataMasker(sensitiveColumns []string) *DataMasker {
	return &DataMasker{sensitiveColumns: sensitiveColumns}
}

// MaskResult returns a copy of rs with sensitive columns masked. The input is
// left untouched.
func (m *DataMasker) MaskResult(rs models.ResultSet) models.ResultSet {
	if m == nil {
		return rs
	}
	sensitive := make(map[string]bool, len(rs.Columns))
	found := false
	for _, col := range rs.Columns {
		if m.isSensitive(col) {
			sensitive[col] = true
			found = true
		}
	}
	if !found {
		return rs
	}

	out := models.ResultSet{Columns: rs.Columns, Rows: make([]models.Row, len(rs.Rows))}
	for i, row := range rs.Rows {
		masked := make(models.Row, len(row))
		for col, val := range row {
			if sensitive[col] && val != nil {
				masked[col] = m.maskValue(col, fmt.Sprintf("%v", val))
			} else {
				masked[col] = val
			}
		}
		out.Rows[i] = masked
	}
	return out
}

func (m *DataMasker) isSensitive(col string) bool {
	lower := strings.ToLower(col)
	for _, s := range m.sensitiveColumns {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return emailRe.MatchString(col) || phoneRe.MatchString(col) ||
		ssnRe.MatchString(col) || creditCardRe.MatchString(col) ||
		accountRe.MatchString(col) || fullMaskRe.MatchString(col)
}

func (m *DataMasker) maskValue(col, val string) string {
	lower := strings.ToLower(col)
	switch {
	case emailRe.MatchString(lower):
		return maskEmail(val)
	case phoneRe.MatchString(lower):
		return maskPhone(val)
	case ssnRe.MatchString(lower):
		return "***-**-****"
	case creditCardRe.MatchString(lower):
		return maskCreditCard(val)
	case accountRe.MatchString(lower):
		return maskAccount(val)
	default:
		return "***"
	}
}

// maskEmail: "john.doe@example.com" → "jo***@***.com"
func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***"
	}
	local := parts[0]
	visible := min(2, len(local))
	domainParts := strings.Split(parts[1], ".")
	ext := domainParts[len(domainParts)-1]
	return fmt.Sprintf("%s***@***.%s", local[:visible], ext)
}

// maskPhone: any phone → "***-***-1234"
func maskPhone(phone string) string {
	digits := onlyDigits(phone)
	if len(digits) < 4 {
		return "***-***-****"
	}
	return "***-***-" + digits[len(digits)-4:]
}

// maskCreditCard: "4111111111111111" → "****-****-****-1111"
func maskCreditCard(cc string) string {
	digits := onlyDigits(cc)
	if len(digits) < 4 {
		return "****-****-****-****"
	}
	return "****-****-****-" + digits[len(digits)-4:]
}

// maskAccount: "DE89370400440532013000" → "****3000"
func maskAccount(acct string) string {
	digits := onlyDigits(acct)
	if len(digits) < 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
