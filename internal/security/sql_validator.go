package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledgerai/ledgerai/internal/dialect"
)

// ErrUnsafeSQL marks a generated statement that must never reach the store.
var ErrUnsafeSQL = errors.New("unsafe sql")

// forbiddenKeywords are statement or clause keywords that write, change
// session state or escape the single read-only statement.
var forbiddenKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true,
	"alter": true, "create": true, "truncate": true, "grant": true,
	"revoke": true, "merge": true, "upsert": true, "attach": true,
	"detach": true, "pragma": true, "vacuum": true, "analyze": true,
	"reindex": true, "copy": true, "call": true, "exec": true,
	"execute": true, "into": true, "set": true, "reset": true,
	"lock": true, "listen": true, "notify": true, "unlisten": true,
	"begin": true, "commit": true, "rollback": true, "savepoint": true,
	"release": true, "prepare": true, "deallocate": true, "declare": true,
	"refresh": true, "load": true,
	"import": true, "export": true, "do": true,
	"uescape": true,
}

// forbiddenFunctions reach outside the two ledger tables or stall the store.
var forbiddenFunctions = map[string]bool{
	"sleep": true, "benchmark": true, "waitfor": true,
	"dblink": true, "dblink_exec": true,
	"query_to_xml": true, "query_to_xml_and_xmlschema": true,
	"query_to_xmlschema": true, "table_to_xml": true, "cursor_to_xml": true,
	"database_to_xml": true, "schema_to_xml": true,
	"current_setting": true, "set_config": true,
	"lo_import": true, "lo_export": true,
	"load_extension": true, "readfile": true, "writefile": true,
	"fts3_tokenizer": true, "load_file": true,
	"external_query": true,
	// These run a query passed as text.
	"ts_stat": true, "ts_rewrite": true,
	"crosstab": true, "crosstab2": true, "crosstab3": true, "crosstab4": true,
	"connectby": true, "xpath_table": true,
	"table_to_xmlschema": true, "table_to_xml_and_xmlschema": true,
	"cursor_to_xmlschema": true, "schema_to_xmlschema": true,
	"database_to_xmlschema": true,
}

var systemCatalogs = map[string]bool{
	"information_schema": true,
	"sqlite_master":      true,
	"sqlite_schema":      true,
	"sqlite_temp_master": true,
	"sqlite_temp_schema": true,
	"sqlite_sequence":    true,
	"sqlite_stat1":       true,
}

// SQLValidator rejects generated statements that are not a single read-only
// SELECT over the ledger tables.
type SQLValidator struct{}

func NewSQLValidator() *SQLValidator {
	return &SQLValidator{}
}

// Validate returns nil if sql may be scoped and executed. Every rejection
// wraps ErrUnsafeSQL.
func (v *SQLValidator) Validate(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("%w: SQL cannot be empty", ErrUnsafeSQL)
	}

	all, err := lexSQL(sql)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeSQL, err)
	}
	toks := significant(all)
	if len(toks) == 0 {
		return fmt.Errorf("%w: SQL cannot be empty", ErrUnsafeSQL)
	}

	if !toks[0].isKeyword("SELECT") && !toks[0].isKeyword("WITH") {
		return fmt.Errorf("%w: only SELECT queries are allowed", ErrUnsafeSQL)
	}

	var literals strings.Builder
	for i, t := range toks {
		switch t.kind {
		case tokPunct:
			if t.text == ";" {
				for _, rest := range toks[i+1:] {
					if !rest.isPunct(";") {
						return fmt.Errorf("%w: multiple statements are not allowed", ErrUnsafeSQL)
					}
				}
			}
		case tokParam:
			return fmt.Errorf("%w: bind parameter %q in generated SQL", ErrUnsafeSQL, t.text)
		case tokString:
			if strings.Contains(strings.ToLower(t.text), dialect.TransactionsTable) {
				return fmt.Errorf("%w: string literal references the %s table", ErrUnsafeSQL, dialect.TransactionsTable)
			}
			literals.WriteString(strings.ToLower(t.text[1 : len(t.text)-1]))
		case tokIdent, tokQuotedIdent:
			name := t.name()
			if t.kind == tokIdent && forbiddenKeywords[name] {
				return fmt.Errorf("%w: %s is not allowed", ErrUnsafeSQL, strings.ToUpper(name))
			}
			if !plainName(t) {
				return fmt.Errorf("%w: identifier %s is not a plain table or column name", ErrUnsafeSQL, t.text)
			}
			for _, part := range strings.Split(name, ".") {
				if forbiddenFunctions[part] || strings.HasPrefix(part, "pg_") || systemCatalogs[part] {
					return fmt.Errorf("%w: reference to %q is not allowed", ErrUnsafeSQL, part)
				}
			}
		}
	}

	// 'FROM trans' || 'actions' only shows up once the pieces are joined.
	joined := literals.String()
	if strings.Contains(joined, dialect.TransactionsTable) {
		return fmt.Errorf("%w: string literals spell the %s table", ErrUnsafeSQL, dialect.TransactionsTable)
	}
	if strings.Contains(joined, "select") && strings.Contains(joined, "from") {
		return fmt.Errorf("%w: string literals carry SQL text", ErrUnsafeSQL)
	}
	return nil
}

// plainName reports whether an identifier is free of wildcard, decorator and
// escape characters. BigQuery reads `ledger.transaction*` and
// transactions$20250101 as the transactions table.
func plainName(t token) bool {
	name := t.name()
	if t.kind == tokIdent {
		return !strings.ContainsRune(name, '$')
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '.' || r == '-' || r == ' ':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// StripTrailingSemicolons removes statement terminators the model tends to add.
func StripTrailingSemicolons(sql string) string {
	trimmed := strings.TrimSpace(sql)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
