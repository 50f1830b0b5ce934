package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/ledgerai/ledgerai/internal/dialect"
)

// ErrMissingOwner is returned when a query is scoped without an owner id.
var ErrMissingOwner = errors.New("owner id is required")

// ScopedQuery is a statement that can only read the owner's transactions,
// plus the arguments that bind the owner id.
type ScopedQuery struct {
	SQL        string
	Args       []any
	References int
}

// clauseKeywords may directly follow a table reference, so an identifier in
// that position is not an alias.
var clauseKeywords = map[string]bool{
	"where": true, "join": true, "inner": true, "left": true, "right": true,
	"full": true, "cross": true, "natural": true, "on": true, "using": true,
	"group": true, "order": true, "having": true, "limit": true,
	"offset": true, "union": true, "except": true, "intersect": true,
	"window": true, "fetch": true, "for": true, "qualify": true,
	"tablesample": true, "lateral": true, "outer": true, "as": true,
}

// TenantScoper rewrites generated SQL so that every reference to the
// transactions table reads through a derived table filtered to one owner.
//
//	FROM transactions t WHERE ...
//	FROM (SELECT * FROM transactions WHERE user_id = $1) t WHERE ...
//
// References are found on the token stream, so string literals, comments and
// quoted identifiers cannot hide or fake one. Anything that looks like a
// reference is rewritten, even where the result no longer parses.
type TenantScoper struct {
	dialect dialect.Dialect
}

func NewTenantScoper(d dialect.Dialect) *TenantScoper {
	return &TenantScoper{dialect: d}
}

// Scope returns the owner-scoped form of sql with the owner id bound as a
// parameter. sql must already have passed SQLValidator.
func (s *TenantScoper) Scope(sql, ownerID string) (ScopedQuery, error) {
	if strings.TrimSpace(ownerID) == "" {
		return ScopedQuery{}, ErrMissingOwner
	}

	text := StripTrailingSemicolons(sql)
	all, err := lexSQL(text)
	if err != nil {
		return ScopedQuery{}, fmt.Errorf("%w: %v", ErrUnsafeSQL, err)
	}
	toks := significant(all)

	var out strings.Builder
	cursor := 0
	refs := 0

	// Comments are dropped from the executed text.
	emitUntil := func(pos int) {
		for _, c := range all {
			if c.kind != tokComment || c.start < cursor || c.end > pos {
				continue
			}
			out.WriteString(text[cursor:c.start])
			out.WriteByte(' ')
			cursor = c.end
		}
		out.WriteString(text[cursor:pos])
		cursor = pos
	}

	for i := 0; i < len(toks); i++ {
		if !isTransactionsRef(toks, i) {
			if disguisesTable(toks[i]) {
				return ScopedQuery{}, fmt.Errorf("%w: %s names the %s table in a form that cannot be scoped", ErrUnsafeSQL, toks[i].text, dialect.TransactionsTable)
			}
			continue
		}

		// Extend over a schema or dataset qualifier: ledger.public.transactions
		first := i
		for first >= 2 && toks[first-1].isPunct(".") && (toks[first-2].kind == tokIdent || toks[first-2].kind == tokQuotedIdent) {
			first -= 2
		}
		refText := text[toks[first].start:toks[i].end]

		inner, _, err := squirrel.Select("*").
			From(refText).
			Where(squirrel.Eq{dialect.OwnerColumn: ownerID}).
			PlaceholderFormat(s.dialect.Placeholders).
			ToSql()
		if err != nil {
			return ScopedQuery{}, fmt.Errorf("build scoped reference: %w", err)
		}

		emitUntil(toks[first].start)
		out.WriteString("(" + inner + ")")
		if !hasAlias(toks, i) {
			out.WriteString(" AS " + dialect.TransactionsTable)
		}
		cursor = toks[i].end
		refs++
	}
	emitUntil(len(text))

	return ScopedQuery{
		SQL:        strings.TrimSpace(out.String()),
		Args:       s.dialect.OwnerArgs(ownerID, refs),
		References: refs,
	}, nil
}

// isTransactionsRef reports whether toks[i] names the transactions table in a
// position where it is read as a table.
func isTransactionsRef(toks []token, i int) bool {
	t := toks[i]
	if t.kind != tokIdent && t.kind != tokQuotedIdent {
		return false
	}
	name := t.name()
	if t.kind == tokQuotedIdent {
		// `dataset.transactions` is a single quoted token in BigQuery.
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
			name = name[idx+1:]
		}
	}
	if name != dialect.TransactionsTable {
		return false
	}

	if i+1 < len(toks) {
		next := toks[i+1]
		// transactions.amount
		if next.isPunct(".") {
			return false
		}
		// transactions(...) is a call or a CTE column list.
		if next.isPunct("(") {
			return false
		}
		// WITH transactions AS (...)
		if next.isKeyword("AS") && i+2 < len(toks) && toks[i+2].isPunct("(") {
			return false
		}
	}
	if i > 0 {
		prev := toks[i-1]
		// expr AS transactions, (subquery) transactions
		if prev.isKeyword("AS") || prev.isPunct(")") {
			return false
		}
	}
	return true
}

// disguisesTable reports whether an identifier that was not rewritten still
// spells the transactions table through escapes, wildcards or decorators.
// Plain names such as transaction_count or num_transactions are left alone.
func disguisesTable(t token) bool {
	if t.kind != tokIdent && t.kind != tokQuotedIdent {
		return false
	}
	name := t.name()
	if !strings.Contains(name, "ransaction") {
		return false
	}
	for _, r := range name {
		plain := r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-'
		if !plain {
			return true
		}
	}
	return false
}

// hasAlias reports whether the table reference at toks[i] is followed by an
// alias that the rewrite must keep.
func hasAlias(toks []token, i int) bool {
	if i+1 >= len(toks) {
		return false
	}
	next := toks[i+1]
	if next.isKeyword("AS") {
		return true
	}
	if next.kind == tokQuotedIdent {
		return true
	}
	return next.kind == tokIdent && !clauseKeywords[strings.ToLower(next.text)]
}
