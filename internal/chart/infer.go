// Package chart decides whether a result set should be drawn and how. The
// decision depends only on the question text and the shape of the rows.
package chart

import (
	"regexp"
	"strings"

	"github.com/ledgerai/ledgerai/internal/models"
)

// Rule is one row of the decision table. A rule applies when the question
// matches Question, a column matches LabelColumn (if set) and the row count
// is within [MinRows, MaxRows].
type Rule struct {
	Kind  models.ChartKind
	Title string

	Question *regexp.Regexp
	// LabelColumn, when set, must match a column name; that column becomes
	// the label.
	LabelColumn *regexp.Regexp
	// LabelHints rank candidate label columns when LabelColumn is nil.
	LabelHints *regexp.Regexp
	ValueHints *regexp.Regexp

	MinRows int
	MaxRows int
}

func words(ws ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(ws, "|") + `)\b`)
}

func substrings(ws ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(` + strings.Join(ws, "|") + `)`)
}

// Rules is evaluated in order; the first applicable rule wins.
var Rules = []Rule{
	{
		Kind:        models.ChartLine,
		Title:       "Trend Over Time",
		Question:    words("trend", "trends", "trending", "over time", "month", "months", "monthly", "week", "weeks", "weekly", "daily", "timeline"),
		LabelColumn: substrings("date", "month", "week"),
		ValueHints:  substrings("total", "amount", "sum", "expense", "income"),
		MinRows:     1,
	},
	{
		Kind:        models.ChartPie,
		Title:       "Breakdown by Category",
		Question:    words("category", "categories", "breakdown", "type", "types"),
		LabelColumn: substrings("category", "type"),
		ValueHints:  substrings("total", "amount", "sum", "count"),
		MinRows:     1,
		MaxRows:     15,
	},
	{
		Kind:       models.ChartBar,
		Title:      "Comparison",
		Question:   words("top", "compare", "comparison", "most", "highest", "ranking"),
		LabelHints: substrings("category", "description", "merchant", "name"),
		ValueHints: substrings("total", "amount", "sum", "count", "expense", "income"),
		MinRows:    2,
		MaxRows:    20,
	},
}

// Infer returns the chart for results, or nil when none applies.
func Infer(question string, results models.ResultSet) *models.ChartSpec {
	return InferWith(Rules, question, results)
}

// InferWith evaluates a custom decision table.
func InferWith(rules []Rule, question string, results models.ResultSet) *models.ChartSpec {
	if results.Len() == 0 || len(results.Columns) < 2 {
		return nil
	}
	kinds := columnKinds(results)

	for _, r := range rules {
		if !r.Question.MatchString(question) {
			continue
		}
		n := results.Len()
		if n < r.MinRows || (r.MaxRows > 0 && n > r.MaxRows) {
			continue
		}

		label, ok := pickLabel(r, results.Columns, kinds)
		if !ok {
			continue
		}
		value, ok := pickValue(r, results.Columns, kinds, label)
		if !ok {
			continue
		}
		return &models.ChartSpec{
			Kind:        r.Kind,
			Data:        results.Rows,
			ValueColumn: value,
			LabelColumn: label,
			Title:       r.Title,
		}
	}
	return nil
}

type columnKind int

const (
	kindUnknown columnKind = iota
	kindNumeric
	kindString
)

// columnKinds types each column by its first non-null value.
func columnKinds(rs models.ResultSet) map[string]columnKind {
	kinds := make(map[string]columnKind, len(rs.Columns))
	for _, c := range rs.Columns {
		kinds[c] = kindOf(rs.Rows, c)
	}
	return kinds
}

func kindOf(rows []models.Row, col string) columnKind {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case float64, float32, int, int32, int64:
			return kindNumeric
		case string:
			return kindString
		default:
			return kindUnknown
		}
	}
	return kindUnknown
}

func pickLabel(r Rule, cols []string, kinds map[string]columnKind) (string, bool) {
	if r.LabelColumn != nil {
		for _, c := range cols {
			if r.LabelColumn.MatchString(c) {
				return c, true
			}
		}
		return "", false
	}
	if r.LabelHints != nil {
		for _, c := range cols {
			if r.LabelHints.MatchString(c) && kinds[c] != kindNumeric {
				return c, true
			}
		}
	}
	for _, c := range cols {
		if kinds[c] == kindString {
			return c, true
		}
	}
	return cols[0], true
}

func pickValue(r Rule, cols []string, kinds map[string]columnKind, label string) (string, bool) {
	if r.ValueHints != nil {
		for _, c := range cols {
			if c != label && r.ValueHints.MatchString(c) && kinds[c] != kindString {
				return c, true
			}
		}
	}
	for _, c := range cols {
		if c != label && kinds[c] == kindNumeric {
			return c, true
		}
	}
	if len(cols) > 1 && cols[1] != label {
		return cols[1], true
	}
	for _, c := range cols {
		if c != label {
			return c, true
		}
	}
	return "", false
}
