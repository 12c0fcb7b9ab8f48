package repository

import "strings"

// Predicate is a composable SQL condition with its positional arguments.
// The zero value is the empty predicate and is dropped when combined, so
// optional filters can be built unconditionally and joined afterwards.
type Predicate struct {
	sql  string
	args []any
}

// Raw wraps a hand-written fragment. Use ? placeholders for args.
func Raw(sql string, args ...any) Predicate {
	return Predicate{sql: sql, args: args}
}

// Eq renders `col = ?`.
func Eq(col string, v any) Predicate { return Raw(col+" = ?", v) }

// Gte renders `col >= ?`.
func Gte(col string, v any) Predicate { return Raw(col+" >= ?", v) }

// Lte renders `col <= ?`.
func Lte(col string, v any) Predicate { return Raw(col+" <= ?", v) }

// Lt renders `col < ?`.
func Lt(col string, v any) Predicate { return Raw(col+" < ?", v) }

// IsNull renders `col IS NULL`.
func IsNull(col string) Predicate { return Raw(col + " IS NULL") }

// Like renders a case-insensitive substring match. An empty (or blank)
// term yields the empty predicate.
func Like(col, term string) Predicate {
	term = strings.TrimSpace(term)
	if term == "" {
		return Predicate{}
	}
	return Raw("LOWER("+col+") LIKE ?", "%"+escapeLike(strings.ToLower(term))+"%")
}

// In renders `col IN (?,?,...)`. No values yields the empty predicate.
func In[T any](col string, vals ...T) Predicate {
	if len(vals) == 0 {
		return Predicate{}
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return Raw(col+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")+")", args...)
}

// When returns p if cond holds and the empty predicate otherwise.
func When(cond bool, p Predicate) Predicate {
	if !cond {
		return Predicate{}
	}
	return p
}

// And joins the non-empty predicates with AND.
func And(ps ...Predicate) Predicate { return join(" AND ", ps) }

// Or joins the non-empty predicates with OR.
func Or(ps ...Predicate) Predicate { return join(" OR ", ps) }

func join(op string, ps []Predicate) Predicate {
	parts := make([]string, 0, len(ps))
	var args []any
	for _, p := range ps {
		if p.Empty() {
			continue
		}
		parts = append(parts, p.sql)
		args = append(args, p.args...)
	}
	switch len(parts) {
	case 0:
		return Predicate{}
	case 1:
		return Predicate{sql: parts[0], args: args}
	}
	return Predicate{sql: "(" + strings.Join(parts, op) + ")", args: args}
}

// Empty reports whether p carries no condition.
func (p Predicate) Empty() bool { return p.sql == "" }

// SQL returns the rendered fragment and its arguments.
func (p Predicate) SQL() (string, []any) { return p.sql, p.args }

// Where renders the conjunction of ps for use after WHERE. It returns
// "1=1" when every predicate is empty.
func Where(ps ...Predicate) (string, []any) {
	p := And(ps...)
	if p.Empty() {
		return "1=1", nil
	}
	return p.sql, p.args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Size   int
}

// Normalize applies defaults (page 1, 20 rows) and caps the size at 100.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

// Offset returns the row offset for LIMIT/OFFSET.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}
