// Package socrata pages through Socrata Open Data (SODA) resources.
package socrata

import (
	"net/url"
	"strconv"
	"strings"
)

// Query holds the SoQL clauses sent with every page. Empty clauses are
// omitted. Limit overrides the client page size when positive.
type Query struct {
	Select string
	Where  string
	Order  string
	Group  string
	Having string
	Q      string
	Limit  int
}

// Params encodes the query for one page.
func (q Query) Params(limit, offset int) url.Values {
	params := url.Values{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			params.Set(k, v)
		}
	}
	set("$select", q.Select)
	set("$where", q.Where)
	set("$order", q.Order)
	set("$group", q.Group)
	set("$having", q.Having)
	set("$q", q.Q)
	params.Set("$limit", strconv.Itoa(limit))
	params.Set("$offset", strconv.Itoa(offset))
	return params
}

// And combines the query with an extra $where condition.
func (q Query) And(where string) Query {
	where = strings.TrimSpace(where)
	switch {
	case where == "":
	case strings.TrimSpace(q.Where) == "":
		q.Where = where
	default:
		q.Where = "(" + q.Where + ") AND (" + where + ")"
	}
	return q
}
