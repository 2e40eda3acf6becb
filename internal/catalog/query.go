package catalog

import (
	"fmt"
	"strings"
)

// QuerySpec describes the search filters used to build an advanced-search
// query string. An explicit Override wins over every other field.
type QuerySpec struct {
	Override    string
	Collections []string
	Subject     string
	StartYear   int
	EndYear     int
}

// Build assembles the advanced-search query. Zero years are treated as open
// range bounds; an empty spec matches everything.
func (q QuerySpec) Build() string {
	if q.Override != "" {
		return q.Override
	}

	var clauses []string

	switch len(q.Collections) {
	case 0:
	case 1:
		clauses = append(clauses, "collection:"+q.Collections[0])
	default:
		clauses = append(clauses, fmt.Sprintf("collection:(%s)", strings.Join(q.Collections, " OR ")))
	}

	if q.Subject != "" {
		escaped := strings.ReplaceAll(q.Subject, `"`, `\"`)
		clauses = append(clauses, fmt.Sprintf("subject:%q", escaped))
	}

	if q.StartYear != 0 || q.EndYear != 0 {
		start, end := "*", "*"
		if q.StartYear != 0 {
			start = fmt.Sprintf("%d", q.StartYear)
		}
		if q.EndYear != 0 {
			end = fmt.Sprintf("%d", q.EndYear)
		}
		clauses = append(clauses, fmt.Sprintf("year:[%s TO %s]", start, end))
	}

	if len(clauses) == 0 {
		return "*:*"
	}
	return strings.Join(clauses, " AND ")
}
