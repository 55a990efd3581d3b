package toolexec

import (
	"context"
	"fmt"
	"strings"
)

// maxQueryRows bounds how many rows a scoped query reports back.
const maxQueryRows = 100

// ScopedQuery runs an ad hoc query against the backing data store,
// restricted to the environment tag the backend was configured with. A
// request targeting any other environment is rejected before anything
// reaches the database.
func (b *Backend) ScopedQuery(ctx context.Context, environment, query string) Result {
	if strings.TrimSpace(query) == "" {
		return fail("query is required")
	}
	if environment == "" {
		environment = b.envTag
	}
	if environment != b.envTag {
		return failf("queries are restricted to the %q environment, refusing %q", b.envTag, environment)
	}
	if b.pool == nil {
		return fail("no data store configured")
	}

	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return failf("executing query: %v", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteByte('\n')

	count := 0
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return failf("reading row: %v", err)
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = fmt.Sprintf("%v", v)
		}
		sb.WriteString(strings.Join(cells, "\t"))
		sb.WriteByte('\n')

		count++
		if count >= maxQueryRows {
			fmt.Fprintf(&sb, "...[capped at %d rows]\n", maxQueryRows)
			break
		}
	}
	if err := rows.Err(); err != nil {
		return failf("iterating rows: %v", err)
	}

	if count == 0 {
		return ok("query returned no rows")
	}
	return ok(sb.String())
}
