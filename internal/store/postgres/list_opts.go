package postgres

import (
	"fmt"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// withListOpts appends time filters, ordering and pagination to a query
// that already ends in a WHERE clause. Since is inclusive, Until exclusive.
func withListOpts(query string, args []any, opts domain.ListOpts, orderBy string) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	query += " ORDER BY " + orderBy

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
