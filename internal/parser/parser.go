package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the parsed AST and original SQL.
type ParseResult struct {
	Stmts []*pg_query.RawStmt
	SQL   string
}

// Parse parses a PostgreSQL SQL string and returns the AST.
// Returns an empty result (zero statements) for empty or whitespace-only input.
func Parse(sql string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &ParseResult{SQL: sql}, nil
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &ParseResult{
		Stmts: tree.Stmts,
		SQL:   sql,
	}, nil
}

// StatementKinds returns a human-readable kind name per statement, in
// order, e.g. ["CreateStmt", "IndexStmt"]. Used by the plan command to
// summarize what a pending script will do.
func StatementKinds(result *ParseResult) []string {
	kinds := make([]string, 0, len(result.Stmts))

	for _, stmt := range result.Stmts {
		if stmt.Stmt == nil || stmt.Stmt.Node == nil {
			kinds = append(kinds, "Unknown")

			continue
		}

		// Node type names look like "*pg_query.Node_CreateStmt";
		// strip everything up to the underscore.
		name := fmt.Sprintf("%T", stmt.Stmt.Node)
		if idx := strings.LastIndex(name, "_"); idx >= 0 {
			name = name[idx+1:]
		}

		kinds = append(kinds, name)
	}

	return kinds
}
