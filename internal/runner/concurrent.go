package runner

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/pgforge/migrate/internal/parser"
)

// requiresNonTransactional parses the SQL and returns true if any
// statement is a CREATE INDEX CONCURRENTLY. PostgreSQL refuses to run
// such statements inside a transaction block, so the runner executes the
// script directly on the pool and records its ledger row in a follow-up
// transaction.
func requiresNonTransactional(sql string) (bool, error) {
	result, err := parser.Parse(sql)
	if err != nil {
		return false, fmt.Errorf("parsing SQL for concurrent index detection: %w", err)
	}

	for _, stmt := range result.Stmts {
		node, ok := stmt.Stmt.Node.(*pg_query.Node_IndexStmt)
		if !ok {
			continue
		}

		if node.IndexStmt != nil && node.IndexStmt.Concurrent {
			return true, nil
		}
	}

	return false, nil
}
